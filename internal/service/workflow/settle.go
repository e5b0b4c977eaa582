package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "escrowflow/contracts/mq"
	"escrowflow/internal/session"
	"escrowflow/internal/validation"
	"escrowflow/pkg/logger"
	"escrowflow/pkg/metrics"
	"escrowflow/pkg/trace"
)

// Settle 处理 pending 交易的最终结果。
// 成功时记账并执行与同步路径相同的对话框切换；失败时不做任何切换。
// 会话已卸载时仍会记账，只是跳过对话框切换。
func (s *Service) Settle(ctx context.Context, p mqcontracts.TxSettledPayload) (*Outcome, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("session_id", p.SessionID),
		zap.String("operation", p.Operation),
		zap.Int("escrow_id", p.EscrowID),
		zap.String("tx_hash", p.TxHash),
	)

	if _, ok := successTransitions[p.Operation]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, p.Operation)
	}

	if !p.Success {
		metrics.IncrementSettlement(p.Operation, "failed")
		log.Warn("Transaction settled with failure", zap.String("error", p.Error))
		return nil, nil
	}

	if err := s.recordSettlement(ctx, p); err != nil {
		return nil, err
	}
	metrics.IncrementSettlement(p.Operation, "success")

	scope, err := s.scopes.Lookup(p.UserID, p.SessionID)
	if errors.Is(err, session.ErrScopeNotFound) {
		log.Info("Settlement arrived after scope was unmounted, skipping dialog transition")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.succeeded(scope, p.Operation, p.TxHash)
}

func (s *Service) recordSettlement(ctx context.Context, p mqcontracts.TxSettledPayload) error {
	escrow, err := s.deps.Escrows.FindOwned(ctx, p.EscrowID, p.UserID)
	if err != nil {
		return err
	}

	if p.Operation == mqcontracts.OperationFund {
		amount := validation.ValidateFundingAmount(p.Amount)
		if !amount.OK() {
			return amount.Err
		}
		token, err := s.resolveToken(escrow, p.Network, p.Token)
		if err != nil {
			return err
		}
		base, verr := baseUnits(token, amount.Value)
		if verr != nil {
			return verr
		}
		err = s.deps.Ledger.RecordFunding(ctx, mqcontracts.EscrowFundedPayload{
			EscrowID:     escrow.ID,
			UserID:       p.UserID,
			Network:      string(token.Network),
			TokenAddress: token.Address,
			AmountBase:   base,
			TxHash:       p.TxHash,
			TraceID:      trace.FromContext(ctx),
		})
		if err != nil {
			return fmt.Errorf("record funding: %w", err)
		}
		return nil
	}

	selection := validation.ValidateMilestoneSelection(p.Milestone)
	if !selection.OK() {
		return selection.Err
	}
	milestone, err := s.deps.Milestones.FindInEscrow(ctx, escrow.ID, selection.Value.String())
	if err != nil {
		return err
	}
	// 同一里程碑可能收到多笔不同 tx_hash 的结算
	if err := checkMilestone(p.Operation, milestone); err != nil {
		return err
	}
	return s.record(ctx, p.Operation, escrow.ID, milestone.ID, p.UserID, p.TxHash)
}
