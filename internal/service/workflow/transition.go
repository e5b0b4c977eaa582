package workflow

import (
	"context"

	"go.uber.org/zap"

	mqcontracts "escrowflow/contracts/mq"
	"escrowflow/internal/dialog"
	"escrowflow/internal/service/txclient"
	"escrowflow/internal/session"
	"escrowflow/internal/validation"
	"escrowflow/pkg/logger"
	"escrowflow/pkg/metrics"
)

// 成功后需要关闭 / 打开的对话框
type transition struct {
	close []dialog.Name
	open  []dialog.Name
}

var successTransitions = map[string]transition{
	mqcontracts.OperationFund:    {close: []dialog.Name{dialog.Fund}, open: []dialog.Name{dialog.Success}},
	mqcontracts.OperationApprove: {open: []dialog.Name{dialog.Second}},
	mqcontracts.OperationRelease: {close: []dialog.Name{dialog.Second}, open: []dialog.Name{dialog.Success}},
}

// applySuccess 只在收到明确的成功信号后调用
func applySuccess(o *dialog.Orchestrator, op string) error {
	t, ok := successTransitions[op]
	if !ok {
		return ErrUnknownOperation
	}
	for _, n := range t.close {
		changed, err := o.SetOpen(n, false)
		if err != nil {
			return err
		}
		if changed {
			metrics.IncrementDialogTransition(string(n), false)
		}
	}
	for _, n := range t.open {
		changed, err := o.SetOpen(n, true)
		if err != nil {
			return err
		}
		if changed {
			metrics.IncrementDialogTransition(string(n), true)
		}
	}
	return nil
}

func outcome(scope *session.Scope, op string, phase Phase) (*Outcome, error) {
	snap, err := scope.Dialogs.Snapshot()
	if err != nil {
		return nil, err
	}
	metrics.IncrementWorkflowOutcome(op, string(phase))
	return &Outcome{Operation: op, Phase: phase, Dialogs: snap}, nil
}

// rejected 校验未通过，停留在输入阶段，不调用执行方
func (s *Service) rejected(scope *session.Scope, op string, verr *validation.ValidationError) (*Outcome, error) {
	metrics.IncrementValidationFailure(verr.Field, string(verr.Code))
	out, err := outcome(scope, op, PhaseAwaitingInput)
	if err != nil {
		return nil, err
	}
	out.Validation = verr
	return out, nil
}

// failed 执行方失败，不做任何对话框切换
func (s *Service) failed(ctx context.Context, scope *session.Scope, op string, cause error) (*Outcome, error) {
	logger.WithTrace(ctx, s.logger).Warn("Escrow operation failed",
		zap.String("session_id", scope.ID),
		zap.String("operation", op),
		zap.Error(cause),
	)
	if _, err := outcome(scope, op, PhaseFailure); err != nil {
		return nil, err
	}
	return nil, cause
}

// pending 已提交，等待 escrow.tx.settled
func (s *Service) pending(scope *session.Scope, op string, receipt *txclient.Receipt) (*Outcome, error) {
	out, err := outcome(scope, op, PhaseSubmitting)
	if err != nil {
		return nil, err
	}
	out.TxHash = receipt.TxHash
	return out, nil
}

func (s *Service) succeeded(scope *session.Scope, op, txHash string) (*Outcome, error) {
	if err := applySuccess(scope.Dialogs, op); err != nil {
		return nil, err
	}
	out, err := outcome(scope, op, PhaseSuccess)
	if err != nil {
		return nil, err
	}
	out.TxHash = txHash
	return out, nil
}
