package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "escrowflow/contracts/mq"
	"escrowflow/internal/dialog"
	"escrowflow/internal/model"
	"escrowflow/internal/service/txclient"
	"escrowflow/internal/session"
	"escrowflow/internal/trustline"
	"escrowflow/internal/validation"
	"escrowflow/pkg/logger"
	"escrowflow/pkg/trace"
)

// Phase 单次流程所处阶段：Idle → AwaitingInput → Submitting → Success | Failure
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseAwaitingInput Phase = "awaiting_input"
	PhaseSubmitting    Phase = "submitting"
	PhaseSuccess       Phase = "success"
	PhaseFailure       Phase = "failure"
)

var (
	ErrUnknownToken       = errors.New("unknown token for network")
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrNetworkMismatch    = errors.New("network does not match escrow")
	ErrAlreadyApproved    = model.ErrMilestoneAlreadyApproved
	ErrNotApproved        = model.ErrMilestoneNotApproved
	ErrAlreadyReleased    = model.ErrMilestoneAlreadyReleased
	ErrUnknownOperation   = errors.New("unknown operation")
)

// Executor 交易执行方
type Executor interface {
	FundEscrow(ctx context.Context, call txclient.FundCall) (*txclient.Receipt, error)
	ApproveMilestone(ctx context.Context, call txclient.MilestoneCall) (*txclient.Receipt, error)
	ReleaseFunds(ctx context.Context, call txclient.MilestoneCall) (*txclient.Receipt, error)
}

type EscrowStore interface {
	FindOwned(ctx context.Context, escrowID, userID int) (*model.EscrowOwner, error)
}

type MilestoneStore interface {
	FindInEscrow(ctx context.Context, escrowID int, ref string) (*model.Milestone, error)
}

// Ledger 记录已确认的交易并写 outbox
type Ledger interface {
	RecordFunding(ctx context.Context, p mqcontracts.EscrowFundedPayload) error
	RecordApproval(ctx context.Context, p mqcontracts.MilestoneApprovedPayload) error
	RecordRelease(ctx context.Context, p mqcontracts.MilestoneReleasedPayload) error
}

type TokenRegistry interface {
	Lookup(network trustline.Network, address string) (trustline.Token, bool)
}

// Scopes 会话作用域的提供方
type Scopes interface {
	Lookup(userID int, id string) (*session.Scope, error)
}

// Deps Service 的协作方
type Deps struct {
	Escrows    EscrowStore
	Milestones MilestoneStore
	Ledger     Ledger
	Executor   Executor
	Tokens     TokenRegistry
}

// Outcome 一次流程的结果，供 HTTP 层渲染
type Outcome struct {
	Operation  string                      `json:"operation"`
	Phase      Phase                       `json:"phase"`
	TxHash     string                      `json:"tx_hash,omitempty"`
	Validation *validation.ValidationError `json:"validation,omitempty"`
	Dialogs    map[dialog.Name]bool        `json:"dialogs"`
}

type FundRequest struct {
	EscrowID     int
	Network      string
	TokenAddress string
	Amount       string
}

type MilestoneRequest struct {
	EscrowID  int
	Milestone string
}

type (
	ApproveRequest = MilestoneRequest
	ReleaseRequest = MilestoneRequest
)

// Service 按固定顺序编排 注资 / 审批 / 放款：
// 校验 → 提交 → 等待结果 → 成功后切换对话框。失败时不切换任何对话框。
type Service struct {
	scopes Scopes
	deps   Deps
	logger *zap.Logger
}

// New 创建 Service；scopes 为 nil 时返回 dialog.ErrNoProvider
func New(scopes Scopes, deps Deps, logger *zap.Logger) (*Service, error) {
	if scopes == nil {
		return nil, dialog.ErrNoProvider
	}
	if deps.Escrows == nil || deps.Milestones == nil || deps.Ledger == nil || deps.Executor == nil || deps.Tokens == nil {
		return nil, &dialog.ConfigurationError{Message: "workflow dependencies are not fully wired"}
	}
	return &Service{scopes: scopes, deps: deps, logger: logger}, nil
}

func checkScope(scope *session.Scope) error {
	if scope == nil || scope.Dialogs == nil {
		return dialog.ErrNoProvider
	}
	return nil
}

// Fund 注资
func (s *Service) Fund(ctx context.Context, scope *session.Scope, req FundRequest) (*Outcome, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("session_id", scope.ID),
		zap.Int("escrow_id", req.EscrowID),
	)

	amount := validation.ValidateFundingAmount(req.Amount)
	if !amount.OK() {
		return s.rejected(scope, mqcontracts.OperationFund, amount.Err)
	}

	escrow, err := s.deps.Escrows.FindOwned(ctx, req.EscrowID, scope.UserID)
	if err != nil {
		return nil, err
	}
	token, err := s.resolveToken(escrow, req.Network, req.TokenAddress)
	if err != nil {
		return nil, err
	}
	base, verr := baseUnits(token, amount.Value)
	if verr != nil {
		return s.rejected(scope, mqcontracts.OperationFund, verr)
	}

	call := txclient.FundCall{
		SessionID:    scope.ID,
		UserID:       scope.UserID,
		EscrowID:     escrow.ID,
		ContractID:   escrow.ContractID,
		Network:      string(token.Network),
		TokenAddress: token.Address,
		Amount:       amount.Value,
		AmountBase:   base,
	}

	log.Info("Submitting escrow funding",
		zap.String("token", token.Name),
		zap.Int64("amount_base", call.AmountBase),
	)
	receipt, err := s.deps.Executor.FundEscrow(ctx, call)
	if err != nil {
		return s.failed(ctx, scope, mqcontracts.OperationFund, err)
	}
	if receipt.Pending() {
		return s.pending(scope, mqcontracts.OperationFund, receipt)
	}

	if err := s.deps.Ledger.RecordFunding(ctx, mqcontracts.EscrowFundedPayload{
		EscrowID:     escrow.ID,
		UserID:       scope.UserID,
		Network:      string(token.Network),
		TokenAddress: token.Address,
		AmountBase:   call.AmountBase,
		TxHash:       receipt.TxHash,
		TraceID:      trace.FromContext(ctx),
	}); err != nil {
		return nil, fmt.Errorf("record funding: %w", err)
	}
	return s.succeeded(scope, mqcontracts.OperationFund, receipt.TxHash)
}

// Approve 审批里程碑
func (s *Service) Approve(ctx context.Context, scope *session.Scope, req ApproveRequest) (*Outcome, error) {
	return s.milestoneFlow(ctx, scope, mqcontracts.OperationApprove, req)
}

// Release 里程碑放款
func (s *Service) Release(ctx context.Context, scope *session.Scope, req ReleaseRequest) (*Outcome, error) {
	return s.milestoneFlow(ctx, scope, mqcontracts.OperationRelease, req)
}

func (s *Service) milestoneFlow(ctx context.Context, scope *session.Scope, op string, req MilestoneRequest) (*Outcome, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("session_id", scope.ID),
		zap.String("operation", op),
		zap.Int("escrow_id", req.EscrowID),
	)

	selection := validation.ValidateMilestoneSelection(req.Milestone)
	if !selection.OK() {
		return s.rejected(scope, op, selection.Err)
	}

	escrow, err := s.deps.Escrows.FindOwned(ctx, req.EscrowID, scope.UserID)
	if err != nil {
		return nil, err
	}
	milestone, err := s.deps.Milestones.FindInEscrow(ctx, escrow.ID, selection.Value.String())
	if err != nil {
		return nil, err
	}
	if err := checkMilestone(op, milestone); err != nil {
		return nil, err
	}

	call := txclient.MilestoneCall{
		SessionID:  scope.ID,
		UserID:     scope.UserID,
		EscrowID:   escrow.ID,
		ContractID: escrow.ContractID,
		Milestone:  selection.Value,
	}

	log.Info("Submitting milestone operation", zap.Int("milestone_id", milestone.ID))
	var receipt *txclient.Receipt
	if op == mqcontracts.OperationApprove {
		receipt, err = s.deps.Executor.ApproveMilestone(ctx, call)
	} else {
		receipt, err = s.deps.Executor.ReleaseFunds(ctx, call)
	}
	if err != nil {
		return s.failed(ctx, scope, op, err)
	}
	if receipt.Pending() {
		return s.pending(scope, op, receipt)
	}

	if err := s.record(ctx, op, escrow.ID, milestone.ID, scope.UserID, receipt.TxHash); err != nil {
		return nil, err
	}
	return s.succeeded(scope, op, receipt.TxHash)
}

func checkMilestone(op string, m *model.Milestone) error {
	switch op {
	case mqcontracts.OperationApprove:
		return m.CanApprove()
	case mqcontracts.OperationRelease:
		return m.CanRelease()
	}
	return nil
}

// baseUnits 换算结果必须为正且不溢出，否则按金额校验失败处理
func baseUnits(token trustline.Token, amount validation.FundingAmount) (int64, *validation.ValidationError) {
	base, err := token.ToBaseUnits(amount.Float64())
	switch {
	case err == nil:
		return base, nil
	case errors.Is(err, trustline.ErrAmountOutOfRange):
		return 0, validation.AmountOutOfRange()
	default:
		return 0, validation.AmountTooSmall()
	}
}

func (s *Service) record(ctx context.Context, op string, escrowID, milestoneID, userID int, txHash string) error {
	var err error
	switch op {
	case mqcontracts.OperationApprove:
		err = s.deps.Ledger.RecordApproval(ctx, mqcontracts.MilestoneApprovedPayload{
			EscrowID:    escrowID,
			MilestoneID: milestoneID,
			UserID:      userID,
			TxHash:      txHash,
			TraceID:     trace.FromContext(ctx),
		})
	case mqcontracts.OperationRelease:
		err = s.deps.Ledger.RecordRelease(ctx, mqcontracts.MilestoneReleasedPayload{
			EscrowID:    escrowID,
			MilestoneID: milestoneID,
			UserID:      userID,
			TxHash:      txHash,
			TraceID:     trace.FromContext(ctx),
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	if err != nil {
		return fmt.Errorf("record %s: %w", op, err)
	}
	return nil
}

func (s *Service) resolveToken(escrow *model.EscrowOwner, network, address string) (trustline.Token, error) {
	net := trustline.Network(escrow.Network)
	if network != "" {
		parsed, ok := trustline.ParseNetwork(network)
		if !ok {
			return trustline.Token{}, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
		}
		if parsed != net {
			return trustline.Token{}, ErrNetworkMismatch
		}
	}
	if address == "" {
		address = escrow.TokenAddress
	}

	token, ok := s.deps.Tokens.Lookup(net, address)
	if !ok {
		return trustline.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, address)
	}
	return token, nil
}
