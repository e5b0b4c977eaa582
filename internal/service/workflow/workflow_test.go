package workflow

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "escrowflow/contracts/mq"
	"escrowflow/internal/dialog"
	"escrowflow/internal/model"
	"escrowflow/internal/repository"
	"escrowflow/internal/service/txclient"
	"escrowflow/internal/session"
	"escrowflow/internal/trustline"
	"escrowflow/internal/validation"
)

const usdcTestnet = "GBBD47IF6LWK7P7MDEVSCWR7DPUWV3NY3DTQEVFL4NAT4AQH3ZLLFLA5"

type fakeEscrows struct{}

func (fakeEscrows) FindOwned(_ context.Context, escrowID, userID int) (*model.EscrowOwner, error) {
	if escrowID != 3 || userID != 7 {
		return nil, repository.ErrNotFound
	}
	return &model.EscrowOwner{
		Escrow: model.Escrow{ID: 3, ProjectID: 1, ContractID: "C3", Network: "testnet", TokenAddress: usdcTestnet},
		UserID: 7,
	}, nil
}

type fakeMilestones struct {
	byID map[string]*model.Milestone
}

func (f fakeMilestones) FindInEscrow(_ context.Context, _ int, ref string) (*model.Milestone, error) {
	m, ok := f.byID[ref]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m, nil
}

// fakeLedger 与真实 ledger 一样在写入时推进里程碑状态
type fakeLedger struct {
	milestones map[string]*model.Milestone
	funded     []mqcontracts.EscrowFundedPayload
	approved   []mqcontracts.MilestoneApprovedPayload
	released   []mqcontracts.MilestoneReleasedPayload
	err        error
}

func (l *fakeLedger) RecordFunding(_ context.Context, p mqcontracts.EscrowFundedPayload) error {
	if l.err != nil {
		return l.err
	}
	l.funded = append(l.funded, p)
	return nil
}

func (l *fakeLedger) RecordApproval(_ context.Context, p mqcontracts.MilestoneApprovedPayload) error {
	if l.err != nil {
		return l.err
	}
	if m, ok := l.milestones[strconv.Itoa(p.MilestoneID)]; ok {
		if err := m.CanApprove(); err != nil {
			return err
		}
		m.Approved = true
	}
	l.approved = append(l.approved, p)
	return nil
}

func (l *fakeLedger) RecordRelease(_ context.Context, p mqcontracts.MilestoneReleasedPayload) error {
	if l.err != nil {
		return l.err
	}
	if m, ok := l.milestones[strconv.Itoa(p.MilestoneID)]; ok {
		if err := m.CanRelease(); err != nil {
			return err
		}
		m.Released = true
	}
	l.released = append(l.released, p)
	return nil
}

type fakeExecutor struct {
	receipt *txclient.Receipt
	err     error
	calls   int
	fund    []txclient.FundCall
}

func (e *fakeExecutor) result() (*txclient.Receipt, error) {
	e.calls++
	return e.receipt, e.err
}

func (e *fakeExecutor) FundEscrow(_ context.Context, call txclient.FundCall) (*txclient.Receipt, error) {
	e.fund = append(e.fund, call)
	return e.result()
}

func (e *fakeExecutor) ApproveMilestone(context.Context, txclient.MilestoneCall) (*txclient.Receipt, error) {
	return e.result()
}

func (e *fakeExecutor) ReleaseFunds(context.Context, txclient.MilestoneCall) (*txclient.Receipt, error) {
	return e.result()
}

type fixture struct {
	svc      *Service
	sessions *session.Manager
	scope    *session.Scope
	ledger   *fakeLedger
	exec     *fakeExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions := session.NewManager(16, time.Minute, zap.NewNop())
	scope, err := sessions.Mount(7)
	require.NoError(t, err)

	milestones := map[string]*model.Milestone{
		"1": {ID: 1, EscrowID: 3, Status: "completed", Approved: true},
		"2": {ID: 2, EscrowID: 3, Status: "in_progress"},
		"4": {ID: 4, EscrowID: 3, Status: "completed", Approved: true, Released: true},
	}
	ledger := &fakeLedger{milestones: milestones}
	exec := &fakeExecutor{receipt: &txclient.Receipt{Status: txclient.StatusConfirmed, TxHash: "0xabc"}}
	svc, err := New(sessions, Deps{
		Escrows:    fakeEscrows{},
		Milestones: fakeMilestones{byID: milestones},
		Ledger:     ledger,
		Executor:   exec,
		Tokens:     trustline.Default(),
	}, zap.NewNop())
	require.NoError(t, err)

	return &fixture{svc: svc, sessions: sessions, scope: scope, ledger: ledger, exec: exec}
}

func (f *fixture) open(t *testing.T, n dialog.Name) bool {
	open, err := f.scope.Dialogs.IsOpen(n)
	require.NoError(t, err)
	return open
}

func TestNewWithoutProvider(t *testing.T) {
	_, err := New(nil, Deps{}, zap.NewNop())
	var cfgErr *dialog.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, dialog.ErrNoProvider)
}

func TestFundSuccessTransitionsDialogs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.scope.Dialogs.Open(dialog.Fund))

	out, err := f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, Network: "testnet", TokenAddress: usdcTestnet, Amount: "12.5"})
	require.NoError(t, err)

	assert.Equal(t, PhaseSuccess, out.Phase)
	assert.Equal(t, "0xabc", out.TxHash)
	assert.False(t, out.Dialogs[dialog.Fund])
	assert.True(t, out.Dialogs[dialog.Success])

	require.Len(t, f.ledger.funded, 1)
	assert.Equal(t, int64(125_000_000), f.ledger.funded[0].AmountBase)
	require.Len(t, f.exec.fund, 1)
	assert.Equal(t, 12.5, f.exec.fund[0].Amount.Float64())
}

func TestFundValidationNeverCallsExecutor(t *testing.T) {
	for _, amount := range []string{"", "abc", "0", "-5"} {
		f := newFixture(t)
		require.NoError(t, f.scope.Dialogs.Open(dialog.Fund))

		out, err := f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, Amount: amount})
		require.NoError(t, err)
		assert.Equal(t, PhaseAwaitingInput, out.Phase)
		require.NotNil(t, out.Validation)
		assert.Equal(t, 0, f.exec.calls, "amount %q", amount)
		assert.True(t, f.open(t, dialog.Fund))
		assert.False(t, f.open(t, dialog.Success))
	}
}

func TestFundRejectsUnrepresentableBaseUnits(t *testing.T) {
	cases := []struct {
		amount string
		code   validation.Code
	}{
		{"1e12", validation.CodeOutOfRange},
		{"1e300", validation.CodeOutOfRange},
		{"0.00000001", validation.CodeNotPositive},
		{"1e-300", validation.CodeNotPositive},
	}
	for _, tc := range cases {
		f := newFixture(t)
		require.NoError(t, f.scope.Dialogs.Open(dialog.Fund))

		out, err := f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, Amount: tc.amount})
		require.NoError(t, err)
		assert.Equal(t, PhaseAwaitingInput, out.Phase, tc.amount)
		require.NotNil(t, out.Validation, tc.amount)
		assert.Equal(t, tc.code, out.Validation.Code, tc.amount)
		assert.Equal(t, 0, f.exec.calls, tc.amount)
		assert.Empty(t, f.ledger.funded, tc.amount)
		assert.True(t, f.open(t, dialog.Fund))
	}
}

func TestFundValidationCodes(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, Amount: "abc"})
	require.NoError(t, err)
	assert.Equal(t, validation.CodeInvalidType, out.Validation.Code)
}

func TestFundUnknownToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, TokenAddress: "GNOPE", Amount: "1"})
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.Equal(t, 0, f.exec.calls)
}

func TestFundNetworkMismatch(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, Network: "mainnet", Amount: "1"})
	assert.ErrorIs(t, err, ErrNetworkMismatch)

	_, err = f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, Network: "devnet", Amount: "1"})
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestFundFailureIsFailClosed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.scope.Dialogs.Open(dialog.Fund))
	opErr := &txclient.OperationError{Operation: "fund", Message: "rejected"}
	f.exec.err = opErr

	out, err := f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, Amount: "1"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, opErr)
	assert.True(t, f.open(t, dialog.Fund))
	assert.False(t, f.open(t, dialog.Success))
	assert.Empty(t, f.ledger.funded)
}

func TestFundPendingDoesNotTransition(t *testing.T) {
	f := newFixture(t)
	f.exec.receipt = &txclient.Receipt{Status: txclient.StatusPending, TxHash: "0xpending"}

	out, err := f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, PhaseSubmitting, out.Phase)
	assert.False(t, out.Dialogs[dialog.Success])
	assert.Empty(t, f.ledger.funded)
}

func TestFundLedgerFailureSkipsTransition(t *testing.T) {
	f := newFixture(t)
	f.ledger.err = errors.New("db down")

	_, err := f.svc.Fund(context.Background(), f.scope, FundRequest{EscrowID: 3, Amount: "1"})
	require.Error(t, err)
	assert.False(t, f.open(t, dialog.Success))
}

func TestApproveOpensSecondDialog(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Approve(context.Background(), f.scope, ApproveRequest{EscrowID: 3, Milestone: "2"})
	require.NoError(t, err)
	assert.Equal(t, PhaseSuccess, out.Phase)
	assert.True(t, out.Dialogs[dialog.Second])
	require.Len(t, f.ledger.approved, 1)
	assert.Equal(t, 2, f.ledger.approved[0].MilestoneID)
}

func TestApproveRequiresSelection(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Approve(context.Background(), f.scope, ApproveRequest{EscrowID: 3, Milestone: " "})
	require.NoError(t, err)
	assert.Equal(t, validation.CodeRequired, out.Validation.Code)
	assert.Equal(t, 0, f.exec.calls)
	assert.False(t, out.Dialogs[dialog.Second])
}

func TestApproveRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Approve(context.Background(), f.scope, ApproveRequest{EscrowID: 3, Milestone: "1"})
	assert.ErrorIs(t, err, ErrAlreadyApproved)

	_, err = f.svc.Approve(context.Background(), f.scope, ApproveRequest{EscrowID: 3, Milestone: "99"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.Approve(context.Background(), f.scope, ApproveRequest{EscrowID: 8, Milestone: "2"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 0, f.exec.calls)
}

func TestReleaseClosesSecondOpensSuccess(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.scope.Dialogs.Open(dialog.Second))

	out, err := f.svc.Release(context.Background(), f.scope, ReleaseRequest{EscrowID: 3, Milestone: "1"})
	require.NoError(t, err)
	assert.False(t, out.Dialogs[dialog.Second])
	assert.True(t, out.Dialogs[dialog.Success])
	require.Len(t, f.ledger.released, 1)
}

func TestReleaseRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Release(context.Background(), f.scope, ReleaseRequest{EscrowID: 3, Milestone: "2"})
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = f.svc.Release(context.Background(), f.scope, ReleaseRequest{EscrowID: 3, Milestone: "4"})
	assert.ErrorIs(t, err, ErrAlreadyReleased)
}

func TestNilScope(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Fund(context.Background(), nil, FundRequest{EscrowID: 3, Amount: "1"})
	assert.ErrorIs(t, err, dialog.ErrNoProvider)
	_, err = f.svc.Approve(context.Background(), &session.Scope{}, ApproveRequest{EscrowID: 3, Milestone: "2"})
	assert.ErrorIs(t, err, dialog.ErrNoProvider)
}

func TestSettleSuccessAppliesTransition(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Settle(context.Background(), mqcontracts.TxSettledPayload{
		SessionID: f.scope.ID,
		UserID:    7,
		EscrowID:  3,
		Operation: mqcontracts.OperationApprove,
		Milestone: "2",
		Success:   true,
		TxHash:    "0xlate",
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Dialogs[dialog.Second])
	require.Len(t, f.ledger.approved, 1)
	assert.Equal(t, "0xlate", f.ledger.approved[0].TxHash)
}

func TestSettleFundRecordsAmount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Settle(context.Background(), mqcontracts.TxSettledPayload{
		SessionID: f.scope.ID,
		UserID:    7,
		EscrowID:  3,
		Operation: mqcontracts.OperationFund,
		Amount:    "2",
		Success:   true,
		TxHash:    "0xfund",
	})
	require.NoError(t, err)
	require.Len(t, f.ledger.funded, 1)
	assert.Equal(t, int64(20_000_000), f.ledger.funded[0].AmountBase)
	assert.True(t, f.open(t, dialog.Success))
}

func TestSettleFailureOpensNothing(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Settle(context.Background(), mqcontracts.TxSettledPayload{
		SessionID: f.scope.ID,
		UserID:    7,
		EscrowID:  3,
		Operation: mqcontracts.OperationRelease,
		Milestone: "1",
		Success:   false,
		Error:     "reverted",
	})
	require.NoError(t, err)
	assert.Nil(t, out)

	snap, _ := f.scope.Dialogs.Snapshot()
	for _, open := range snap {
		assert.False(t, open)
	}
	assert.Empty(t, f.ledger.released)
}

func TestSettleAfterUnmountIsTolerated(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sessions.Unmount(7, f.scope.ID))

	out, err := f.svc.Settle(context.Background(), mqcontracts.TxSettledPayload{
		SessionID: f.scope.ID,
		UserID:    7,
		EscrowID:  3,
		Operation: mqcontracts.OperationRelease,
		Milestone: "1",
		Success:   true,
		TxHash:    "0xlate",
	})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Len(t, f.ledger.released, 1)
	assert.False(t, f.open(t, dialog.Success))
}

func TestSettleUnknownOperation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Settle(context.Background(), mqcontracts.TxSettledPayload{Operation: "refund", Success: true})
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestSettleRejectsUnrepresentableAmount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Settle(context.Background(), mqcontracts.TxSettledPayload{
		SessionID: f.scope.ID,
		UserID:    7,
		EscrowID:  3,
		Operation: mqcontracts.OperationFund,
		Amount:    "1e12",
		Success:   true,
		TxHash:    "0xhuge",
	})
	var verr *validation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, validation.CodeOutOfRange, verr.Code)
	assert.Empty(t, f.ledger.funded)
	assert.False(t, f.open(t, dialog.Success))
}

func TestSettleSameApprovalTwice(t *testing.T) {
	f := newFixture(t)
	settle := func(txHash string) error {
		_, err := f.svc.Settle(context.Background(), mqcontracts.TxSettledPayload{
			SessionID: f.scope.ID,
			UserID:    7,
			EscrowID:  3,
			Operation: mqcontracts.OperationApprove,
			Milestone: "2",
			Success:   true,
			TxHash:    txHash,
		})
		return err
	}

	require.NoError(t, settle("0xa"))
	assert.ErrorIs(t, settle("0xb"), ErrAlreadyApproved)

	require.Len(t, f.ledger.approved, 1)
	assert.Equal(t, "0xa", f.ledger.approved[0].TxHash)
}

func TestSettleReleaseOfUnapprovedMilestone(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Settle(context.Background(), mqcontracts.TxSettledPayload{
		SessionID: f.scope.ID,
		UserID:    7,
		EscrowID:  3,
		Operation: mqcontracts.OperationRelease,
		Milestone: "2",
		Success:   true,
		TxHash:    "0xrelease",
	})
	assert.ErrorIs(t, err, ErrNotApproved)
	assert.Empty(t, f.ledger.released)
	assert.False(t, f.open(t, dialog.Success))
}
