package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "escrowflow/contracts/mq"
	"escrowflow/internal/model"
)

type fakeRow struct {
	found    bool
	approved bool
	released bool
}

func (r fakeRow) Scan(dest ...any) error {
	if !r.found {
		return pgx.ErrNoRows
	}
	*dest[0].(*bool) = r.approved
	*dest[1].(*bool) = r.released
	return nil
}

// fakeTx 只实现 markMilestone 用到的方法，UPDATE 会改写行状态
type fakeTx struct {
	pgx.Tx
	row     fakeRow
	updates int
}

func (t *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return t.row
}

func (t *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	t.updates++
	if t.row.approved {
		t.row.released = true
	}
	t.row.approved = true
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func newLedger() *LedgerRepository {
	return &LedgerRepository{logger: zap.NewNop()}
}

func TestMarkMilestoneApproveOnce(t *testing.T) {
	r := newLedger()
	tx := &fakeTx{row: fakeRow{found: true}}

	require.NoError(t, r.markMilestone(context.Background(), tx, mqcontracts.OperationApprove, 2, 3))
	assert.Equal(t, 1, tx.updates)

	err := r.markMilestone(context.Background(), tx, mqcontracts.OperationApprove, 2, 3)
	assert.ErrorIs(t, err, model.ErrMilestoneAlreadyApproved)
	assert.Equal(t, 1, tx.updates)
}

func TestMarkMilestoneReleaseRules(t *testing.T) {
	r := newLedger()

	tx := &fakeTx{row: fakeRow{found: true}}
	err := r.markMilestone(context.Background(), tx, mqcontracts.OperationRelease, 2, 3)
	assert.ErrorIs(t, err, model.ErrMilestoneNotApproved)
	assert.Zero(t, tx.updates)

	tx = &fakeTx{row: fakeRow{found: true, approved: true}}
	require.NoError(t, r.markMilestone(context.Background(), tx, mqcontracts.OperationRelease, 2, 3))
	err = r.markMilestone(context.Background(), tx, mqcontracts.OperationRelease, 2, 3)
	assert.ErrorIs(t, err, model.ErrMilestoneAlreadyReleased)
	assert.Equal(t, 1, tx.updates)
}

func TestMarkMilestoneNotFound(t *testing.T) {
	tx := &fakeTx{}
	err := newLedger().markMilestone(context.Background(), tx, mqcontracts.OperationApprove, 9, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, tx.updates)
}

func TestRecordFundingRejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []int64{0, -9223372036854775808} {
		err := newLedger().RecordFunding(context.Background(), mqcontracts.EscrowFundedPayload{EscrowID: 3, AmountBase: amount})
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
	}
}
