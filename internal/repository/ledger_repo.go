package repository

import (
	"context"
	"errors"
	"fmt"

	mqcontracts "escrowflow/contracts/mq"
	"escrowflow/internal/model"
	"escrowflow/pkg/otel"
	"escrowflow/pkg/outbox"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// LedgerRepository 记录交易确认后的业务状态，并在同一事务中写入 outbox 事件
type LedgerRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewLedgerRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// RecordFunding 累加托管金额并写入 escrow.funded
func (r *LedgerRepository) RecordFunding(ctx context.Context, p mqcontracts.EscrowFundedPayload) error {
	r.logger.Debug("Recording escrow funding",
		zap.Int("escrow_id", p.EscrowID),
		zap.Int64("amount_base", p.AmountBase),
	)
	if p.AmountBase <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveAmount, p.AmountBase)
	}

	return r.inTx(ctx, "escrows", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            UPDATE escrows
            SET amount_base = amount_base + $2, token_address = $3
            WHERE id = $1
        `, p.EscrowID, p.AmountBase, p.TokenAddress)
		if err != nil {
			return fmt.Errorf("failed to update escrow: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		escrowID := int64(p.EscrowID)
		return outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "escrow", &escrowID, mqcontracts.RoutingKeyEscrowFunded, p)
	})
}

// RecordApproval 标记里程碑已审批并写入 milestone.approved
func (r *LedgerRepository) RecordApproval(ctx context.Context, p mqcontracts.MilestoneApprovedPayload) error {
	r.logger.Debug("Recording milestone approval",
		zap.Int("escrow_id", p.EscrowID),
		zap.Int("milestone_id", p.MilestoneID),
	)

	return r.inTx(ctx, "milestones", func(tx pgx.Tx) error {
		if err := r.markMilestone(ctx, tx, mqcontracts.OperationApprove, p.MilestoneID, p.EscrowID); err != nil {
			return err
		}
		id := int64(p.MilestoneID)
		return outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "milestone", &id, mqcontracts.RoutingKeyMilestoneApproved, p)
	})
}

// RecordRelease 标记里程碑已放款并写入 milestone.released
func (r *LedgerRepository) RecordRelease(ctx context.Context, p mqcontracts.MilestoneReleasedPayload) error {
	r.logger.Debug("Recording milestone release",
		zap.Int("escrow_id", p.EscrowID),
		zap.Int("milestone_id", p.MilestoneID),
	)

	return r.inTx(ctx, "milestones", func(tx pgx.Tx) error {
		if err := r.markMilestone(ctx, tx, mqcontracts.OperationRelease, p.MilestoneID, p.EscrowID); err != nil {
			return err
		}
		id := int64(p.MilestoneID)
		return outbox.InsertEventInTx(ctx, tx, r.outboxRepo, "milestone", &id, mqcontracts.RoutingKeyMilestoneReleased, p)
	})
}

// markMilestone 锁住里程碑行后再检查状态，并发的审批 / 放款只有一个能成功
func (r *LedgerRepository) markMilestone(ctx context.Context, tx pgx.Tx, op string, milestoneID, escrowID int) error {
	var m model.Milestone
	err := tx.QueryRow(ctx, `
        SELECT approved, released
        FROM milestones
        WHERE id = $1 AND escrow_id = $2
        FOR UPDATE
    `, milestoneID, escrowID).Scan(&m.Approved, &m.Released)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock milestone: %w", err)
	}

	column, check := "approved", m.CanApprove
	if op == mqcontracts.OperationRelease {
		column, check = "released", m.CanRelease
	}
	if err := check(); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
        UPDATE milestones
        SET `+column+` = TRUE, updated_at = NOW()
        WHERE id = $1 AND escrow_id = $2
    `, milestoneID, escrowID); err != nil {
		return fmt.Errorf("failed to mark milestone %s: %w", column, err)
	}
	return nil
}

func (r *LedgerRepository) inTx(ctx context.Context, table string, fn func(tx pgx.Tx) error) (err error) {
	ctx, span := otel.DBSpan(ctx, "update", table)
	defer func() { otel.EndSpan(span, err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback(ctx)

	if err = fn(tx); err != nil {
		r.logger.Error("Ledger write failed", zap.String("table", table), zap.Error(err))
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return err
	}

	r.logger.Info("Ledger write committed", zap.String("table", table))
	return nil
}
