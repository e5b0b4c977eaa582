package repository

import (
	"context"

	"escrowflow/internal/model"
	"escrowflow/pkg/otel"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type EscrowRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewEscrowRepository(db *pgxpool.Pool, logger *zap.Logger) *EscrowRepository {
	return &EscrowRepository{
		db:     db,
		logger: logger,
	}
}

// FindOwned 查询托管，并校验所属项目属于 userID
func (r *EscrowRepository) FindOwned(ctx context.Context, escrowID, userID int) (e *model.EscrowOwner, err error) {
	ctx, span := otel.DBSpan(ctx, "select", "escrows")
	defer func() { otel.EndSpan(span, err) }()

	query := `
        SELECT e.id, e.project_id, e.contract_id, e.network, e.token_address,
               e.amount_base, e.created_at, p.user_id
        FROM escrows e
        JOIN projects p ON p.id = e.project_id
        WHERE e.id = $1 AND p.user_id = $2
    `
	var out model.EscrowOwner
	err = r.db.QueryRow(ctx, query, escrowID, userID).Scan(
		&out.ID,
		&out.ProjectID,
		&out.ContractID,
		&out.Network,
		&out.TokenAddress,
		&out.AmountBase,
		&out.CreatedAt,
		&out.UserID,
	)
	if err != nil {
		err = notFound(err)
		if err != ErrNotFound {
			r.logger.Error("Failed to find escrow",
				zap.Int("escrow_id", escrowID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return &out, nil
}
