package repository

import (
	"context"

	"escrowflow/internal/model"
	"escrowflow/pkg/otel"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ProjectRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProjectRepository(db *pgxpool.Pool, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:     db,
		logger: logger,
	}
}

// FindOwned 查询属于 userID 的项目，不存在或不属于该用户时返回 ErrNotFound
func (r *ProjectRepository) FindOwned(ctx context.Context, id, userID int) (p *model.Project, err error) {
	ctx, span := otel.DBSpan(ctx, "select", "projects")
	defer func() { otel.EndSpan(span, err) }()

	query := `
        SELECT id, user_id, title, description, status, created_at, updated_at
        FROM projects
        WHERE id = $1 AND user_id = $2
    `
	var out model.Project
	err = r.db.QueryRow(ctx, query, id, userID).Scan(
		&out.ID,
		&out.UserID,
		&out.Title,
		&out.Description,
		&out.Status,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		err = notFound(err)
		if err != ErrNotFound {
			r.logger.Error("Failed to find project",
				zap.Int("project_id", id),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return &out, nil
}
