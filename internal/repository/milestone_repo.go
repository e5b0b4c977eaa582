package repository

import (
	"context"
	"strconv"

	"escrowflow/internal/model"
	"escrowflow/pkg/otel"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type MilestoneRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		logger: logger,
	}
}

const milestoneColumns = `id, project_id, escrow_id, title, description, phase_order,
               status, approved, released, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMilestone(row scanner) (model.Milestone, error) {
	var m model.Milestone
	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.EscrowID,
		&m.Title,
		&m.Description,
		&m.PhaseOrder,
		&m.Status,
		&m.Approved,
		&m.Released,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

// FindByProjectID 按 phase_order 返回项目的里程碑序列
func (r *MilestoneRepository) FindByProjectID(ctx context.Context, projectID int) (ms []model.Milestone, err error) {
	ctx, span := otel.DBSpan(ctx, "select", "milestones")
	defer func() { otel.EndSpan(span, err) }()

	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE project_id = $1
        ORDER BY phase_order ASC, id ASC
    `

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to find milestones", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	milestones := make([]model.Milestone, 0)
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			r.logger.Error("Failed to scan milestone", zap.Error(err))
			return nil, err
		}
		milestones = append(milestones, m)
	}

	return milestones, rows.Err()
}

// FindInEscrow 根据前端传入的里程碑标识（id）查找托管下的里程碑
func (r *MilestoneRepository) FindInEscrow(ctx context.Context, escrowID int, ref string) (m *model.Milestone, err error) {
	id, convErr := strconv.Atoi(ref)
	if convErr != nil || id <= 0 {
		return nil, ErrNotFound
	}

	ctx, span := otel.DBSpan(ctx, "select", "milestones")
	defer func() { otel.EndSpan(span, err) }()

	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE id = $1 AND escrow_id = $2
    `
	out, err := scanMilestone(r.db.QueryRow(ctx, query, id, escrowID))
	if err != nil {
		err = notFound(err)
		if err != ErrNotFound {
			r.logger.Error("Failed to find milestone",
				zap.Int("escrow_id", escrowID),
				zap.String("milestone", ref),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return &out, nil
}
