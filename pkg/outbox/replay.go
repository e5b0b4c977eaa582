package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService 提供重放 Outbox 事件的服务：把事件重置为 pending，由 Dispatcher 重新发送
type ReplayService struct {
	repo   *Repository
	logger *zap.Logger
}

// NewReplayService 创建新的 ReplayService
func NewReplayService(repo *Repository, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		repo:   repo,
		logger: logger,
	}
}

// ReplayEvent 重放指定的事件
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	if err := s.repo.ResetEvent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to replay event %d: %w", eventID, err)
	}
	s.logger.Info("Outbox event scheduled for replay", zap.Int64("event_id", eventID))
	return nil
}

// ReplayFailedEvents 重放失败的事件，返回成功重置的数量
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	successCount := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Failed to replay event",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		successCount++
	}

	return successCount, nil
}
