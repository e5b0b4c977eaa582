package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"escrowflow/pkg/trace"
)

// NewEvent 构造待发送的 outbox 事件。
// payload 为 JSON 对象且缺少 trace_id 时，补上 ctx 中的 trace_id，dispatcher 发布时据此恢复 trace。
func NewEvent(ctx context.Context, aggregateType string, aggregateID *int64, routingKey string, payload any) (*Event, error) {
	if routingKey == "" {
		return nil, fmt.Errorf("outbox event for %s has no routing key", aggregateType)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		payloadJSON = withTraceID(payloadJSON, traceID)
	}

	return &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}, nil
}

// InsertEventInTx 在业务事务中写入 outbox，与业务更新一起提交或回滚
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID *int64,
	routingKey string,
	payload any,
) error {
	event, err := NewEvent(ctx, aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return err
	}
	return repo.InsertEvent(ctx, tx, event)
}

func withTraceID(payload []byte, traceID string) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return payload
	}
	if existing, ok := fields["trace_id"]; ok && string(existing) != `""` && string(existing) != "null" {
		return payload
	}
	fields["trace_id"], _ = json.Marshal(traceID)
	out, err := json.Marshal(fields)
	if err != nil {
		return payload
	}
	return out
}
