package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type ctxKey struct{}

const headerName = "X-Trace-ID"

// GenerateTraceID 生成一个新的 trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// FromHeaders 从请求头中提取 trace_id（X-Trace-ID 优先，其次 X-Request-ID），都没有则生成新的
func FromHeaders(traceHeader, requestIDHeader string) string {
	if traceHeader != "" {
		return traceHeader
	}
	if requestIDHeader != "" {
		return requestIDHeader
	}
	return GenerateTraceID()
}

// HeaderName 返回 trace ID 的 HTTP header 名称
func HeaderName() string {
	return headerName
}
