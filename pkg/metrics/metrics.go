package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 交易服务调用延迟（毫秒）
	TxCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tx_call_latency_ms",
			Help:    "Transaction service call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10), // 50ms to ~50s
		},
		[]string{"operation", "status"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of slow database queries",
		},
		[]string{"sql"},
	)

	// 输入校验失败计数
	ValidationFailureCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_failure_count",
			Help: "Total number of rejected workflow inputs",
		},
		[]string{"field", "code"},
	)

	// 对话框状态切换计数
	DialogTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialog_transition_count",
			Help: "Total number of dialog visibility changes",
		},
		[]string{"dialog", "open"},
	)

	// 工作流结果计数
	WorkflowOutcomeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_outcome_count",
			Help: "Total number of workflow outcomes",
		},
		[]string{"operation", "phase"}, // phase: rejected, success, failure
	)

	// 交易结算事件计数
	SettlementCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tx_settlement_count",
			Help: "Total number of settlement events consumed",
		},
		[]string{"operation", "result"}, // result: success, failure, duplicate, orphaned
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordTxCallLatency 记录交易服务调用延迟
func RecordTxCallLatency(operation, status string, duration time.Duration) {
	TxCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(sql string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
}

// IncrementValidationFailure 记录一次校验失败
func IncrementValidationFailure(field, code string) {
	ValidationFailureCount.WithLabelValues(field, code).Inc()
}

// IncrementDialogTransition 记录一次对话框切换
func IncrementDialogTransition(dialog string, open bool) {
	label := "false"
	if open {
		label = "true"
	}
	DialogTransitionCount.WithLabelValues(dialog, label).Inc()
}

// IncrementWorkflowOutcome 记录一次工作流结果
func IncrementWorkflowOutcome(operation, phase string) {
	WorkflowOutcomeCount.WithLabelValues(operation, phase).Inc()
}

// IncrementSettlement 记录一次结算事件
func IncrementSettlement(operation, result string) {
	SettlementCount.WithLabelValues(operation, result).Inc()
}
