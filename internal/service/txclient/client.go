package txclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"escrowflow/internal/validation"
	"escrowflow/pkg/circuitbreaker"
	"escrowflow/pkg/metrics"
	"escrowflow/pkg/trace"
)

// 交易状态
const (
	StatusConfirmed = "confirmed"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)

// Receipt 交易后端返回的回执
type Receipt struct {
	Status string `json:"status"`
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

// Pending 交易已提交但尚未确认，结果稍后通过 escrow.tx.settled 送达
func (r *Receipt) Pending() bool {
	return r.Status == StatusPending
}

// OperationError 交易执行失败（后端拒绝或链上失败）
type OperationError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *OperationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed (%d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// FundCall 注资请求，金额只能来自通过校验的 FundingAmount
type FundCall struct {
	SessionID    string
	UserID       int
	EscrowID     int
	ContractID   string
	Network      string
	TokenAddress string
	Amount       validation.FundingAmount
	AmountBase   int64
}

// MilestoneCall 审批 / 放款请求
type MilestoneCall struct {
	SessionID  string
	UserID     int
	EscrowID   int
	ContractID string
	Milestone  validation.MilestoneSelection
}

type fundBody struct {
	SessionID    string `json:"session_id"`
	UserID       int    `json:"user_id"`
	EscrowID     int    `json:"escrow_id"`
	ContractID   string `json:"contract_id"`
	Network      string `json:"network"`
	TokenAddress string `json:"token_address"`
	Amount       string `json:"amount"`
	AmountBase   int64  `json:"amount_base"`
}

type milestoneBody struct {
	SessionID  string `json:"session_id"`
	UserID     int    `json:"user_id"`
	EscrowID   int    `json:"escrow_id"`
	ContractID string `json:"contract_id"`
	Milestone  string `json:"milestone"`
}

// Client 交易执行服务客户端，带熔断器
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient 创建客户端
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,                // 连续失败3次后打开
		SuccessThreshold:    2,                // 半开状态下成功2次后关闭
		Timeout:             30 * time.Second, // 打开状态持续30秒
		HalfOpenMaxRequests: 2,                // 半开状态下最多允许2个请求
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cb:     circuitbreaker.New("tx-service", cbConfig, logger),
		logger: logger,
	}
}

// FundEscrow 提交注资
func (c *Client) FundEscrow(ctx context.Context, call FundCall) (*Receipt, error) {
	return c.submit(ctx, "fund", "/v1/escrows/fund", fundBody{
		SessionID:    call.SessionID,
		UserID:       call.UserID,
		EscrowID:     call.EscrowID,
		ContractID:   call.ContractID,
		Network:      call.Network,
		TokenAddress: call.TokenAddress,
		Amount:       strconv.FormatFloat(call.Amount.Float64(), 'f', -1, 64),
		AmountBase:   call.AmountBase,
	})
}

// ApproveMilestone 提交里程碑审批
func (c *Client) ApproveMilestone(ctx context.Context, call MilestoneCall) (*Receipt, error) {
	return c.submit(ctx, "approve", "/v1/escrows/approve", milestoneBodyOf(call))
}

// ReleaseFunds 提交里程碑放款
func (c *Client) ReleaseFunds(ctx context.Context, call MilestoneCall) (*Receipt, error) {
	return c.submit(ctx, "release", "/v1/escrows/release", milestoneBodyOf(call))
}

func milestoneBodyOf(call MilestoneCall) milestoneBody {
	return milestoneBody{
		SessionID:  call.SessionID,
		UserID:     call.UserID,
		EscrowID:   call.EscrowID,
		ContractID: call.ContractID,
		Milestone:  call.Milestone.String(),
	}
}

// countsAsFailure 只有网络错误和 5xx 计入熔断，业务拒绝不计入
func countsAsFailure(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.StatusCode >= 500
	}
	return true
}

func (c *Client) submit(ctx context.Context, operation, path string, body any) (*Receipt, error) {
	var receipt *Receipt

	err := c.cb.Execute(func() error {
		start := time.Now()
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		// 传播 trace_id
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName(), traceID)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordTxCallLatency(operation, "error", time.Since(start))
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			metrics.RecordTxCallLatency(operation, "error", time.Since(start))
			return err
		}

		var r Receipt
		_ = json.Unmarshal(raw, &r)

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			metrics.RecordTxCallLatency(operation, strconv.Itoa(resp.StatusCode), time.Since(start))
			msg := r.Error
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			return &OperationError{Operation: operation, StatusCode: resp.StatusCode, Message: msg}
		}

		switch r.Status {
		case StatusConfirmed, StatusPending:
		case StatusFailed:
			metrics.RecordTxCallLatency(operation, StatusFailed, time.Since(start))
			return &OperationError{Operation: operation, Message: r.Error}
		default:
			metrics.RecordTxCallLatency(operation, "invalid", time.Since(start))
			return &OperationError{Operation: operation, StatusCode: http.StatusBadGateway, Message: "invalid receipt status " + strconv.Quote(r.Status)}
		}

		metrics.RecordTxCallLatency(operation, r.Status, time.Since(start))
		receipt = &r
		return nil
	}, countsAsFailure)

	if err != nil {
		c.logger.Warn("Transaction call failed",
			zap.String("operation", operation),
			zap.String("breaker_state", c.cb.GetState().String()),
			zap.Error(err),
		)
		return nil, err
	}

	c.logger.Info("Transaction submitted",
		zap.String("operation", operation),
		zap.String("status", receipt.Status),
		zap.String("tx_hash", receipt.TxHash),
	)
	return receipt, nil
}
