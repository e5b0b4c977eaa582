package mq

// 发布到 events exchange 的 routing key
const (
	RoutingKeyEscrowFunded      = "escrow.funded"
	RoutingKeyMilestoneApproved = "milestone.approved"
	RoutingKeyMilestoneReleased = "milestone.released"

	// 交易后端异步结算回调
	RoutingKeyTxSettled = "escrow.tx.settled"
	QueueTxSettled      = "escrow.tx.settled.q"
)

// Operation 交易操作类型
const (
	OperationFund    = "fund"
	OperationApprove = "approve"
	OperationRelease = "release"
)

type EscrowFundedPayload struct {
	EscrowID     int    `json:"escrow_id"`
	UserID       int    `json:"user_id"`
	Network      string `json:"network"`
	TokenAddress string `json:"token_address"`
	AmountBase   int64  `json:"amount_base"`
	TxHash       string `json:"tx_hash"`
	TraceID      string `json:"trace_id,omitempty"`
}

type MilestoneApprovedPayload struct {
	EscrowID    int    `json:"escrow_id"`
	MilestoneID int    `json:"milestone_id"`
	UserID      int    `json:"user_id"`
	TxHash      string `json:"tx_hash"`
	TraceID     string `json:"trace_id,omitempty"`
}

type MilestoneReleasedPayload struct {
	EscrowID    int    `json:"escrow_id"`
	MilestoneID int    `json:"milestone_id"`
	UserID      int    `json:"user_id"`
	TxHash      string `json:"tx_hash"`
	TraceID     string `json:"trace_id,omitempty"`
}

// TxSettledPayload 交易后端在 pending 交易最终确认后发布
type TxSettledPayload struct {
	SessionID string `json:"session_id"`
	UserID    int    `json:"user_id"`
	EscrowID  int    `json:"escrow_id"`
	Operation string `json:"operation"` // fund / approve / release
	Milestone string `json:"milestone,omitempty"`
	Network   string `json:"network,omitempty"`
	Token     string `json:"token,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	TxHash    string `json:"tx_hash"`
}
