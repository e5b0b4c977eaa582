package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escrowflow/internal/service/workflow"
	"escrowflow/internal/session"
)

type EscrowWorkflow interface {
	Fund(ctx context.Context, scope *session.Scope, req workflow.FundRequest) (*workflow.Outcome, error)
	Approve(ctx context.Context, scope *session.Scope, req workflow.ApproveRequest) (*workflow.Outcome, error)
	Release(ctx context.Context, scope *session.Scope, req workflow.ReleaseRequest) (*workflow.Outcome, error)
}

type EscrowHandler struct {
	flows  EscrowWorkflow
	scopes ScopeManager
	logger *zap.Logger
}

func NewEscrowHandler(flows EscrowWorkflow, scopes ScopeManager, logger *zap.Logger) *EscrowHandler {
	return &EscrowHandler{flows: flows, scopes: scopes, logger: logger}
}

// 金额原样交给校验规则处理，数字和字符串都接受
type fundRequest struct {
	Network string `json:"network"`
	Token   string `json:"token"`
	Amount  any    `json:"amount"`
}

func amountText(v any) string {
	switch a := v.(type) {
	case nil:
		return ""
	case string:
		return a
	case float64:
		return strconv.FormatFloat(a, 'f', -1, 64)
	default:
		return fmt.Sprint(a)
	}
}

type milestoneRequest struct {
	Milestone string `json:"milestone"`
}

func escrowID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("escrow_id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escrow id"})
		return 0, false
	}
	return id, true
}

func (h *EscrowHandler) respond(c *gin.Context, action string, out *workflow.Outcome, err error) {
	if err != nil {
		respondError(c, h.logger, action, err)
		return
	}
	switch {
	case out.Validation != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": out.Validation, "outcome": out})
	case out.Phase == workflow.PhaseSubmitting:
		c.JSON(http.StatusAccepted, out)
	default:
		c.JSON(http.StatusOK, out)
	}
}

// Fund 注资
// POST /sessions/:sid/escrows/:escrow_id/fund
func (h *EscrowHandler) Fund(c *gin.Context) {
	s, ok := scope(c, h.scopes, h.logger, "Fund")
	if !ok {
		return
	}
	id, ok := escrowID(c)
	if !ok {
		return
	}

	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.logger.Info("Fund request received",
		zap.String("session_id", s.ID),
		zap.Int("escrow_id", id),
		zap.String("network", req.Network),
	)
	out, err := h.flows.Fund(c.Request.Context(), s, workflow.FundRequest{
		EscrowID:     id,
		Network:      req.Network,
		TokenAddress: req.Token,
		Amount:       amountText(req.Amount),
	})
	h.respond(c, "Fund", out, err)
}

// Approve 审批里程碑
// POST /sessions/:sid/escrows/:escrow_id/approve
func (h *EscrowHandler) Approve(c *gin.Context) {
	h.milestone(c, "Approve", h.flows.Approve)
}

// Release 里程碑放款
// POST /sessions/:sid/escrows/:escrow_id/release
func (h *EscrowHandler) Release(c *gin.Context) {
	h.milestone(c, "Release", h.flows.Release)
}

func (h *EscrowHandler) milestone(
	c *gin.Context,
	action string,
	flow func(context.Context, *session.Scope, workflow.MilestoneRequest) (*workflow.Outcome, error),
) {
	s, ok := scope(c, h.scopes, h.logger, action)
	if !ok {
		return
	}
	id, ok := escrowID(c)
	if !ok {
		return
	}

	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.logger.Info(action+" request received",
		zap.String("session_id", s.ID),
		zap.Int("escrow_id", id),
		zap.String("milestone", req.Milestone),
	)
	out, err := flow(c.Request.Context(), s, workflow.MilestoneRequest{EscrowID: id, Milestone: req.Milestone})
	h.respond(c, action, out, err)
}
