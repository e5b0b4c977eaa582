package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escrowflow/internal/dialog"
	"escrowflow/internal/session"
	"escrowflow/pkg/metrics"
)

type ScopeManager interface {
	Mount(userID int) (*session.Scope, error)
	Lookup(userID int, id string) (*session.Scope, error)
	Unmount(userID int, id string) error
}

type SessionHandler struct {
	scopes ScopeManager
	logger *zap.Logger
}

func NewSessionHandler(scopes ScopeManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{scopes: scopes, logger: logger}
}

// scope 解析当前用户的 :sid
func scope(c *gin.Context, scopes ScopeManager, l *zap.Logger, action string) (*session.Scope, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return nil, false
	}
	s, err := scopes.Lookup(userID, c.Param("sid"))
	if err != nil {
		respondError(c, l, action, err)
		return nil, false
	}
	return s, true
}

// Mount 创建会话作用域
// POST /sessions
func (h *SessionHandler) Mount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	s, err := h.scopes.Mount(userID)
	if err != nil {
		respondError(c, h.logger, "Mount", err)
		return
	}
	snap, err := s.Dialogs.Snapshot()
	if err != nil {
		respondError(c, h.logger, "Mount", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": s.ID,
		"dialogs":    snap,
	})
}

// Unmount 卸载会话作用域
// DELETE /sessions/:sid
func (h *SessionHandler) Unmount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	if err := h.scopes.Unmount(userID, c.Param("sid")); err != nil {
		respondError(c, h.logger, "Unmount", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListDialogs 所有对话框开关
// GET /sessions/:sid/dialogs
func (h *SessionHandler) ListDialogs(c *gin.Context) {
	s, ok := scope(c, h.scopes, h.logger, "ListDialogs")
	if !ok {
		return
	}
	snap, err := s.Dialogs.Snapshot()
	if err != nil {
		respondError(c, h.logger, "ListDialogs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dialogs": snap})
}

// GetDialog 单个对话框
// GET /sessions/:sid/dialogs/:name
func (h *SessionHandler) GetDialog(c *gin.Context) {
	s, ok := scope(c, h.scopes, h.logger, "GetDialog")
	if !ok {
		return
	}
	name, err := dialog.ParseName(c.Param("name"))
	if err != nil {
		respondError(c, h.logger, "GetDialog", err)
		return
	}
	st, err := s.Dialogs.State(name)
	if err != nil {
		respondError(c, h.logger, "GetDialog", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": st.Name, "is_open": st.IsOpen})
}

type setDialogRequest struct {
	Open *bool `json:"open" binding:"required"`
}

// SetDialog 打开 / 关闭对话框，重复设置相同值无副作用
// PUT /sessions/:sid/dialogs/:name
func (h *SessionHandler) SetDialog(c *gin.Context) {
	s, ok := scope(c, h.scopes, h.logger, "SetDialog")
	if !ok {
		return
	}
	name, err := dialog.ParseName(c.Param("name"))
	if err != nil {
		respondError(c, h.logger, "SetDialog", err)
		return
	}

	var req setDialogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open (bool) required"})
		return
	}

	changed, err := s.Dialogs.SetOpen(name, *req.Open)
	if err != nil {
		respondError(c, h.logger, "SetDialog", err)
		return
	}
	if changed {
		metrics.IncrementDialogTransition(string(name), *req.Open)
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "is_open": *req.Open, "changed": changed})
}
