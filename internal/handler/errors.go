package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escrowflow/internal/dialog"
	"escrowflow/internal/repository"
	"escrowflow/internal/service/txclient"
	"escrowflow/internal/service/workflow"
	"escrowflow/internal/session"
	"escrowflow/internal/validation"
	"escrowflow/pkg/circuitbreaker"
	"escrowflow/pkg/logger"
)

// UserIDKey AuthMiddleware 写入 gin.Context 的 key
const UserIDKey = "user_id"

func currentUserID(c *gin.Context) (int, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(int)
	return uid, ok && uid > 0
}

// respondError 把领域错误映射为 HTTP 状态码
func respondError(c *gin.Context, l *zap.Logger, action string, err error) {
	log := logger.WithTrace(c.Request.Context(), l).With(zap.String("action", action))

	var (
		verr   *validation.ValidationError
		cfgErr *dialog.ConfigurationError
		opErr  *txclient.OperationError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr})
	case errors.As(err, &cfgErr):
		log.Error("Dialog scope wiring error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": cfgErr.Error()})
	case errors.Is(err, dialog.ErrUnknownDialog),
		errors.Is(err, session.ErrScopeNotFound),
		errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrUnknownToken),
		errors.Is(err, workflow.ErrUnsupportedNetwork),
		errors.Is(err, workflow.ErrNetworkMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrAlreadyApproved),
		errors.Is(err, workflow.ErrNotApproved),
		errors.Is(err, workflow.ErrAlreadyReleased):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		log.Warn("Transaction service unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transaction service unavailable"})
	case errors.As(err, &opErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": opErr.Error()})
	default:
		log.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
