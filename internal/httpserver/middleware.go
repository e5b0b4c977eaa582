package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escrowflow/internal/handler"
	"escrowflow/pkg/logger"
	"escrowflow/pkg/metrics"
	"escrowflow/pkg/rbac"
	"escrowflow/pkg/trace"
	"escrowflow/pkg/util"
)

// AuthMiddleware 校验 Bearer JWT，把 user_id 写入 context
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		userID, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(handler.UserIDKey, userID)
		c.Next()
	}
}

// RequirePermission 中间件：要求用户具有指定权限
func RequirePermission(resolver *rbac.Resolver, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get(handler.UserIDKey)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			c.Abort()
			return
		}

		uid, ok := userID.(int)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
			c.Abort()
			return
		}

		if err := resolver.CheckPermission(uid, permission); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Next()
	}
}

// TraceMiddleware 从 X-Trace-ID / X-Request-ID 恢复或生成 trace_id
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeaders(c.GetHeader(trace.HeaderName()), c.GetHeader("X-Request-ID"))
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// AccessLog 记录请求耗时并上报 http_request_duration
func AccessLog(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), elapsed)

		logger.WithTrace(c.Request.Context(), l).Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
