package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"escrowflow/internal/handler"
	"escrowflow/pkg/otel"
	"escrowflow/pkg/rbac"
)

// ReadinessCheck 依赖就绪检查（DB / Redis / MQ）
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers 路由用到的全部 handler
type Handlers struct {
	Trustline *handler.TrustlineHandler
	Project   *handler.ProjectHandler
	Session   *handler.SessionHandler
	Escrow    *handler.EscrowHandler
	Admin     *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	h Handlers,
	jwtSecret string,
	resolver *rbac.Resolver,
	checks []ReadinessCheck,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), AccessLog(logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, chk := range checks {
			if err := chk.Check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": chk.Name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.GET("/trustlines", h.Trustline.ListTrustlines)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		projects := auth.Group("/projects", RequirePermission(resolver, rbac.PermissionReadProject))
		projects.GET("/:id/progress", h.Project.GetProgress)
		projects.GET("/:id/milestones", h.Project.ListMilestones)

		auth.POST("/sessions", h.Session.Mount)
		sessions := auth.Group("/sessions/:sid")
		sessions.DELETE("", h.Session.Unmount)
		sessions.GET("/dialogs", h.Session.ListDialogs)
		sessions.GET("/dialogs/:name", h.Session.GetDialog)
		sessions.PUT("/dialogs/:name", h.Session.SetDialog)

		escrows := sessions.Group("/escrows/:escrow_id")
		escrows.POST("/fund", RequirePermission(resolver, rbac.PermissionFundEscrow), h.Escrow.Fund)
		escrows.POST("/approve", RequirePermission(resolver, rbac.PermissionApproveMilestone), h.Escrow.Approve)
		escrows.POST("/release", RequirePermission(resolver, rbac.PermissionReleaseMilestone), h.Escrow.Release)

		admin := auth.Group("/admin", RequirePermission(resolver, rbac.PermissionReplayOutbox))
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

// Server 返回 http.Server，由调用方负责优雅关闭
func (r *Router) Server(port string) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
