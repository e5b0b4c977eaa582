package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	dbcontracts "escrowflow/contracts/db"
	"escrowflow/internal/model"
	"escrowflow/internal/progress"
)

type ProjectReader interface {
	FindOwned(ctx context.Context, id, userID int) (*model.Project, error)
}

type MilestoneLister interface {
	FindByProjectID(ctx context.Context, projectID int) ([]model.Milestone, error)
}

type ProjectHandler struct {
	projects   ProjectReader
	milestones MilestoneLister
	logger     *zap.Logger
}

func NewProjectHandler(projects ProjectReader, milestones MilestoneLister, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{
		projects:   projects,
		milestones: milestones,
		logger:     logger,
	}
}

func (h *ProjectHandler) load(c *gin.Context, action string) (int, []model.Milestone, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, nil, false
	}

	projectID, err := strconv.Atoi(c.Param("id"))
	if err != nil || projectID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return 0, nil, false
	}

	ctx := c.Request.Context()
	if _, err := h.projects.FindOwned(ctx, projectID, userID); err != nil {
		respondError(c, h.logger, action, err)
		return 0, nil, false
	}

	milestones, err := h.milestones.FindByProjectID(ctx, projectID)
	if err != nil {
		respondError(c, h.logger, action, err)
		return 0, nil, false
	}
	return projectID, milestones, true
}

// GetProgress 项目完成百分比
// GET /projects/:id/progress
func (h *ProjectHandler) GetProgress(c *gin.Context) {
	projectID, milestones, ok := h.load(c, "GetProgress")
	if !ok {
		return
	}

	report := progress.Summary(milestones)
	c.JSON(http.StatusOK, dbcontracts.ProjectProgress{
		ProjectID: projectID,
		Total:     report.Total,
		Completed: report.Completed,
		Percent:   report.Percent,
	})
}

// ListMilestones 按 phase_order 返回里程碑
// GET /projects/:id/milestones
func (h *ProjectHandler) ListMilestones(c *gin.Context) {
	projectID, milestones, ok := h.load(c, "ListMilestones")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id": projectID,
		"milestones": milestones,
		"progress":   progress.Percent(milestones),
	})
}
