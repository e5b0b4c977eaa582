package model

import (
	"errors"
	"time"
)

var (
	ErrMilestoneAlreadyApproved = errors.New("milestone already approved")
	ErrMilestoneNotApproved     = errors.New("milestone not approved")
	ErrMilestoneAlreadyReleased = errors.New("milestone already released")
)

type Project struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"` // active / completed / cancelled
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Milestone struct {
	ID          int       `json:"id"`
	ProjectID   int       `json:"project_id"`
	EscrowID    int       `json:"escrow_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PhaseOrder  int       `json:"phase_order"`
	Status      string    `json:"status"` // pending / in_progress / completed
	Approved    bool      `json:"approved"`
	Released    bool      `json:"released"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MilestoneStatus 供进度计算使用
func (m Milestone) MilestoneStatus() string { return m.Status }

// CanApprove 已审批的里程碑不能再次审批
func (m Milestone) CanApprove() error {
	if m.Approved {
		return ErrMilestoneAlreadyApproved
	}
	return nil
}

// CanRelease 只有已审批且未放款的里程碑可以放款
func (m Milestone) CanRelease() error {
	if m.Released {
		return ErrMilestoneAlreadyReleased
	}
	if !m.Approved {
		return ErrMilestoneNotApproved
	}
	return nil
}
