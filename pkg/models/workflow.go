package models

import (
	"time"

	"github.com/lib/pq"
)

type WorkflowStatus string

const (
	DraftWorkflowStatus          WorkflowStatus = "DRAFT"
	RunningWorkflowStatus        WorkflowStatus = "RUNNING"
	AwaitingReviewWorkflowStatus WorkflowStatus = "AWAITING_REVIEW"
	CompletedWorkflowStatus      WorkflowStatus = "COMPLETED"
	FailedWorkflowStatus         WorkflowStatus = "FAILED"
	CancelledWorkflowStatus      WorkflowStatus = "CANCELLED"
)

// Terminal reports whether the workflow can no longer change state.
func (s WorkflowStatus) Terminal() bool {
	return s == CompletedWorkflowStatus || s == FailedWorkflowStatus || s == CancelledWorkflowStatus
}

// Workflow is one analysis run: a chosen set of module types executed on
// behalf of an owner, pausing for review when RequireReview is set.
type Workflow struct {
	ID            int64          `json:"id" db:"id"`                         // Unique identifier (PostgreSQL auto-increment)
	Name          string         `json:"name" db:"name"`                     // Descriptive name (e.g., "Acme Series A diligence")
	Owner         string         `json:"owner" db:"owner"`                   // Owning user or tenant identifier
	Status        WorkflowStatus `json:"status" db:"status"`                 // Current lifecycle status
	Progress      int            `json:"progress" db:"progress"`             // 0-100, derived from unit statuses
	RequireReview bool           `json:"require_review" db:"require_review"` // Pause for human review after each unit
	ModuleTypes   pq.StringArray `json:"module_types" db:"module_types"`     // Chosen module types, declaration order
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	Units         []Unit         `json:"units,omitempty"` // Populated at read time, not a column
}
