package models

import "time"

type CheckpointStatus string

const (
	PendingCheckpointStatus           CheckpointStatus = "PENDING"
	ApprovedCheckpointStatus          CheckpointStatus = "APPROVED"
	RevisionRequestedCheckpointStatus CheckpointStatus = "REVISION_REQUESTED"
	RejectedCheckpointStatus          CheckpointStatus = "REJECTED"
)

// Resolution actions accepted by the checkpoint manager.
const (
	ApproveAllAction      = "APPROVE_ALL"
	ApproveSelectedAction = "APPROVE_SELECTED"
	RequestRevisionAction = "REQUEST_REVISION"
	RejectAction          = "REJECT"
)

// Checkpoint is a human-in-the-loop review gate created after a unit's
// successful execution. At most one PENDING checkpoint exists per unit.
type Checkpoint struct {
	ID         string           `json:"id" db:"id"` // UUID
	WorkflowID int64            `json:"workflow_id" db:"workflow_id"`
	UnitID     int64            `json:"unit_id" db:"unit_id"`
	ModuleType string           `json:"module_type" db:"module_type"`
	Status     CheckpointStatus `json:"status" db:"status"`
	Snapshot   []byte           `json:"snapshot,omitempty" db:"snapshot"` // Unit result at creation time
	Reviewer   string           `json:"reviewer,omitempty" db:"reviewer"` // Set on resolution
	Comment    string           `json:"comment,omitempty" db:"comment"`   // Set on resolution
	Action     string           `json:"action,omitempty" db:"action"`     // Resolution action taken
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
}
