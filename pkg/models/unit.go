package models

import "time"

type UnitStatus string

const (
	PendingUnitStatus           UnitStatus = "PENDING"
	RunningUnitStatus           UnitStatus = "RUNNING"
	AwaitingReviewUnitStatus    UnitStatus = "AWAITING_REVIEW"
	ApprovedUnitStatus          UnitStatus = "APPROVED"
	RevisionRequestedUnitStatus UnitStatus = "REVISION_REQUESTED"
	CompletedUnitStatus         UnitStatus = "COMPLETED"
	FailedUnitStatus            UnitStatus = "FAILED"
	SkippedUnitStatus           UnitStatus = "SKIPPED"
	BlockedUnitStatus           UnitStatus = "BLOCKED"
)

// Terminal reports whether the unit will never run again. BLOCKED is
// terminal: it is assigned only when no satisfiable dependency path remains.
func (s UnitStatus) Terminal() bool {
	switch s {
	case CompletedUnitStatus, ApprovedUnitStatus, SkippedUnitStatus, FailedUnitStatus, BlockedUnitStatus:
		return true
	}
	return false
}

// TerminalSuccess reports whether the unit finished with a usable result,
// i.e. dependents may consume it.
func (s UnitStatus) TerminalSuccess() bool {
	return s == CompletedUnitStatus || s == ApprovedUnitStatus
}

// Runnable reports whether the readiness engine may select the unit.
func (s UnitStatus) Runnable() bool {
	return s == PendingUnitStatus || s == RevisionRequestedUnitStatus
}

// Unit tracks one module type's execution within a workflow.
type Unit struct {
	ID         int64      `json:"id" db:"id"`
	WorkflowID int64      `json:"workflow_id" db:"workflow_id"`   // Foreign key to Workflow
	ModuleType string     `json:"module_type" db:"module_type"`   // e.g. "market_sizing"
	Status     UnitStatus `json:"status" db:"status"`             // Current lifecycle status
	Progress   int        `json:"progress" db:"progress"`         // 0-100, reported by the executor
	Result     []byte     `json:"result,omitempty" db:"result"`   // Opaque payload, set once completed/approved/awaiting review
	ErrorMsg   string     `json:"error,omitempty" db:"error_msg"` // Last error message, set only when failed
	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
