package models

import "time"

type QueueStatus string

const (
	QueuedQueueStatus     QueueStatus = "QUEUED"
	ProcessingQueueStatus QueueStatus = "PROCESSING"
	CompletedQueueStatus  QueueStatus = "COMPLETED"
	FailedQueueStatus     QueueStatus = "FAILED"
)

// QueueEntry is the durable work-list record used when units are executed
// by out-of-process workers rather than inside an Advance call.
type QueueEntry struct {
	ID             string      `json:"id" db:"id"` // UUID
	WorkflowID     int64       `json:"workflow_id" db:"workflow_id"`
	ModuleType     string      `json:"module_type" db:"module_type"`
	Status         QueueStatus `json:"status" db:"status"`
	Priority       int         `json:"priority" db:"priority"` // Higher runs first
	Attempts       int         `json:"attempts" db:"attempts"`
	MaxAttempts    int         `json:"max_attempts" db:"max_attempts"`
	ErrorMsg       string      `json:"error,omitempty" db:"error_msg"`
	LeaseHolder    string      `json:"lease_holder,omitempty" db:"lease_holder"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// Lease returns the entry's current lease, or nil if none is held.
func (e QueueEntry) Lease() *Lease {
	if e.LeaseHolder == "" || e.LeaseExpiresAt == nil {
		return nil
	}
	return &Lease{Holder: e.LeaseHolder, ExpiresAt: *e.LeaseExpiresAt}
}
