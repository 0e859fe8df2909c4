package models

import "time"

type EventType string

const (
	UnitStartedEvent       EventType = "UNIT_STARTED"
	UnitCompletedEvent     EventType = "UNIT_COMPLETED"
	UnitFailedEvent        EventType = "UNIT_FAILED"
	CheckpointCreatedEvent EventType = "CHECKPOINT_CREATED"
	WorkflowProgressEvent  EventType = "WORKFLOW_PROGRESS"
	WorkflowTerminalEvent  EventType = "WORKFLOW_TERMINAL"
	HeartbeatEvent         EventType = "HEARTBEAT"
)

// Event is a best-effort activity notification. The event feed is a
// convenience channel for observers; the Workflow/Unit records remain the
// source of truth and consumers must tolerate gaps.
type Event struct {
	ID         string    `json:"id" db:"id"` // UUID
	WorkflowID int64     `json:"workflow_id" db:"workflow_id"`
	Type       EventType `json:"type" db:"type"`
	ModuleType string    `json:"module_type,omitempty" db:"module_type"`
	Payload    []byte    `json:"payload,omitempty" db:"payload"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
