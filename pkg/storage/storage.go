package storage

import (
	"time"

	"github.com/koreops-ai/sas-api/pkg/models"
)

// Store defines the record-store operations the orchestration core relies
// on. Begin returns a transaction-scoped Store; Commit/Rollback apply only
// to such a scope. All mutations are narrow named operations expected to be
// atomic at the record level.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Workflow operations
	SaveWorkflow(w models.Workflow) (int64, error)
	GetWorkflow(id int64) (models.Workflow, error)
	ListWorkflows() ([]models.Workflow, error)
	UpdateWorkflowStatus(id int64, status models.WorkflowStatus, progress int) error

	// Unit operations
	SaveUnit(u models.Unit) (int64, error)
	GetUnit(id int64) (models.Unit, error)
	GetUnitByType(workflowID int64, moduleType string) (models.Unit, error)
	ListUnits(workflowID int64) ([]models.Unit, error)
	UpdateUnitStatus(id int64, status models.UnitStatus, errorMsg string) error
	UpdateUnitResult(id int64, status models.UnitStatus, result []byte) error
	UpdateUnitProgress(id int64, progress int) error

	// Checkpoint operations. ResolveCheckpoint is conditional on the
	// checkpoint still being PENDING and reports whether it applied.
	SaveCheckpoint(c models.Checkpoint) error
	GetCheckpoint(id string) (models.Checkpoint, error)
	PendingCheckpoint(unitID int64) (models.Checkpoint, error)
	ResolveCheckpoint(id string, status models.CheckpointStatus, action, reviewer, comment string, snapshot []byte) (bool, error)

	// Queue operations. ClaimQueueEntry atomically selects the
	// highest-priority claimable entry, stamps the lease and increments the
	// attempt count; it returns nil when nothing is claimable.
	SaveQueueEntry(e models.QueueEntry) error
	GetQueueEntry(id string) (models.QueueEntry, error)
	ListQueueEntries(workflowID int64) ([]models.QueueEntry, error)
	ClaimQueueEntry(workerID string, now time.Time, ttl time.Duration) (*models.QueueEntry, error)
	UpdateQueueEntry(e models.QueueEntry) error

	// Event operations (best-effort activity feed)
	AppendEvent(e models.Event) error
	ListEventsSince(workflowID int64, since time.Time) ([]models.Event, error)
}
