package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/koreops-ai/sas-api/pkg/storage"
	_ "github.com/lib/pq"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore implements storage.Store over Postgres. The same type
// wraps either a *sqlx.DB or a *sqlx.Tx so transaction-scoped stores share
// every query.
type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveWorkflow creates a new workflow and returns its ID (no units)
func (s *PostgresStore) SaveWorkflow(w models.Workflow) (int64, error) {
	var wfID int64
	err := s.db.QueryRowx(`
		INSERT INTO workflows (name, owner, status, progress, require_review, module_types, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		w.Name, w.Owner, w.Status, w.Progress, w.RequireReview, w.ModuleTypes, w.CreatedAt, w.UpdatedAt).Scan(&wfID)
	if err != nil {
		return 0, fmt.Errorf("save workflow: %w", err)
	}
	return wfID, nil
}

func (s *PostgresStore) GetWorkflow(id int64) (models.Workflow, error) {
	var wf models.Workflow
	err := s.db.Get(&wf, "SELECT * FROM workflows WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Workflow{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Workflow{}, fmt.Errorf("get workflow %d: %w", id, err)
	}
	return wf, nil
}

func (s *PostgresStore) ListWorkflows() ([]models.Workflow, error) {
	workflows := []models.Workflow{}
	err := s.db.Select(&workflows, "SELECT * FROM workflows ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	return workflows, nil
}

// UpdateWorkflowStatus updates status and progress; started_at is stamped
// on the first transition to RUNNING, completed_at on any terminal status.
func (s *PostgresStore) UpdateWorkflowStatus(id int64, status models.WorkflowStatus, progress int) error {
	_, err := s.db.Exec(`
		UPDATE workflows
		SET status = $1,
		progress = $2,
		updated_at = CURRENT_TIMESTAMP,
		started_at = CASE WHEN $3 = 'RUNNING' AND started_at IS NULL THEN CURRENT_TIMESTAMP ELSE started_at END,
		completed_at = CASE WHEN $4 IN ('COMPLETED', 'FAILED', 'CANCELLED') AND completed_at IS NULL THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = $5`,
		// Postgres treats the parameters inside CASE clauses as separate, so status repeats
		status, progress, status, status, id)
	return err
}

func (s *PostgresStore) SaveUnit(u models.Unit) (int64, error) {
	var unitID int64
	err := s.db.QueryRowx(`
		INSERT INTO units (workflow_id, module_type, status, progress, result, error_msg)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		u.WorkflowID, u.ModuleType, u.Status, u.Progress, u.Result, u.ErrorMsg).Scan(&unitID)
	if err != nil {
		return 0, fmt.Errorf("save unit: %w", err)
	}
	return unitID, nil
}

func (s *PostgresStore) GetUnit(id int64) (models.Unit, error) {
	var unit models.Unit
	err := s.db.Get(&unit, "SELECT * FROM units WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Unit{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Unit{}, err
	}
	return unit, nil
}

func (s *PostgresStore) GetUnitByType(workflowID int64, moduleType string) (models.Unit, error) {
	var unit models.Unit
	err := s.db.Get(&unit, "SELECT * FROM units WHERE workflow_id = $1 AND module_type = $2", workflowID, moduleType)
	if err == sql.ErrNoRows {
		return models.Unit{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Unit{}, err
	}
	return unit, nil
}

func (s *PostgresStore) ListUnits(workflowID int64) ([]models.Unit, error) {
	units := []models.Unit{}
	err := s.db.Select(&units, "SELECT * FROM units WHERE workflow_id = $1 ORDER BY id", workflowID)
	if err != nil {
		return nil, fmt.Errorf("list units for workflow %d: %w", workflowID, err)
	}
	return units, nil
}

func (s *PostgresStore) UpdateUnitStatus(id int64, status models.UnitStatus, errorMsg string) error {
	_, err := s.db.Exec(`
		UPDATE units
		SET status = $1,
		error_msg = $2,
		started_at = CASE WHEN $3 = 'RUNNING' THEN CURRENT_TIMESTAMP ELSE started_at END,
		finished_at = CASE WHEN $4 IN ('COMPLETED', 'APPROVED', 'SKIPPED', 'FAILED', 'BLOCKED') THEN CURRENT_TIMESTAMP ELSE finished_at END
		WHERE id = $5`,
		status, errorMsg, status, status, id)
	return err
}

func (s *PostgresStore) UpdateUnitResult(id int64, status models.UnitStatus, result []byte) error {
	_, err := s.db.Exec(`
		UPDATE units
		SET status = $1,
		result = $2,
		error_msg = '',
		finished_at = CASE WHEN $3 IN ('COMPLETED', 'APPROVED', 'SKIPPED', 'FAILED', 'BLOCKED') THEN CURRENT_TIMESTAMP ELSE finished_at END
		WHERE id = $4`,
		status, result, status, id)
	return err
}

func (s *PostgresStore) UpdateUnitProgress(id int64, progress int) error {
	_, err := s.db.Exec("UPDATE units SET progress = $1 WHERE id = $2", progress, id)
	return err
}

func (s *PostgresStore) SaveCheckpoint(c models.Checkpoint) error {
	_, err := s.db.Exec(`
		INSERT INTO checkpoints (id, workflow_id, unit_id, module_type, status, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.WorkflowID, c.UnitID, c.ModuleType, c.Status, c.Snapshot, c.CreatedAt)
	return err
}

func (s *PostgresStore) GetCheckpoint(id string) (models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.Get(&cp, "SELECT * FROM checkpoints WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Checkpoint{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Checkpoint{}, err
	}
	return cp, nil
}

func (s *PostgresStore) PendingCheckpoint(unitID int64) (models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.Get(&cp, "SELECT * FROM checkpoints WHERE unit_id = $1 AND status = 'PENDING'", unitID)
	if err == sql.ErrNoRows {
		return models.Checkpoint{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Checkpoint{}, err
	}
	return cp, nil
}

// ResolveCheckpoint is the compare-and-swap guard for checkpoint
// resolution: the UPDATE applies only while the row is still PENDING.
func (s *PostgresStore) ResolveCheckpoint(id string, status models.CheckpointStatus, action, reviewer, comment string, snapshot []byte) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE checkpoints
		SET status = $1, action = $2, reviewer = $3, comment = $4,
		snapshot = COALESCE($5, snapshot),
		resolved_at = CURRENT_TIMESTAMP
		WHERE id = $6 AND status = 'PENDING'`,
		status, action, reviewer, comment, snapshot, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *PostgresStore) SaveQueueEntry(e models.QueueEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO queue_entries (id, workflow_id, module_type, status, priority, attempts, max_attempts, error_msg, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.WorkflowID, e.ModuleType, e.Status, e.Priority, e.Attempts, e.MaxAttempts, e.ErrorMsg, e.CreatedAt)
	return err
}

func (s *PostgresStore) GetQueueEntry(id string) (models.QueueEntry, error) {
	var e models.QueueEntry
	err := s.db.Get(&e, "SELECT * FROM queue_entries WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.QueueEntry{}, storage.ErrNotFound
	}
	if err != nil {
		return models.QueueEntry{}, err
	}
	return e, nil
}

func (s *PostgresStore) ListQueueEntries(workflowID int64) ([]models.QueueEntry, error) {
	entries := []models.QueueEntry{}
	err := s.db.Select(&entries, "SELECT * FROM queue_entries WHERE workflow_id = $1 ORDER BY priority DESC, created_at", workflowID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ClaimQueueEntry is a single conditional UPDATE: the subquery picks the
// highest-priority claimable row under SKIP LOCKED so two workers never
// race onto the same entry.
func (s *PostgresStore) ClaimQueueEntry(workerID string, now time.Time, ttl time.Duration) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := s.db.Get(&e, `
		UPDATE queue_entries
		SET status = 'PROCESSING',
		lease_holder = $1,
		lease_expires_at = $2,
		attempts = attempts + 1,
		started_at = COALESCE(started_at, $3)
		WHERE id = (
			SELECT id FROM queue_entries
			WHERE status = 'QUEUED' OR (status = 'PROCESSING' AND lease_expires_at < $3)
			ORDER BY priority DESC, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		workerID, now.Add(ttl), now)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim queue entry: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) UpdateQueueEntry(e models.QueueEntry) error {
	_, err := s.db.Exec(`
		UPDATE queue_entries
		SET status = $1, attempts = $2, error_msg = $3,
		lease_holder = $4, lease_expires_at = $5, completed_at = $6
		WHERE id = $7`,
		e.Status, e.Attempts, e.ErrorMsg, e.LeaseHolder, e.LeaseExpiresAt, e.CompletedAt, e.ID)
	return err
}

func (s *PostgresStore) AppendEvent(e models.Event) error {
	_, err := s.db.Exec(`
		INSERT INTO events (id, workflow_id, type, module_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.WorkflowID, e.Type, e.ModuleType, e.Payload, e.CreatedAt)
	return err
}

func (s *PostgresStore) ListEventsSince(workflowID int64, since time.Time) ([]models.Event, error) {
	events := []models.Event{}
	err := s.db.Select(&events, "SELECT * FROM events WHERE workflow_id = $1 AND created_at > $2 ORDER BY created_at", workflowID, since)
	if err != nil {
		return nil, err
	}
	return events, nil
}
