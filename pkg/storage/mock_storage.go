package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/koreops-ai/sas-api/pkg/models"
)

// mockStore implements Store with in-memory slices, guarded by a single
// mutex since the execution driver mutates records concurrently.
type mockStore struct {
	mu          sync.Mutex
	workflows   []models.Workflow
	units       []models.Unit
	checkpoints []models.Checkpoint
	entries     []models.QueueEntry
	events      []models.Event
	nextWfID    int64
	nextUnitID  int64
}

// NewMockStore returns an empty in-memory store for tests and examples.
func NewMockStore() Store {
	return &mockStore{}
}

func (m *mockStore) Begin() (Store, error) { return m, nil }
func (m *mockStore) Commit() error         { return nil }
func (m *mockStore) Rollback() error       { return nil }
func (m *mockStore) Close() error          { return nil }

func (m *mockStore) SaveWorkflow(w models.Workflow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextWfID++
	w.ID = m.nextWfID
	m.workflows = append(m.workflows, w)
	return w.ID, nil
}

func (m *mockStore) GetWorkflow(id int64) (models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wf := range m.workflows {
		if wf.ID == id {
			return wf, nil
		}
	}
	return models.Workflow{}, ErrNotFound
}

func (m *mockStore) ListWorkflows() ([]models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Workflow, len(m.workflows))
	copy(out, m.workflows)
	return out, nil
}

func (m *mockStore) UpdateWorkflowStatus(id int64, status models.WorkflowStatus, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.workflows {
		if m.workflows[i].ID == id {
			m.workflows[i].Status = status
			m.workflows[i].Progress = progress
			m.workflows[i].UpdatedAt = time.Now()
			if status == models.RunningWorkflowStatus && m.workflows[i].StartedAt == nil {
				now := time.Now()
				m.workflows[i].StartedAt = &now
			}
			if status.Terminal() && m.workflows[i].CompletedAt == nil {
				now := time.Now()
				m.workflows[i].CompletedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveUnit(u models.Unit) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUnitID++
	u.ID = m.nextUnitID
	m.units = append(m.units, u)
	return u.ID, nil
}

func (m *mockStore) GetUnit(id int64) (models.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.units {
		if u.ID == id {
			return u, nil
		}
	}
	return models.Unit{}, ErrNotFound
}

func (m *mockStore) GetUnitByType(workflowID int64, moduleType string) (models.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.units {
		if u.WorkflowID == workflowID && u.ModuleType == moduleType {
			return u, nil
		}
	}
	return models.Unit{}, ErrNotFound
}

func (m *mockStore) ListUnits(workflowID int64) ([]models.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Unit
	for _, u := range m.units {
		if u.WorkflowID == workflowID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateUnitStatus(id int64, status models.UnitStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.units {
		if m.units[i].ID == id {
			m.units[i].Status = status
			m.units[i].ErrorMsg = errorMsg
			now := time.Now()
			if status == models.RunningUnitStatus {
				m.units[i].StartedAt = &now
			}
			if status.Terminal() {
				m.units[i].FinishedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) UpdateUnitResult(id int64, status models.UnitStatus, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.units {
		if m.units[i].ID == id {
			m.units[i].Status = status
			m.units[i].Result = result
			m.units[i].ErrorMsg = ""
			if status.Terminal() {
				now := time.Now()
				m.units[i].FinishedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) UpdateUnitProgress(id int64, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.units {
		if m.units[i].ID == id {
			m.units[i].Progress = progress
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveCheckpoint(c models.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = append(m.checkpoints, c)
	return nil
}

func (m *mockStore) GetCheckpoint(id string) (models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.checkpoints {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Checkpoint{}, ErrNotFound
}

func (m *mockStore) PendingCheckpoint(unitID int64) (models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.checkpoints {
		if c.UnitID == unitID && c.Status == models.PendingCheckpointStatus {
			return c, nil
		}
	}
	return models.Checkpoint{}, ErrNotFound
}

func (m *mockStore) ResolveCheckpoint(id string, status models.CheckpointStatus, action, reviewer, comment string, snapshot []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.checkpoints {
		if m.checkpoints[i].ID != id {
			continue
		}
		if m.checkpoints[i].Status != models.PendingCheckpointStatus {
			return false, nil
		}
		now := time.Now()
		m.checkpoints[i].Status = status
		m.checkpoints[i].Action = action
		m.checkpoints[i].Reviewer = reviewer
		m.checkpoints[i].Comment = comment
		if snapshot != nil {
			m.checkpoints[i].Snapshot = snapshot
		}
		m.checkpoints[i].ResolvedAt = &now
		return true, nil
	}
	return false, ErrNotFound
}

func (m *mockStore) SaveQueueEntry(e models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockStore) GetQueueEntry(id string) (models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return models.QueueEntry{}, ErrNotFound
}

func (m *mockStore) ListQueueEntries(workflowID int64) ([]models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QueueEntry
	for _, e := range m.entries {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ClaimQueueEntry emulates the conditional-UPDATE claim under the store
// mutex: highest priority first, oldest first within a priority.
func (m *mockStore) ClaimQueueEntry(workerID string, now time.Time, ttl time.Duration) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i := range m.entries {
		if !models.Claimable(m.entries[i], now) {
			continue
		}
		if idx == -1 ||
			m.entries[i].Priority > m.entries[idx].Priority ||
			(m.entries[i].Priority == m.entries[idx].Priority && m.entries[i].CreatedAt.Before(m.entries[idx].CreatedAt)) {
			idx = i
		}
	}
	if idx == -1 {
		return nil, nil
	}
	expires := now.Add(ttl)
	m.entries[idx].Status = models.ProcessingQueueStatus
	m.entries[idx].LeaseHolder = workerID
	m.entries[idx].LeaseExpiresAt = &expires
	m.entries[idx].Attempts++
	if m.entries[idx].StartedAt == nil {
		m.entries[idx].StartedAt = &now
	}
	claimed := m.entries[idx]
	return &claimed, nil
}

func (m *mockStore) UpdateQueueEntry(e models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == e.ID {
			m.entries[i] = e
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) AppendEvent(e models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockStore) ListEventsSince(workflowID int64, since time.Time) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.events {
		if e.WorkflowID == workflowID && e.CreatedAt.After(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
