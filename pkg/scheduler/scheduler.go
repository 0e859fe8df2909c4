package scheduler

import (
	"time"

	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/koreops-ai/sas-api/pkg/modules"
	"github.com/koreops-ai/sas-api/pkg/notify"
	"github.com/koreops-ai/sas-api/pkg/storage"
	"github.com/pkg/errors"
)

// DefaultMaxConcurrent bounds how many units one Advance call runs at once.
const DefaultMaxConcurrent = 3

// Logger defines the logging interface for the Scheduler.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Authorizer decides whether an actor may resolve checkpoints for a
// workflow. Authentication itself is an external collaborator; this is the
// narrow boundary the checkpoint manager consults before mutating state.
type Authorizer interface {
	Authorize(actorID string, wf models.Workflow) error
}

// AllowAll authorizes every actor. Default for single-tenant deployments.
type AllowAll struct{}

func (AllowAll) Authorize(actorID string, wf models.Workflow) error { return nil }

// OwnerOnly authorizes only the workflow's owner.
type OwnerOnly struct{}

func (OwnerOnly) Authorize(actorID string, wf models.Workflow) error {
	if actorID != wf.Owner {
		return errors.Wrapf(ErrUnauthorized, "actor '%s' does not own workflow %d", actorID, wf.ID)
	}
	return nil
}

// Scheduler is the orchestration core: it decides which units may run,
// executes them with bounded concurrency, pauses workflows for review and
// resumes the remaining work after resolution.
type Scheduler struct {
	store         storage.Store
	registry      *modules.Registry
	notifier      notify.Notifier
	logger        Logger
	authorizer    Authorizer
	maxConcurrent int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrent bounds in-process fan-out per Advance call.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithAuthorizer replaces the default AllowAll authorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Scheduler) {
		if a != nil {
			s.authorizer = a
		}
	}
}

func NewScheduler(store storage.Store, registry *modules.Registry, notifier notify.Notifier, logger Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:         store,
		registry:      registry,
		notifier:      notifier,
		logger:        logger,
		authorizer:    AllowAll{},
		maxConcurrent: DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateWorkflow persists a workflow and one pending unit per chosen module
// type, all in one transaction. The workflow starts in DRAFT; the first
// Advance call moves it to RUNNING.
func (s *Scheduler) CreateWorkflow(name, owner string, moduleTypes []string, requireReview bool) (id int64, err error) {
	if name == "" {
		return 0, errors.New("workflow name cannot be empty")
	}
	if len(name) > 100 {
		return 0, errors.New("workflow name too long (max 100 characters)")
	}
	if len(moduleTypes) == 0 {
		return 0, errors.New("workflow needs at least one module type")
	}
	seen := make(map[string]struct{}, len(moduleTypes))
	for _, mt := range moduleTypes {
		if !modules.Known(mt) {
			return 0, errors.Errorf("unknown module type '%s'", mt)
		}
		if _, dup := seen[mt]; dup {
			return 0, errors.Errorf("duplicate module type '%s'", mt)
		}
		seen[mt] = struct{}{}
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	wf := models.Workflow{
		Name:          name,
		Owner:         owner,
		Status:        models.DraftWorkflowStatus,
		RequireReview: requireReview,
		ModuleTypes:   moduleTypes,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	id, err = txStore.SaveWorkflow(wf)
	if err != nil {
		return 0, err
	}
	for _, mt := range moduleTypes {
		unit := models.Unit{
			WorkflowID: id,
			ModuleType: mt,
			Status:     models.PendingUnitStatus,
		}
		if _, err = txStore.SaveUnit(unit); err != nil {
			return 0, errors.Wrapf(err, "failed to save unit '%s'", mt)
		}
	}
	s.logger.Infof("Created workflow '%s' with ID %d (%d units)", name, id, len(moduleTypes))
	return id, nil
}

// GetWorkflow fetches a workflow with its units.
func (s *Scheduler) GetWorkflow(workflowID int64) (models.Workflow, error) {
	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return models.Workflow{}, errors.Wrapf(err, "failed to get workflow %d", workflowID)
	}
	units, err := s.store.ListUnits(workflowID)
	if err != nil {
		return models.Workflow{}, errors.Wrapf(err, "failed to list units for workflow %d", workflowID)
	}
	wf.Units = orderUnits(wf, units)
	return wf, nil
}

func (s *Scheduler) ListWorkflows() ([]models.Workflow, error) {
	return s.store.ListWorkflows()
}
