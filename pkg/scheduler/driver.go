package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/koreops-ai/sas-api/pkg/modules"
	"github.com/pkg/errors"
)

// AdvanceResult reports what one scheduling pass did and where the
// workflow stands afterwards.
type AdvanceResult struct {
	Executed       []string `json:"executed"`
	Failed         []string `json:"failed"`
	Complete       bool     `json:"complete"`
	AwaitingReview bool     `json:"awaiting_review"`
	Progress       int      `json:"progress"`
}

// Advance runs one scheduling pass: compute ready units, execute them with
// bounded concurrency, record outcomes and reclassify the workflow. Calling
// it again on the same persisted state is safe; already-terminal units are
// never re-run. Unit failures are absorbed into the result, never returned
// as errors.
func (s *Scheduler) Advance(ctx context.Context, workflowID int64) (AdvanceResult, error) {
	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return AdvanceResult{}, errors.Wrapf(err, "failed to get workflow %d", workflowID)
	}
	units, err := s.store.ListUnits(workflowID)
	if err != nil {
		return AdvanceResult{}, errors.Wrapf(err, "failed to list units for workflow %d", workflowID)
	}

	if wf.Status.Terminal() {
		return s.resultFor(wf, units, nil, nil), nil
	}

	ready := ReadyUnits(wf, units)
	if len(ready) == 0 {
		return s.reclassify(ctx, wf)
	}

	// Mark the batch running up front so the persisted state reflects the
	// readiness decision before any executor starts.
	for _, u := range ready {
		if err := s.store.UpdateUnitStatus(u.ID, models.RunningUnitStatus, ""); err != nil {
			return AdvanceResult{}, errors.Wrapf(err, "failed to mark unit '%s' running", u.ModuleType)
		}
		s.publish(ctx, models.Event{WorkflowID: wf.ID, Type: models.UnitStartedEvent, ModuleType: u.ModuleType})
	}
	if wf.Status == models.DraftWorkflowStatus || wf.Status == models.AwaitingReviewWorkflowStatus {
		if err := s.store.UpdateWorkflowStatus(wf.ID, models.RunningWorkflowStatus, wf.Progress); err != nil {
			return AdvanceResult{}, errors.Wrapf(err, "failed to mark workflow %d running", wf.ID)
		}
	}

	outcomes := make(map[string]error, len(ready))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxConcurrent)
	for _, u := range ready {
		wg.Add(1)
		go func(u models.Unit) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			runErr := s.runUnit(ctx, wf, u)
			mu.Lock()
			outcomes[u.ModuleType] = runErr
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	var executed, failed []string
	for _, u := range ready {
		if outcomes[u.ModuleType] == nil {
			executed = append(executed, u.ModuleType)
		} else {
			failed = append(failed, u.ModuleType)
		}
	}
	result, err := s.finish(ctx, wf, executed, failed)
	if err != nil {
		return AdvanceResult{}, err
	}
	return result, nil
}

// runUnit executes a single running unit and records its outcome. The
// returned error is the unit's failure, already persisted; it never aborts
// sibling units.
func (s *Scheduler) runUnit(ctx context.Context, wf models.Workflow, unit models.Unit) error {
	fail := func(cause error) error {
		s.logger.Errorf("Unit '%s' of workflow %d failed: %v", unit.ModuleType, wf.ID, cause)
		if updateErr := s.store.UpdateUnitStatus(unit.ID, models.FailedUnitStatus, cause.Error()); updateErr != nil {
			s.logger.Errorf("Failed to mark unit '%s' failed: %v", unit.ModuleType, updateErr)
		}
		s.publish(ctx, models.Event{WorkflowID: wf.ID, Type: models.UnitFailedEvent, ModuleType: unit.ModuleType})
		return cause
	}

	ex, err := s.registry.Lookup(unit.ModuleType)
	if err != nil {
		return fail(err)
	}
	ec, err := s.executionContext(wf, unit)
	if err != nil {
		return fail(err)
	}
	result, err := ex.Execute(ctx, ec)
	if err != nil {
		return fail(err)
	}
	return s.recordSuccess(ctx, wf, unit, result)
}

// executionContext assembles the executor input, re-reading units from the
// store so dependency results are the authoritative persisted ones.
func (s *Scheduler) executionContext(wf models.Workflow, unit models.Unit) (modules.ExecutionContext, error) {
	units, err := s.store.ListUnits(wf.ID)
	if err != nil {
		return modules.ExecutionContext{}, errors.Wrap(err, "failed to read dependency results")
	}
	depResults := make(map[string]json.RawMessage)
	for _, dep := range modules.DependenciesOf(unit.ModuleType) {
		for _, u := range units {
			if u.ModuleType == dep && u.Status.TerminalSuccess() && len(u.Result) > 0 {
				depResults[dep] = json.RawMessage(u.Result)
			}
		}
	}
	return modules.ExecutionContext{
		WorkflowID: wf.ID,
		UnitID:     unit.ID,
		ModuleType: unit.ModuleType,
		Subject: map[string]string{
			"name":  wf.Name,
			"owner": wf.Owner,
		},
		DependencyResults: depResults,
	}, nil
}

// recordSuccess persists a successful result: straight to COMPLETED, or to
// AWAITING_REVIEW behind a pending checkpoint when the workflow requires
// review. Checkpoint creation is idempotent per unit.
func (s *Scheduler) recordSuccess(ctx context.Context, wf models.Workflow, unit models.Unit, result json.RawMessage) error {
	if !wf.RequireReview {
		if err := s.store.UpdateUnitResult(unit.ID, models.CompletedUnitStatus, result); err != nil {
			return errors.Wrapf(err, "failed to complete unit '%s'", unit.ModuleType)
		}
		s.publish(ctx, models.Event{WorkflowID: wf.ID, Type: models.UnitCompletedEvent, ModuleType: unit.ModuleType})
		return nil
	}

	if _, err := s.store.PendingCheckpoint(unit.ID); err == nil {
		// A pending checkpoint already exists (double-execution race);
		// keep it and just park the unit.
		return s.store.UpdateUnitResult(unit.ID, models.AwaitingReviewUnitStatus, result)
	}
	cp := models.Checkpoint{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		UnitID:     unit.ID,
		ModuleType: unit.ModuleType,
		Status:     models.PendingCheckpointStatus,
		Snapshot:   result,
		CreatedAt:  time.Now(),
	}
	if err := s.store.SaveCheckpoint(cp); err != nil {
		return errors.Wrapf(err, "failed to create checkpoint for unit '%s'", unit.ModuleType)
	}
	if err := s.store.UpdateUnitResult(unit.ID, models.AwaitingReviewUnitStatus, result); err != nil {
		return errors.Wrapf(err, "failed to park unit '%s' for review", unit.ModuleType)
	}
	s.publish(ctx, models.Event{WorkflowID: wf.ID, Type: models.CheckpointCreatedEvent, ModuleType: unit.ModuleType})
	s.logger.Infof("Created checkpoint %s for unit '%s' of workflow %d", cp.ID, unit.ModuleType, wf.ID)
	return nil
}

// ExecuteUnit is the out-of-process execution path: a worker that claimed a
// queue entry runs exactly one unit. It re-checks readiness against the
// authoritative store; a terminal unit is a no-op so double-claims stay
// harmless.
func (s *Scheduler) ExecuteUnit(ctx context.Context, workflowID int64, moduleType string) error {
	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return errors.Wrapf(err, "failed to get workflow %d", workflowID)
	}
	if wf.Status.Terminal() {
		return ErrWorkflowTerminal
	}
	unit, err := s.store.GetUnitByType(workflowID, moduleType)
	if err != nil {
		return errors.Wrapf(err, "failed to get unit '%s'", moduleType)
	}
	if unit.Status.Terminal() {
		return nil
	}
	units, err := s.store.ListUnits(workflowID)
	if err != nil {
		return errors.Wrapf(err, "failed to list units for workflow %d", workflowID)
	}
	if !unit.Status.Runnable() || !modules.Satisfied(moduleType, statusByType(units)) {
		return ErrDependencyUnsatisfied
	}
	if err := s.store.UpdateUnitStatus(unit.ID, models.RunningUnitStatus, ""); err != nil {
		return errors.Wrapf(err, "failed to mark unit '%s' running", moduleType)
	}
	s.publish(ctx, models.Event{WorkflowID: wf.ID, Type: models.UnitStartedEvent, ModuleType: moduleType})
	if wf.Status == models.DraftWorkflowStatus {
		if err := s.store.UpdateWorkflowStatus(wf.ID, models.RunningWorkflowStatus, wf.Progress); err != nil {
			return errors.Wrapf(err, "failed to mark workflow %d running", wf.ID)
		}
	}

	runErr := s.runUnit(ctx, wf, unit)
	if runErr != nil {
		// Classification waits for the worker's retry decision: a failed
		// unit with queue attempts left must not complete the workflow.
		return runErr
	}
	_, err = s.finish(ctx, wf, nil, nil)
	return err
}

// RetryUnit makes a failed unit runnable again. Used by the queue worker
// when an entry still has attempts left; units that ended any other way are
// left untouched.
func (s *Scheduler) RetryUnit(ctx context.Context, workflowID int64, moduleType string) error {
	unit, err := s.store.GetUnitByType(workflowID, moduleType)
	if err != nil {
		return errors.Wrapf(err, "failed to get unit '%s'", moduleType)
	}
	if unit.Status != models.FailedUnitStatus {
		return nil
	}
	return s.store.UpdateUnitStatus(unit.ID, models.PendingUnitStatus, "")
}

// reclassify recomputes workflow status and progress without executing
// anything. Used when nothing is ready and after checkpoint resolutions
// that cannot unblock new work.
func (s *Scheduler) reclassify(ctx context.Context, wf models.Workflow) (AdvanceResult, error) {
	return s.finish(ctx, wf, nil, nil)
}

// Reclassify recomputes workflow status and progress without executing
// anything. Queue workers call it once an entry fails terminally so the
// workflow still reaches a terminal status outside of an Advance pass.
func (s *Scheduler) Reclassify(ctx context.Context, workflowID int64) error {
	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return errors.Wrapf(err, "failed to get workflow %d", workflowID)
	}
	if wf.Status.Terminal() {
		return nil
	}
	_, err = s.reclassify(ctx, wf)
	return err
}

// finish marks newly blocked units, recomputes progress and workflow
// status, persists them if changed and emits progress/terminal events.
func (s *Scheduler) finish(ctx context.Context, wf models.Workflow, executed, failed []string) (AdvanceResult, error) {
	units, err := s.store.ListUnits(wf.ID)
	if err != nil {
		return AdvanceResult{}, errors.Wrapf(err, "failed to list units for workflow %d", wf.ID)
	}
	units, err = s.markBlocked(units)
	if err != nil {
		return AdvanceResult{}, err
	}

	result := s.resultFor(wf, units, executed, failed)

	status := wf.Status
	if !status.Terminal() {
		switch {
		case result.Complete:
			status = models.CompletedWorkflowStatus
		case result.AwaitingReview:
			status = models.AwaitingReviewWorkflowStatus
		default:
			status = models.RunningWorkflowStatus
		}
	}
	if status != wf.Status || result.Progress != wf.Progress {
		if err := s.store.UpdateWorkflowStatus(wf.ID, status, result.Progress); err != nil {
			return AdvanceResult{}, errors.Wrapf(err, "failed to update workflow %d", wf.ID)
		}
		s.publish(ctx, models.Event{WorkflowID: wf.ID, Type: models.WorkflowProgressEvent})
		if status.Terminal() && !wf.Status.Terminal() {
			s.publish(ctx, models.Event{WorkflowID: wf.ID, Type: models.WorkflowTerminalEvent})
			s.logger.Infof("Workflow %d reached terminal status %s", wf.ID, status)
		}
	}
	return result, nil
}

// markBlocked flags runnable units whose dependency rules can never be
// satisfied again (a rejected or failed dependency with no remaining
// alternative). Idempotent; returns the refreshed slice.
func (s *Scheduler) markBlocked(units []models.Unit) ([]models.Unit, error) {
	statuses := statusByType(units)
	for i := range units {
		if !units[i].Status.Runnable() {
			continue
		}
		if modules.Blocked(units[i].ModuleType, statuses) {
			if err := s.store.UpdateUnitStatus(units[i].ID, models.BlockedUnitStatus, "dependency permanently unsatisfied"); err != nil {
				return nil, errors.Wrapf(err, "failed to mark unit '%s' blocked", units[i].ModuleType)
			}
			s.logger.Infof("Unit '%s' of workflow %d is permanently blocked", units[i].ModuleType, units[i].WorkflowID)
			units[i].Status = models.BlockedUnitStatus
			statuses[units[i].ModuleType] = models.BlockedUnitStatus
		}
	}
	return units, nil
}

func (s *Scheduler) resultFor(wf models.Workflow, units []models.Unit, executed, failed []string) AdvanceResult {
	return AdvanceResult{
		Executed:       executed,
		Failed:         failed,
		Complete:       IsComplete(units),
		AwaitingReview: IsAwaitingReview(units),
		Progress:       Progress(units),
	}
}

func (s *Scheduler) publish(ctx context.Context, e models.Event) {
	if err := s.notifier.Publish(ctx, e); err != nil {
		s.logger.Errorf("Failed to publish %s event for workflow %d: %v", e.Type, e.WorkflowID, err)
	}
}
