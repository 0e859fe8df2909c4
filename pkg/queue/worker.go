package queue

import (
	"context"
	"time"

	"github.com/koreops-ai/sas-api/pkg/scheduler"
	"github.com/pkg/errors"
)

// DefaultPollInterval is how long an idle worker sleeps between claims.
const DefaultPollInterval = 2 * time.Second

// Worker is the out-of-process execution loop: claim an entry, run its unit
// through the scheduler, report the outcome, repeat. Pollers sleep and
// retry rather than block.
type Worker struct {
	id     string
	queue  *Service
	sched  *scheduler.Scheduler
	logger Logger
	poll   time.Duration
}

func NewWorker(id string, queue *Service, sched *scheduler.Scheduler, logger Logger) *Worker {
	return &Worker{
		id:     id,
		queue:  queue,
		sched:  sched,
		logger: logger,
		poll:   DefaultPollInterval,
	}
}

// SetPollInterval overrides the idle sleep, mainly for tests.
func (w *Worker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.poll = d
	}
}

// Run processes entries until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infof("Worker '%s' started", w.id)
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Infof("Worker '%s' stopping: %v", w.id, err)
			return err
		}
		entry, err := w.queue.Claim(ctx, w.id)
		if err != nil {
			w.logger.Errorf("Worker '%s' claim error: %v", w.id, err)
			w.sleep(ctx)
			continue
		}
		if entry == nil {
			w.sleep(ctx)
			continue
		}
		w.process(ctx, entry.ID, entry.WorkflowID, entry.ModuleType)
	}
}

// RunOnce claims and processes at most one entry. Returns false when
// nothing was claimable.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	entry, err := w.queue.Claim(ctx, w.id)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	w.process(ctx, entry.ID, entry.WorkflowID, entry.ModuleType)
	return true, nil
}

func (w *Worker) process(ctx context.Context, entryID string, workflowID int64, moduleType string) {
	err := w.sched.ExecuteUnit(ctx, workflowID, moduleType)
	switch {
	case err == nil:
		if cErr := w.queue.Complete(ctx, entryID); cErr != nil {
			w.logger.Errorf("Worker '%s' failed to complete entry %s: %v", w.id, entryID, cErr)
		}
	case errors.Is(err, scheduler.ErrDependencyUnsatisfied):
		// Not ready yet; hand it back for a later poll without burning an
		// attempt.
		if rErr := w.queue.Release(ctx, entryID); rErr != nil {
			w.logger.Errorf("Worker '%s' failed to release entry %s: %v", w.id, entryID, rErr)
		}
	case errors.Is(err, scheduler.ErrWorkflowTerminal):
		if _, fErr := w.queue.Fail(ctx, entryID, err.Error()); fErr != nil {
			w.logger.Errorf("Worker '%s' failed to fail entry %s: %v", w.id, entryID, fErr)
		}
	default:
		w.logger.Errorf("Worker '%s' unit '%s' of workflow %d failed: %v", w.id, moduleType, workflowID, err)
		requeued, fErr := w.queue.Fail(ctx, entryID, err.Error())
		if fErr != nil {
			w.logger.Errorf("Worker '%s' failed to fail entry %s: %v", w.id, entryID, fErr)
			return
		}
		if requeued {
			// Make the failed unit runnable again so the retry actually
			// re-executes the module.
			if rErr := w.sched.RetryUnit(ctx, workflowID, moduleType); rErr != nil {
				w.logger.Errorf("Worker '%s' failed to reset unit '%s' for retry: %v", w.id, moduleType, rErr)
			}
			return
		}
		// Out of attempts: the unit failure is final, so the workflow can
		// now be classified.
		if rErr := w.sched.Reclassify(ctx, workflowID); rErr != nil {
			w.logger.Errorf("Worker '%s' failed to reclassify workflow %d: %v", w.id, workflowID, rErr)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.poll):
	}
}
