package scheduler

import (
	"context"

	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/pkg/errors"
)

// Cancel stops a non-terminal workflow: every non-terminal unit becomes
// skipped, live queue entries are failed terminally so no worker resumes
// them, and the workflow itself becomes CANCELLED.
func (s *Scheduler) Cancel(ctx context.Context, workflowID int64) error {
	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return errors.Wrapf(err, "failed to get workflow %d", workflowID)
	}
	if wf.Status.Terminal() {
		return ErrWorkflowTerminal
	}

	units, err := s.store.ListUnits(workflowID)
	if err != nil {
		return errors.Wrapf(err, "failed to list units for workflow %d", workflowID)
	}
	for _, u := range units {
		if u.Status.Terminal() {
			continue
		}
		if err := s.store.UpdateUnitStatus(u.ID, models.SkippedUnitStatus, "workflow cancelled"); err != nil {
			return errors.Wrapf(err, "failed to skip unit '%s'", u.ModuleType)
		}
	}

	entries, err := s.store.ListQueueEntries(workflowID)
	if err != nil {
		return errors.Wrapf(err, "failed to list queue entries for workflow %d", workflowID)
	}
	for _, e := range entries {
		if e.Status == models.CompletedQueueStatus || e.Status == models.FailedQueueStatus {
			continue
		}
		e.Status = models.FailedQueueStatus
		e.ErrorMsg = "workflow cancelled"
		e.LeaseHolder = ""
		e.LeaseExpiresAt = nil
		if err := s.store.UpdateQueueEntry(e); err != nil {
			return errors.Wrapf(err, "failed to fail queue entry %s", e.ID)
		}
	}

	units, err = s.store.ListUnits(workflowID)
	if err != nil {
		return errors.Wrapf(err, "failed to list units for workflow %d", workflowID)
	}
	if err := s.store.UpdateWorkflowStatus(workflowID, models.CancelledWorkflowStatus, Progress(units)); err != nil {
		return errors.Wrapf(err, "failed to cancel workflow %d", workflowID)
	}
	s.publish(ctx, models.Event{WorkflowID: workflowID, Type: models.WorkflowTerminalEvent})
	s.logger.Infof("Cancelled workflow %d", workflowID)
	return nil
}
