package scheduler

import (
	"context"

	"dario.cat/mergo"
	"github.com/goccy/go-json"
	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/pkg/errors"
)

// Resolution is the outcome of resolving a checkpoint. Continuation is nil
// when the action cannot unblock new work (request-revision).
type Resolution struct {
	Checkpoint   models.Checkpoint `json:"checkpoint"`
	Continuation *AdvanceResult    `json:"continuation,omitempty"`
}

// Resolve applies a human review decision to a pending checkpoint. The
// pending precondition acts as a compare-and-swap guard: a second resolution
// of the same checkpoint fails with ErrAlreadyResolved and mutates nothing.
func (s *Scheduler) Resolve(ctx context.Context, checkpointID, actorID, action, comment string, adjustments map[string]interface{}) (Resolution, error) {
	cp, err := s.store.GetCheckpoint(checkpointID)
	if err != nil {
		return Resolution{}, errors.Wrapf(err, "failed to get checkpoint %s", checkpointID)
	}
	wf, err := s.store.GetWorkflow(cp.WorkflowID)
	if err != nil {
		return Resolution{}, errors.Wrapf(err, "failed to get workflow %d", cp.WorkflowID)
	}
	if wf.Status.Terminal() {
		// Cancellation skips reviewed units; resolving their leftover
		// checkpoints must not revive them.
		return Resolution{}, ErrWorkflowTerminal
	}
	if err := s.authorizer.Authorize(actorID, wf); err != nil {
		return Resolution{}, err
	}

	var cpStatus models.CheckpointStatus
	var unitStatus models.UnitStatus
	switch action {
	case models.ApproveAllAction, models.ApproveSelectedAction:
		cpStatus = models.ApprovedCheckpointStatus
		unitStatus = models.CompletedUnitStatus
	case models.RequestRevisionAction:
		cpStatus = models.RevisionRequestedCheckpointStatus
		unitStatus = models.RevisionRequestedUnitStatus
	case models.RejectAction:
		cpStatus = models.RejectedCheckpointStatus
		unitStatus = models.SkippedUnitStatus
	default:
		return Resolution{}, errors.Errorf("invalid resolution action '%s'", action)
	}

	snapshot := cp.Snapshot
	if cpStatus == models.ApprovedCheckpointStatus && len(adjustments) > 0 {
		snapshot, err = mergeAdjustments(cp.Snapshot, adjustments)
		if err != nil {
			return Resolution{}, errors.Wrap(err, "failed to merge adjustments into snapshot")
		}
	}

	applied, err := s.store.ResolveCheckpoint(cp.ID, cpStatus, action, actorID, comment, snapshot)
	if err != nil {
		return Resolution{}, errors.Wrapf(err, "failed to resolve checkpoint %s", cp.ID)
	}
	if !applied {
		return Resolution{}, ErrAlreadyResolved
	}
	s.logger.Infof("Checkpoint %s resolved as %s by '%s'", cp.ID, cpStatus, actorID)

	switch unitStatus {
	case models.CompletedUnitStatus:
		// The reviewed (possibly adjusted) snapshot becomes the unit's
		// final result.
		if err := s.store.UpdateUnitResult(cp.UnitID, models.CompletedUnitStatus, snapshot); err != nil {
			return Resolution{}, errors.Wrapf(err, "failed to complete unit %d", cp.UnitID)
		}
		s.publish(ctx, models.Event{WorkflowID: wf.ID, Type: models.UnitCompletedEvent, ModuleType: cp.ModuleType})
	default:
		if err := s.store.UpdateUnitStatus(cp.UnitID, unitStatus, ""); err != nil {
			return Resolution{}, errors.Wrapf(err, "failed to transition unit %d to %s", cp.UnitID, unitStatus)
		}
	}

	resolved, err := s.store.GetCheckpoint(cp.ID)
	if err != nil {
		return Resolution{}, errors.Wrapf(err, "failed to reload checkpoint %s", cp.ID)
	}
	resolution := Resolution{Checkpoint: resolved}

	if action == models.RequestRevisionAction {
		// A revision cannot make new dependents ready; just reclassify so
		// the workflow leaves AWAITING_REVIEW when nothing else is pending
		// review.
		if _, err := s.reclassify(ctx, wf); err != nil {
			return Resolution{}, err
		}
		return resolution, nil
	}

	continuation, err := s.Advance(ctx, wf.ID)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "continuation failed")
	}
	resolution.Continuation = &continuation
	return resolution, nil
}

func mergeAdjustments(snapshot []byte, adjustments map[string]interface{}) ([]byte, error) {
	base := make(map[string]interface{})
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &base); err != nil {
			return nil, err
		}
	}
	if err := mergo.Merge(&base, adjustments, mergo.WithOverride); err != nil {
		return nil, err
	}
	return json.Marshal(base)
}
