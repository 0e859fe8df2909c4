package scheduler_test

import (
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/koreops-ai/sas-api/pkg/modules"
	"github.com/koreops-ai/sas-api/pkg/notify"
	"github.com/koreops-ai/sas-api/pkg/scheduler"
	"github.com/koreops-ai/sas-api/pkg/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type nopLogger struct{}

func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}

func okExecutor(payload string) modules.Executor {
	return modules.ExecutorFunc(func(ctx context.Context, ec modules.ExecutionContext) (json.RawMessage, error) {
		return json.RawMessage(payload), nil
	})
}

func failExecutor(msg string) modules.Executor {
	return modules.ExecutorFunc(func(ctx context.Context, ec modules.ExecutionContext) (json.RawMessage, error) {
		return nil, errors.New(msg)
	})
}

// newTestScheduler wires a scheduler over the in-memory store. Every catalog
// type gets a trivial succeeding executor unless overridden.
func newTestScheduler(t *testing.T, store storage.Store, overrides map[string]modules.Executor, opts ...scheduler.Option) *scheduler.Scheduler {
	reg := modules.NewRegistry()
	for _, mt := range modules.Catalog {
		ex, ok := overrides[mt]
		if !ok {
			ex = okExecutor(`{"ok": true}`)
		}
		if err := reg.Register(mt, ex); err != nil {
			t.Fatalf("failed to register executor for '%s': %v", mt, err)
		}
	}
	return scheduler.NewScheduler(store, reg, notify.NopNotifier{}, nopLogger{}, opts...)
}

func pendingCheckpointFor(t *testing.T, store storage.Store, workflowID int64, moduleType string) models.Checkpoint {
	unit, err := store.GetUnitByType(workflowID, moduleType)
	assert.NoError(t, err)
	cp, err := store.PendingCheckpoint(unit.ID)
	assert.NoError(t, err)
	return cp
}

func TestCreateWorkflow(t *testing.T) {
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, nil)

	t.Run("EmptyName", func(t *testing.T) {
		_, err := s.CreateWorkflow("", "alice", []string{modules.MarketSizing}, false)
		assert.Error(t, err)
	})

	t.Run("NameTooLong", func(t *testing.T) {
		_, err := s.CreateWorkflow(strings.Repeat("x", 101), "alice", []string{modules.MarketSizing}, false)
		assert.Error(t, err)
	})

	t.Run("NoModuleTypes", func(t *testing.T) {
		_, err := s.CreateWorkflow("Acme diligence", "alice", nil, false)
		assert.Error(t, err)
	})

	t.Run("UnknownModuleType", func(t *testing.T) {
		_, err := s.CreateWorkflow("Acme diligence", "alice", []string{"crystal_ball"}, false)
		assert.Error(t, err)
	})

	t.Run("DuplicateModuleType", func(t *testing.T) {
		_, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing, modules.MarketSizing}, false)
		assert.Error(t, err)
	})

	t.Run("Success", func(t *testing.T) {
		id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing, modules.FinancialModel}, false)
		assert.NoError(t, err)
		assert.True(t, id > 0)

		wf, err := s.GetWorkflow(id)
		assert.NoError(t, err)
		assert.Equal(t, models.DraftWorkflowStatus, wf.Status)
		assert.Equal(t, "alice", wf.Owner)
		assert.Len(t, wf.Units, 2)
		for _, u := range wf.Units {
			assert.Equal(t, models.PendingUnitStatus, u.Status)
		}
	})
}

func TestAdvanceChain(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()

	// financial_model must see its dependency's persisted result.
	sawDep := false
	s := newTestScheduler(t, store, map[string]modules.Executor{
		modules.MarketSizing: okExecutor(`{"tam": 42}`),
		modules.FinancialModel: modules.ExecutorFunc(func(ctx context.Context, ec modules.ExecutionContext) (json.RawMessage, error) {
			if _, ok := ec.DependencyResults[modules.MarketSizing]; ok {
				sawDep = true
			}
			return json.RawMessage(`{"irr": 0.2}`), nil
		}),
	})

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing, modules.FinancialModel}, false)
	assert.NoError(t, err)

	t.Run("FirstPassRunsOnlyRoots", func(t *testing.T) {
		res, err := s.Advance(ctx, id)
		assert.NoError(t, err)
		assert.Equal(t, []string{modules.MarketSizing}, res.Executed)
		assert.Empty(t, res.Failed)
		assert.False(t, res.Complete)

		fm, err := store.GetUnitByType(id, modules.FinancialModel)
		assert.NoError(t, err)
		assert.Equal(t, models.PendingUnitStatus, fm.Status)
	})

	t.Run("SecondPassRunsUnblockedDependent", func(t *testing.T) {
		res, err := s.Advance(ctx, id)
		assert.NoError(t, err)
		assert.Equal(t, []string{modules.FinancialModel}, res.Executed)
		assert.True(t, res.Complete)
		assert.Equal(t, 100, res.Progress)
		assert.True(t, sawDep, "dependent executor should receive the dependency result")

		wf, err := store.GetWorkflow(id)
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedWorkflowStatus, wf.Status)
		assert.Equal(t, 100, wf.Progress)
	})

	t.Run("RepeatedAdvanceIsANoOp", func(t *testing.T) {
		res, err := s.Advance(ctx, id)
		assert.NoError(t, err)
		assert.Empty(t, res.Executed)
		assert.True(t, res.Complete)
		assert.Equal(t, 100, res.Progress)
	})
}

func TestAdvanceDisjunctiveDependency(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, map[string]modules.Executor{
		modules.CompetitorAnalysis: failExecutor("no data source"),
	})

	id, err := s.CreateWorkflow("Acme diligence", "alice",
		[]string{modules.CompetitorAnalysis, modules.CustomerDiscovery, modules.GoToMarket}, false)
	assert.NoError(t, err)

	res, err := s.Advance(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, []string{modules.CustomerDiscovery}, res.Executed)
	assert.Equal(t, []string{modules.CompetitorAnalysis}, res.Failed)
	assert.False(t, res.Complete)

	// One surviving alternative is enough for go_to_market.
	res, err = s.Advance(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, []string{modules.GoToMarket}, res.Executed)
	assert.True(t, res.Complete)
	assert.Equal(t, 67, res.Progress)

	ca, err := store.GetUnitByType(id, modules.CompetitorAnalysis)
	assert.NoError(t, err)
	assert.Equal(t, models.FailedUnitStatus, ca.Status)
	assert.Equal(t, "no data source", ca.ErrorMsg)
}

func TestAdvanceFailureIsolation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, map[string]modules.Executor{
		modules.MarketSizing: failExecutor("upstream timeout"),
	})

	id, err := s.CreateWorkflow("Acme diligence", "alice",
		[]string{modules.MarketSizing, modules.CompetitorAnalysis, modules.CustomerDiscovery}, false)
	assert.NoError(t, err)

	// A failing unit never aborts its siblings or the pass itself.
	res, err := s.Advance(ctx, id)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{modules.CompetitorAnalysis, modules.CustomerDiscovery}, res.Executed)
	assert.Equal(t, []string{modules.MarketSizing}, res.Failed)
	assert.True(t, res.Complete)
}

func TestAdvanceMarksBlockedUnits(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, map[string]modules.Executor{
		modules.MarketSizing: failExecutor("upstream timeout"),
	})

	// executive_summary needs financial_model and risk_assessment, both of
	// which need market_sizing. One root failure poisons the whole chain.
	id, err := s.CreateWorkflow("Acme diligence", "alice",
		[]string{modules.MarketSizing, modules.CompetitorAnalysis, modules.FinancialModel, modules.RiskAssessment, modules.ExecutiveSummary}, false)
	assert.NoError(t, err)

	res, err := s.Advance(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, []string{modules.MarketSizing}, res.Failed)

	res, err = s.Advance(ctx, id)
	assert.NoError(t, err)
	assert.True(t, res.Complete)

	for _, mt := range []string{modules.FinancialModel, modules.RiskAssessment, modules.ExecutiveSummary} {
		u, err := store.GetUnitByType(id, mt)
		assert.NoError(t, err)
		assert.Equal(t, models.BlockedUnitStatus, u.Status, mt)
	}
}

func TestReviewFlow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, map[string]modules.Executor{
		modules.MarketSizing:   okExecutor(`{"tam": 42, "sam": 10}`),
		modules.FinancialModel: okExecutor(`{"irr": 0.2}`),
	})

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing, modules.FinancialModel}, true)
	assert.NoError(t, err)

	t.Run("SuccessParksBehindCheckpoint", func(t *testing.T) {
		res, err := s.Advance(ctx, id)
		assert.NoError(t, err)
		assert.Equal(t, []string{modules.MarketSizing}, res.Executed)
		assert.True(t, res.AwaitingReview)
		assert.False(t, res.Complete)
		assert.Equal(t, 45, res.Progress)

		wf, err := store.GetWorkflow(id)
		assert.NoError(t, err)
		assert.Equal(t, models.AwaitingReviewWorkflowStatus, wf.Status)

		ms, err := store.GetUnitByType(id, modules.MarketSizing)
		assert.NoError(t, err)
		assert.Equal(t, models.AwaitingReviewUnitStatus, ms.Status)
	})

	t.Run("AdvanceWhilePausedRunsNothing", func(t *testing.T) {
		res, err := s.Advance(ctx, id)
		assert.NoError(t, err)
		assert.Empty(t, res.Executed)
		assert.True(t, res.AwaitingReview)
	})

	t.Run("ApproveWithAdjustmentsContinues", func(t *testing.T) {
		cp := pendingCheckpointFor(t, store, id, modules.MarketSizing)
		resolution, err := s.Resolve(ctx, cp.ID, "alice", models.ApproveAllAction, "numbers check out",
			map[string]interface{}{"tam": 100})
		assert.NoError(t, err)
		assert.Equal(t, models.ApprovedCheckpointStatus, resolution.Checkpoint.Status)
		assert.Equal(t, "alice", resolution.Checkpoint.Reviewer)
		assert.Equal(t, "numbers check out", resolution.Checkpoint.Comment)

		// The reviewer's adjustment overrides the executor's value; untouched
		// keys survive.
		ms, err := store.GetUnitByType(id, modules.MarketSizing)
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedUnitStatus, ms.Status)
		assert.JSONEq(t, `{"tam": 100, "sam": 10}`, string(ms.Result))

		// The continuation runs financial_model, which pauses for review in
		// turn.
		assert.NotNil(t, resolution.Continuation)
		assert.Equal(t, []string{modules.FinancialModel}, resolution.Continuation.Executed)
		assert.True(t, resolution.Continuation.AwaitingReview)
	})

	t.Run("FinalApprovalCompletesWorkflow", func(t *testing.T) {
		cp := pendingCheckpointFor(t, store, id, modules.FinancialModel)
		resolution, err := s.Resolve(ctx, cp.ID, "alice", models.ApproveAllAction, "", nil)
		assert.NoError(t, err)
		assert.NotNil(t, resolution.Continuation)
		assert.True(t, resolution.Continuation.Complete)
		assert.Equal(t, 100, resolution.Continuation.Progress)

		wf, err := store.GetWorkflow(id)
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedWorkflowStatus, wf.Status)
	})
}

func TestResolveIdempotence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, nil)

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing}, true)
	assert.NoError(t, err)
	_, err = s.Advance(ctx, id)
	assert.NoError(t, err)

	cp := pendingCheckpointFor(t, store, id, modules.MarketSizing)
	_, err = s.Resolve(ctx, cp.ID, "alice", models.ApproveAllAction, "", nil)
	assert.NoError(t, err)

	// A second resolution must fail and change nothing.
	_, err = s.Resolve(ctx, cp.ID, "bob", models.RejectAction, "too late", nil)
	assert.ErrorIs(t, err, scheduler.ErrAlreadyResolved)

	resolved, err := store.GetCheckpoint(cp.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.ApprovedCheckpointStatus, resolved.Status)
	assert.Equal(t, "alice", resolved.Reviewer)

	unit, err := store.GetUnitByType(id, modules.MarketSizing)
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedUnitStatus, unit.Status)
}

func TestResolveReject(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, nil)

	// risk_assessment depends on competitor_analysis; rejecting the latter
	// leaves the former permanently blocked.
	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.CompetitorAnalysis, modules.RiskAssessment}, true)
	assert.NoError(t, err)
	_, err = s.Advance(ctx, id)
	assert.NoError(t, err)

	cp := pendingCheckpointFor(t, store, id, modules.CompetitorAnalysis)
	resolution, err := s.Resolve(ctx, cp.ID, "alice", models.RejectAction, "wrong market", nil)
	assert.NoError(t, err)
	assert.Equal(t, models.RejectedCheckpointStatus, resolution.Checkpoint.Status)
	assert.NotNil(t, resolution.Continuation)
	assert.True(t, resolution.Continuation.Complete)

	ca, err := store.GetUnitByType(id, modules.CompetitorAnalysis)
	assert.NoError(t, err)
	assert.Equal(t, models.SkippedUnitStatus, ca.Status)

	ra, err := store.GetUnitByType(id, modules.RiskAssessment)
	assert.NoError(t, err)
	assert.Equal(t, models.BlockedUnitStatus, ra.Status)

	wf, err := store.GetWorkflow(id)
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedWorkflowStatus, wf.Status)
}

func TestResolveRequestRevision(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, nil)

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing}, true)
	assert.NoError(t, err)
	_, err = s.Advance(ctx, id)
	assert.NoError(t, err)

	cp := pendingCheckpointFor(t, store, id, modules.MarketSizing)
	resolution, err := s.Resolve(ctx, cp.ID, "alice", models.RequestRevisionAction, "narrow the segment", nil)
	assert.NoError(t, err)
	assert.Nil(t, resolution.Continuation, "revision must not trigger a continuation pass")

	unit, err := store.GetUnitByType(id, modules.MarketSizing)
	assert.NoError(t, err)
	assert.Equal(t, models.RevisionRequestedUnitStatus, unit.Status)

	wf, err := store.GetWorkflow(id)
	assert.NoError(t, err)
	assert.Equal(t, models.RunningWorkflowStatus, wf.Status)

	// The revised unit runs again and pauses behind a fresh checkpoint.
	res, err := s.Advance(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, []string{modules.MarketSizing}, res.Executed)
	assert.True(t, res.AwaitingReview)

	fresh := pendingCheckpointFor(t, store, id, modules.MarketSizing)
	assert.NotEqual(t, cp.ID, fresh.ID)
}

func TestResolveAuthorization(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, nil, scheduler.WithAuthorizer(scheduler.OwnerOnly{}))

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing}, true)
	assert.NoError(t, err)
	_, err = s.Advance(ctx, id)
	assert.NoError(t, err)

	cp := pendingCheckpointFor(t, store, id, modules.MarketSizing)
	_, err = s.Resolve(ctx, cp.ID, "mallory", models.ApproveAllAction, "", nil)
	assert.ErrorIs(t, err, scheduler.ErrUnauthorized)

	still, err := store.GetCheckpoint(cp.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PendingCheckpointStatus, still.Status)

	_, err = s.Resolve(ctx, cp.ID, "alice", models.ApproveAllAction, "", nil)
	assert.NoError(t, err)
}

func TestResolveInvalidAction(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, nil)

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing}, true)
	assert.NoError(t, err)
	_, err = s.Advance(ctx, id)
	assert.NoError(t, err)

	cp := pendingCheckpointFor(t, store, id, modules.MarketSizing)
	_, err = s.Resolve(ctx, cp.ID, "alice", "SHRUG", "", nil)
	assert.Error(t, err)

	still, err := store.GetCheckpoint(cp.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PendingCheckpointStatus, still.Status)
}

func TestExecuteUnit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, nil)

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing, modules.FinancialModel}, false)
	assert.NoError(t, err)

	t.Run("UnsatisfiedDependency", func(t *testing.T) {
		err := s.ExecuteUnit(ctx, id, modules.FinancialModel)
		assert.ErrorIs(t, err, scheduler.ErrDependencyUnsatisfied)
	})

	t.Run("RunsSingleUnit", func(t *testing.T) {
		err := s.ExecuteUnit(ctx, id, modules.MarketSizing)
		assert.NoError(t, err)
		unit, err := store.GetUnitByType(id, modules.MarketSizing)
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedUnitStatus, unit.Status)
	})

	t.Run("TerminalUnitIsANoOp", func(t *testing.T) {
		assert.NoError(t, s.ExecuteUnit(ctx, id, modules.MarketSizing))
	})

	t.Run("DependentRunsAfterDependency", func(t *testing.T) {
		err := s.ExecuteUnit(ctx, id, modules.FinancialModel)
		assert.NoError(t, err)
		wf, err := store.GetWorkflow(id)
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedWorkflowStatus, wf.Status)
	})

	t.Run("TerminalWorkflow", func(t *testing.T) {
		err := s.ExecuteUnit(ctx, id, modules.MarketSizing)
		assert.ErrorIs(t, err, scheduler.ErrWorkflowTerminal)
	})
}

func TestExecuteUnitFailureDefersClassification(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, map[string]modules.Executor{
		modules.MarketSizing: failExecutor("upstream down"),
	})

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing}, false)
	assert.NoError(t, err)

	err = s.ExecuteUnit(ctx, id, modules.MarketSizing)
	assert.Error(t, err)

	// The workflow stays live until the caller decides between retry and
	// terminal failure; a failed unit with attempts left must not complete
	// it.
	wf, err := store.GetWorkflow(id)
	assert.NoError(t, err)
	assert.Equal(t, models.RunningWorkflowStatus, wf.Status)

	// Retry re-executes the unit; once the failure is final, Reclassify
	// brings the workflow to its terminal status.
	assert.NoError(t, s.RetryUnit(ctx, id, modules.MarketSizing))
	err = s.ExecuteUnit(ctx, id, modules.MarketSizing)
	assert.Error(t, err)
	assert.NoError(t, s.Reclassify(ctx, id))

	wf, err = store.GetWorkflow(id)
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedWorkflowStatus, wf.Status)

	unit, err := store.GetUnitByType(id, modules.MarketSizing)
	assert.NoError(t, err)
	assert.Equal(t, models.FailedUnitStatus, unit.Status)
}

func TestResolveAfterCancel(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, nil)

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing}, true)
	assert.NoError(t, err)
	_, err = s.Advance(ctx, id)
	assert.NoError(t, err)

	cp := pendingCheckpointFor(t, store, id, modules.MarketSizing)
	assert.NoError(t, s.Cancel(ctx, id))

	// The leftover checkpoint must not revive the skipped unit.
	_, err = s.Resolve(ctx, cp.ID, "alice", models.ApproveAllAction, "", nil)
	assert.ErrorIs(t, err, scheduler.ErrWorkflowTerminal)

	unit, err := store.GetUnitByType(id, modules.MarketSizing)
	assert.NoError(t, err)
	assert.Equal(t, models.SkippedUnitStatus, unit.Status)

	still, err := store.GetCheckpoint(cp.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PendingCheckpointStatus, still.Status)

	wf, err := store.GetWorkflow(id)
	assert.NoError(t, err)
	assert.Equal(t, models.CancelledWorkflowStatus, wf.Status)
}

func TestRetryUnit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, map[string]modules.Executor{
		modules.MarketSizing: failExecutor("flaky upstream"),
	})

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing, modules.CompetitorAnalysis}, false)
	assert.NoError(t, err)
	_, err = s.Advance(ctx, id)
	assert.NoError(t, err)

	t.Run("FailedBecomesPending", func(t *testing.T) {
		assert.NoError(t, s.RetryUnit(ctx, id, modules.MarketSizing))
		unit, err := store.GetUnitByType(id, modules.MarketSizing)
		assert.NoError(t, err)
		assert.Equal(t, models.PendingUnitStatus, unit.Status)
	})

	t.Run("NonFailedIsLeftAlone", func(t *testing.T) {
		assert.NoError(t, s.RetryUnit(ctx, id, modules.CompetitorAnalysis))
		unit, err := store.GetUnitByType(id, modules.CompetitorAnalysis)
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedUnitStatus, unit.Status)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	s := newTestScheduler(t, store, nil)

	id, err := s.CreateWorkflow("Acme diligence", "alice", []string{modules.MarketSizing, modules.FinancialModel}, false)
	assert.NoError(t, err)
	_, err = s.Advance(ctx, id)
	assert.NoError(t, err)

	assert.NoError(t, s.Cancel(ctx, id))

	wf, err := store.GetWorkflow(id)
	assert.NoError(t, err)
	assert.Equal(t, models.CancelledWorkflowStatus, wf.Status)

	fm, err := store.GetUnitByType(id, modules.FinancialModel)
	assert.NoError(t, err)
	assert.Equal(t, models.SkippedUnitStatus, fm.Status)

	// Finished work is untouched.
	ms, err := store.GetUnitByType(id, modules.MarketSizing)
	assert.NoError(t, err)
	assert.Equal(t, models.CompletedUnitStatus, ms.Status)

	t.Run("CancelTwice", func(t *testing.T) {
		assert.ErrorIs(t, s.Cancel(ctx, id), scheduler.ErrWorkflowTerminal)
	})

	t.Run("AdvanceAfterCancelRunsNothing", func(t *testing.T) {
		res, err := s.Advance(ctx, id)
		assert.NoError(t, err)
		assert.Empty(t, res.Executed)
	})
}

func TestProgress(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, 0, scheduler.Progress(nil))
		assert.False(t, scheduler.IsComplete(nil))
	})

	t.Run("Weights", func(t *testing.T) {
		units := []models.Unit{
			{Status: models.CompletedUnitStatus},
			{Status: models.ApprovedUnitStatus},
			{Status: models.AwaitingReviewUnitStatus},
			{Status: models.RunningUnitStatus, Progress: 50},
			{Status: models.PendingUnitStatus},
		}
		// (1.0 + 1.0 + 0.9 + 0.5 + 0) / 5 = 68%
		assert.Equal(t, 68, scheduler.Progress(units))
		assert.False(t, scheduler.IsComplete(units))
		assert.True(t, scheduler.IsAwaitingReview(units))
	})

	t.Run("TerminalFailuresStillComplete", func(t *testing.T) {
		units := []models.Unit{
			{Status: models.CompletedUnitStatus},
			{Status: models.FailedUnitStatus},
			{Status: models.SkippedUnitStatus},
			{Status: models.BlockedUnitStatus},
		}
		assert.True(t, scheduler.IsComplete(units))
		assert.Equal(t, 25, scheduler.Progress(units))
	})
}

func TestReadyUnits(t *testing.T) {
	wf := models.Workflow{ModuleTypes: []string{modules.MarketSizing, modules.CompetitorAnalysis, modules.RiskAssessment}}
	units := []models.Unit{
		{ModuleType: modules.RiskAssessment, Status: models.PendingUnitStatus},
		{ModuleType: modules.MarketSizing, Status: models.PendingUnitStatus},
		{ModuleType: modules.CompetitorAnalysis, Status: models.RevisionRequestedUnitStatus},
	}

	ready := scheduler.ReadyUnits(wf, units)
	assert.Len(t, ready, 2)
	// Declared workflow order, not storage order.
	assert.Equal(t, modules.MarketSizing, ready[0].ModuleType)
	assert.Equal(t, modules.CompetitorAnalysis, ready[1].ModuleType)
}
