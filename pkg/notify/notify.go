package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/koreops-ai/sas-api/pkg/storage"
)

// Logger defines the logging interface used by the notifier.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Notifier publishes activity events for external observers. Delivery is
// best-effort: the scheduler never fails because an event could not be
// published.
type Notifier interface {
	Publish(ctx context.Context, e models.Event) error
}

// NopNotifier drops every event. Useful in tests and batch tooling.
type NopNotifier struct{}

func (NopNotifier) Publish(ctx context.Context, e models.Event) error { return nil }

// StoreNotifier appends events to the record store, where pollers pick them
// up via Feed.
type StoreNotifier struct {
	store  storage.Store
	logger Logger
}

func NewStoreNotifier(store storage.Store, logger Logger) *StoreNotifier {
	return &StoreNotifier{store: store, logger: logger}
}

func (n *StoreNotifier) Publish(ctx context.Context, e models.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := n.store.AppendEvent(e); err != nil {
		n.logger.Errorf("Failed to publish %s event for workflow %d: %v", e.Type, e.WorkflowID, err)
		return err
	}
	return nil
}

// Feed serves the polling side of the notification channel: events newer
// than the consumer's last-seen timestamp, plus a liveness heartbeat.
// Consumers must tolerate gaps and re-derive state from the workflow and
// unit records when they detect one.
type Feed struct {
	store    storage.Store
	notifier Notifier
}

func NewFeed(store storage.Store, notifier Notifier) *Feed {
	return &Feed{store: store, notifier: notifier}
}

// Poll returns events for the workflow created strictly after since.
func (f *Feed) Poll(ctx context.Context, workflowID int64, since time.Time) ([]models.Event, error) {
	return f.store.ListEventsSince(workflowID, since)
}

// Heartbeat emits a liveness event so pollers can distinguish "no activity"
// from "feed is dead".
func (f *Feed) Heartbeat(ctx context.Context, workflowID int64) error {
	return f.notifier.Publish(ctx, models.Event{
		WorkflowID: workflowID,
		Type:       models.HeartbeatEvent,
	})
}

// DefaultHeartbeatInterval is the liveness period used by the serve loop.
const DefaultHeartbeatInterval = 30 * time.Second

// Run emits heartbeats for every live workflow on the given interval until
// the context is cancelled. Delivery stays best-effort; a missed tick is
// indistinguishable from a quiet one and pollers must already tolerate that.
func (f *Feed) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			workflows, err := f.store.ListWorkflows()
			if err != nil {
				continue
			}
			for _, wf := range workflows {
				if wf.Status.Terminal() {
					continue
				}
				_ = f.Heartbeat(ctx, wf.ID)
			}
		}
	}
}
