package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/koreops-ai/sas-api/pkg/storage"
	"github.com/pkg/errors"
)

const (
	// DefaultLeaseTTL is how long a claim is honored before the holder is
	// presumed dead and the entry becomes reclaimable.
	DefaultLeaseTTL = 5 * time.Minute

	// DefaultMaxAttempts bounds retries per entry, the claim included.
	DefaultMaxAttempts = 3
)

// Logger defines the logging interface for the queue service.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Service is the durable work list for out-of-process execution: one entry
// per unit, claimed under a soft time-based lease so a dead worker's work
// is eventually reclaimed.
type Service struct {
	store    storage.Store
	logger   Logger
	leaseTTL time.Duration
	now      func() time.Time
}

// Option configures a queue Service.
type Option func(*Service)

// WithLeaseTTL overrides the claim lease duration.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

// WithClock replaces the wall clock, for lease-expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store storage.Store, logger Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   logger,
		leaseTTL: DefaultLeaseTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue creates one queued entry per module type, mirroring the
// workflow's units. Returns the new entry IDs in argument order.
func (s *Service) Enqueue(ctx context.Context, workflowID int64, moduleTypes []string, priority int) ([]string, error) {
	ids := make([]string, 0, len(moduleTypes))
	for _, mt := range moduleTypes {
		entry := models.QueueEntry{
			ID:          uuid.NewString(),
			WorkflowID:  workflowID,
			ModuleType:  mt,
			Status:      models.QueuedQueueStatus,
			Priority:    priority,
			MaxAttempts: DefaultMaxAttempts,
			CreatedAt:   s.now(),
		}
		if err := s.store.SaveQueueEntry(entry); err != nil {
			return nil, errors.Wrapf(err, "failed to enqueue '%s' for workflow %d", mt, workflowID)
		}
		ids = append(ids, entry.ID)
	}
	s.logger.Infof("Enqueued %d entries for workflow %d", len(ids), workflowID)
	return ids, nil
}

// Claim atomically takes the highest-priority claimable entry for the
// worker, stamping the lease and counting the attempt. Returns nil when
// nothing is claimable; lost claim races look the same and the caller just
// polls again.
func (s *Service) Claim(ctx context.Context, workerID string) (*models.QueueEntry, error) {
	entry, err := s.store.ClaimQueueEntry(workerID, s.now(), s.leaseTTL)
	if err != nil {
		return nil, errors.Wrapf(err, "claim failed for worker '%s'", workerID)
	}
	if entry != nil {
		s.logger.Infof("Worker '%s' claimed entry %s ('%s', attempt %d/%d)",
			workerID, entry.ID, entry.ModuleType, entry.Attempts, entry.MaxAttempts)
	}
	return entry, nil
}

// Complete marks an entry terminally done.
func (s *Service) Complete(ctx context.Context, entryID string) error {
	entry, err := s.store.GetQueueEntry(entryID)
	if err != nil {
		return errors.Wrapf(err, "failed to get queue entry %s", entryID)
	}
	now := s.now()
	entry.Status = models.CompletedQueueStatus
	entry.ErrorMsg = ""
	entry.LeaseHolder = ""
	entry.LeaseExpiresAt = nil
	entry.CompletedAt = &now
	return s.store.UpdateQueueEntry(entry)
}

// Fail records a failed attempt: back to queued with the lease cleared when
// attempts remain, terminally failed otherwise. Reports whether the entry
// was requeued for retry.
func (s *Service) Fail(ctx context.Context, entryID, reason string) (bool, error) {
	entry, err := s.store.GetQueueEntry(entryID)
	if err != nil {
		return false, errors.Wrapf(err, "failed to get queue entry %s", entryID)
	}
	entry.ErrorMsg = reason
	entry.LeaseHolder = ""
	entry.LeaseExpiresAt = nil
	requeued := entry.Attempts < entry.MaxAttempts
	if requeued {
		entry.Status = models.QueuedQueueStatus
		s.logger.Infof("Requeued entry %s after failure (attempt %d/%d): %s",
			entry.ID, entry.Attempts, entry.MaxAttempts, reason)
	} else {
		entry.Status = models.FailedQueueStatus
		now := s.now()
		entry.CompletedAt = &now
		s.logger.Errorf("Entry %s terminally failed after %d attempts: %s", entry.ID, entry.Attempts, reason)
	}
	if err := s.store.UpdateQueueEntry(entry); err != nil {
		return false, err
	}
	return requeued, nil
}

// Release puts a claimed entry back without burning the attempt. Used when
// a worker claims an entry whose unit dependencies are not satisfied yet;
// that is ordinary scheduling, not a failure.
func (s *Service) Release(ctx context.Context, entryID string) error {
	entry, err := s.store.GetQueueEntry(entryID)
	if err != nil {
		return errors.Wrapf(err, "failed to get queue entry %s", entryID)
	}
	entry.Status = models.QueuedQueueStatus
	entry.LeaseHolder = ""
	entry.LeaseExpiresAt = nil
	if entry.Attempts > 0 {
		entry.Attempts--
	}
	return s.store.UpdateQueueEntry(entry)
}
