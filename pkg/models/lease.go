package models

import "time"

// Lease is a time-bounded claim on a queue entry. It is a soft lock: expiry
// means the holder is presumed dead and the entry may be reclaimed.
type Lease struct {
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the lease has lapsed at the given instant.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Claimable reports whether a worker may take the entry at the given
// instant: it is queued, or a prior holder's lease has expired.
func Claimable(e QueueEntry, now time.Time) bool {
	switch e.Status {
	case QueuedQueueStatus:
		return true
	case ProcessingQueueStatus:
		lease := e.Lease()
		return lease == nil || lease.Expired(now)
	}
	return false
}
