package scheduler

import (
	"math"

	"github.com/koreops-ai/sas-api/pkg/models"
)

// Progress derives the overall percentage from unit statuses. A unit
// awaiting review counts as almost done so the number does not regress
// while the workflow is paused for a human.
func Progress(units []models.Unit) int {
	if len(units) == 0 {
		return 0
	}
	var sum float64
	for _, u := range units {
		switch u.Status {
		case models.CompletedUnitStatus, models.ApprovedUnitStatus:
			sum += 1.0
		case models.AwaitingReviewUnitStatus:
			sum += 0.9
		case models.RunningUnitStatus:
			sum += float64(u.Progress) / 100.0
		}
	}
	return int(math.Round(100 * sum / float64(len(units))))
}

// IsComplete holds when every unit is terminal. Failed, skipped and blocked
// units do not prevent completion; whether a completed-with-failures run
// counts as business success is the caller's policy.
func IsComplete(units []models.Unit) bool {
	for _, u := range units {
		if !u.Status.Terminal() {
			return false
		}
	}
	return len(units) > 0
}

// IsAwaitingReview holds when any unit sits behind a pending checkpoint.
func IsAwaitingReview(units []models.Unit) bool {
	for _, u := range units {
		if u.Status == models.AwaitingReviewUnitStatus {
			return true
		}
	}
	return false
}
