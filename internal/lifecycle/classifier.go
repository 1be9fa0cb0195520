// internal/lifecycle/classifier.go
package lifecycle

import (
	"time"

	"media-reconciler/internal/models"
)

// State is the lifecycle classification of an active subscription record.
type State string

const (
	StateActive       State = "Active"
	StateExpiringSoon State = "ExpiringSoon"
	StateExpired      State = "Expired"
)

// Classify places an active record on the lifecycle timeline relative to
// today. Records without an end date never expire. The second return is
// days left until expiry; it is meaningless when the first is StateActive
// because of a nil end date.
func Classify(rec models.SubscriptionRecord, today time.Time, windowDays int) (State, int) {
	if rec.EndDate == nil {
		return StateActive, 0
	}

	days := DaysUntil(today, *rec.EndDate)
	switch {
	case days < 0:
		return StateExpired, days
	case days < windowDays:
		return StateExpiringSoon, days
	default:
		return StateActive, days
	}
}

// DaysUntil counts whole calendar days from today to the end date, using
// date components only so time-of-day and zone offsets cannot shift the
// boundary. The end date itself still counts as zero days left.
func DaysUntil(today, end time.Time) int {
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(t).Hours() / 24)
}
