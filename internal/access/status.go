// Package access derives the effective access tier of a profile from its subscription and
// exposes it to route guards, the UI and realtime listeners.
package access

import (
	"time"

	"github.com/rentflow/backend/internal/models"
)

// Status is the effective access tier. It is always derived from a Subscription and the
// current time; it is never the source of truth.
type Status string

const (
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusIncomplete Status = "incomplete"
	StatusPastDue    Status = "past_due"
	// StatusTrialing is never produced by Resolve; it is accepted when reading cached values.
	StatusTrialing Status = "trialing"
)

// Valid reports whether s is a status this package can produce or accept from a cache.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusIncomplete, StatusPastDue, StatusTrialing:
		return true
	}
	return false
}

// Resolve computes the effective status for sub at now. First matching rule wins.
func Resolve(sub *models.Subscription, now time.Time) Status {
	if sub == nil || sub.Status == "" {
		return StatusIncomplete
	}
	end := sub.CurrentPeriodEnd
	hasTimeRemaining := end != nil && end.After(now)

	switch sub.Status {
	case models.SubscriptionTrialing, models.SubscriptionActive, models.SubscriptionCanceled:
		// canceled keeps access until the paid period ends
		if end != nil && end.Before(now) {
			return StatusExpired
		}
		return StatusActive
	case models.SubscriptionPastDue:
		if hasTimeRemaining {
			return StatusPastDue
		}
		return StatusExpired
	default:
		return StatusIncomplete
	}
}

// HasActiveSubscription is the single gate for dashboard-class routes and paid UI.
func HasActiveSubscription(s Status) bool {
	return s == StatusActive || s == StatusTrialing
}
