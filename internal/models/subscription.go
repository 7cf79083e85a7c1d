package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the raw, provider-reported state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
)

// ErrMalformedSubscription is returned when a stored subscription row cannot be trusted.
var ErrMalformedSubscription = errors.New("malformed subscription")

// Known reports whether s is one of the provider states this backend understands.
func (s SubscriptionStatus) Known() bool {
	switch s {
	case SubscriptionIncomplete, SubscriptionTrialing, SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled:
		return true
	}
	return false
}

// Subscription is a user's billing subscription as mirrored from the payment provider.
// CurrentPeriodEnd, not Status, decides whether paid time remains.
type Subscription struct {
	ID                     uuid.UUID          `json:"id"`
	UserID                 uuid.UUID          `json:"user_id"`
	Status                 SubscriptionStatus `json:"status"`
	CurrentPeriodEnd       *time.Time         `json:"current_period_end,omitempty"`
	PlanType               string             `json:"plan_type,omitempty"`
	PlanName               string             `json:"plan_name,omitempty"`
	ProviderCustomerID     string             `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string             `json:"provider_subscription_id,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// Validate checks the fields the access resolver depends on. An empty status is allowed
// (it resolves to incomplete); an unrecognised one is not.
func (s *Subscription) Validate() error {
	if s.UserID == uuid.Nil {
		return fmt.Errorf("%w: missing user_id", ErrMalformedSubscription)
	}
	if s.Status != "" && !s.Status.Known() {
		return fmt.Errorf("%w: unknown status %q", ErrMalformedSubscription, s.Status)
	}
	return nil
}
