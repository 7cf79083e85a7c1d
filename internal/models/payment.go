package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is a sellable subscription plan.
type Plan struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PaymentStatus for payments.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment records a completed provider checkout, including the coupon it redeemed.
type Payment struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	PlanID            *uuid.UUID      `json:"plan_id,omitempty"`
	CouponID          *uuid.UUID      `json:"coupon_id,omitempty"`
	ProviderPaymentID string          `json:"provider_payment_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Discount          decimal.Decimal `json:"discount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}
