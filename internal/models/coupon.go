package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CouponType is percentage or fixed.
type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

// Coupon is a checkout discount code. Codes are stored uppercased and matched case-insensitively.
type Coupon struct {
	ID          uuid.UUID       `json:"id"`
	Code        string          `json:"code"`
	Type        CouponType      `json:"type"`
	Value       decimal.Decimal `json:"value"`
	IsActive    bool            `json:"is_active"`
	ValidUntil  *time.Time      `json:"valid_until,omitempty"`
	MaxUses     int             `json:"max_uses"`
	CurrentUses int             `json:"current_uses"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
