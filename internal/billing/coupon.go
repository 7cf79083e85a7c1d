// Package billing prices plans at checkout, validates coupons and records provider payments.
package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rentflow/backend/internal/models"
)

// CouponErrorKind classifies a coupon rejection for the checkout surface.
type CouponErrorKind string

const (
	CouponNotFound  CouponErrorKind = "not_found"
	CouponExpired   CouponErrorKind = "expired"
	CouponExhausted CouponErrorKind = "exhausted"
)

// CouponError is a user-correctable coupon rejection. It is a value, never a panic.
type CouponError struct {
	Kind    CouponErrorKind `json:"kind"`
	Message string          `json:"message"`
}

func (e *CouponError) Error() string { return e.Message }

// Is matches on Kind so errors.Is(err, ErrCouponExpired) works on copies.
func (e *CouponError) Is(target error) bool {
	t, ok := target.(*CouponError)
	return ok && t.Kind == e.Kind
}

var (
	ErrCouponNotFound  = &CouponError{Kind: CouponNotFound, Message: "coupon not found or inactive"}
	ErrCouponExpired   = &CouponError{Kind: CouponExpired, Message: "coupon has expired"}
	ErrCouponExhausted = &CouponError{Kind: CouponExhausted, Message: "coupon usage limit reached"}
)

// AppliedCoupon is a validated coupon with its discount for one price.
type AppliedCoupon struct {
	models.Coupon
	DiscountValue decimal.Decimal `json:"discount_value"`
}

var hundred = decimal.NewFromInt(100)

// NormalizeCode returns the canonical stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks c against code, planPrice and now. Checks fail fast in order:
// not found / inactive, expired, exhausted. The discount is rounded to cents and
// never exceeds the price.
func Validate(c *models.Coupon, code string, planPrice decimal.Decimal, now time.Time) (*AppliedCoupon, error) {
	if c == nil || !c.IsActive || NormalizeCode(c.Code) != NormalizeCode(code) {
		return nil, ErrCouponNotFound
	}
	if c.ValidUntil != nil && c.ValidUntil.Before(now) {
		return nil, ErrCouponExpired
	}
	if c.CurrentUses >= c.MaxUses {
		return nil, ErrCouponExhausted
	}

	price := clampZero(planPrice)
	var discount decimal.Decimal
	switch c.Type {
	case models.CouponPercentage:
		discount = price.Mul(c.Value).Div(hundred)
	case models.CouponFixed:
		discount = c.Value
	default:
		// a coupon we cannot price is never applied
		return nil, ErrCouponNotFound
	}
	discount = decimal.Min(clampZero(discount.Round(2)), price)

	return &AppliedCoupon{Coupon: *c, DiscountValue: discount}, nil
}

// FinalPrice is planPrice minus the applied discount, never below zero.
func FinalPrice(planPrice decimal.Decimal, applied *AppliedCoupon) decimal.Decimal {
	discount := decimal.Zero
	if applied != nil {
		discount = applied.DiscountValue
	}
	return clampZero(planPrice.Sub(discount))
}

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
