package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentflow/backend/internal/models"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func coupon(typ models.CouponType, value string) *models.Coupon {
	until := now.Add(30 * 24 * time.Hour)
	return &models.Coupon{
		ID:         uuid.New(),
		Code:       "SAVE20",
		Type:       typ,
		Value:      dec(value),
		IsActive:   true,
		ValidUntil: &until,
		MaxUses:    100,
	}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestValidate_Percentage(t *testing.T) {
	applied, err := Validate(coupon(models.CouponPercentage, "20"), "SAVE20", dec("99.90"), now)
	require.NoError(t, err)
	assertDec(t, "19.98", applied.DiscountValue)
	assertDec(t, "79.92", FinalPrice(dec("99.90"), applied))
}

func TestValidate_FixedCappedAtPrice(t *testing.T) {
	applied, err := Validate(coupon(models.CouponFixed, "150"), "save20", dec("99.90"), now)
	require.NoError(t, err)
	assertDec(t, "99.90", applied.DiscountValue)
	assertDec(t, "0", FinalPrice(dec("99.90"), applied))
}

func TestValidate_RoundsToCents(t *testing.T) {
	applied, err := Validate(coupon(models.CouponPercentage, "33.333"), "SAVE20", dec("10"), now)
	require.NoError(t, err)
	assertDec(t, "3.33", applied.DiscountValue)
	assertDec(t, "6.67", FinalPrice(dec("10"), applied))
}

func TestValidate_Rejections(t *testing.T) {
	expired := coupon(models.CouponPercentage, "10")
	past := now.Add(-time.Minute)
	expired.ValidUntil = &past

	exhausted := coupon(models.CouponPercentage, "10")
	exhausted.CurrentUses = exhausted.MaxUses

	inactive := coupon(models.CouponPercentage, "10")
	inactive.IsActive = false

	expiredAndExhausted := coupon(models.CouponPercentage, "10")
	expiredAndExhausted.ValidUntil = &past
	expiredAndExhausted.CurrentUses = 500

	tests := []struct {
		name   string
		coupon *models.Coupon
		code   string
		want   CouponErrorKind
	}{
		{"missing", nil, "SAVE20", CouponNotFound},
		{"inactive", inactive, "SAVE20", CouponNotFound},
		{"code mismatch", coupon(models.CouponFixed, "5"), "SAVE30", CouponNotFound},
		{"expired", expired, "SAVE20", CouponExpired},
		{"exhausted", exhausted, "SAVE20", CouponExhausted},
		{"expiry checked before usage", expiredAndExhausted, "SAVE20", CouponExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applied, err := Validate(tt.coupon, tt.code, dec("99.90"), now)
			assert.Nil(t, applied)
			var cerr *CouponError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.want, cerr.Kind)
		})
	}
}

func TestValidate_UnknownTypeIsNotApplied(t *testing.T) {
	for _, typ := range []models.CouponType{"", "bogo", "Percentage"} {
		applied, err := Validate(coupon(typ, "20"), "SAVE20", dec("99.90"), now)
		assert.Nil(t, applied, "type %q", typ)
		assert.ErrorIs(t, err, ErrCouponNotFound, "type %q", typ)
	}
}

func TestValidate_ExpiringExactlyNowIsValid(t *testing.T) {
	c := coupon(models.CouponFixed, "5")
	c.ValidUntil = &now
	_, err := Validate(c, "SAVE20", dec("20"), now)
	assert.NoError(t, err)

	c.ValidUntil = nil
	_, err = Validate(c, "SAVE20", dec("20"), now)
	assert.NoError(t, err)
}

func TestCouponError_Is(t *testing.T) {
	copyErr := &CouponError{Kind: CouponExhausted, Message: "different text"}
	assert.ErrorIs(t, copyErr, ErrCouponExhausted)
	assert.NotErrorIs(t, copyErr, ErrCouponExpired)
}

func TestValidate_DiscountBounds(t *testing.T) {
	prices := []string{"0", "0.01", "1", "9.99", "99.90", "149.50", "1000"}
	coupons := []*models.Coupon{
		coupon(models.CouponPercentage, "0"),
		coupon(models.CouponPercentage, "15"),
		coupon(models.CouponPercentage, "100"),
		coupon(models.CouponPercentage, "250"),
		coupon(models.CouponFixed, "0"),
		coupon(models.CouponFixed, "10"),
		coupon(models.CouponFixed, "5000"),
		coupon(models.CouponFixed, "-3"),
	}
	for _, p := range prices {
		price := dec(p)
		for _, c := range coupons {
			first, err := Validate(c, c.Code, price, now)
			require.NoError(t, err)
			again, err := Validate(c, c.Code, price, now)
			require.NoError(t, err)
			assert.True(t, first.DiscountValue.Equal(again.DiscountValue))

			assert.False(t, first.DiscountValue.IsNegative())
			assert.True(t, first.DiscountValue.LessThanOrEqual(price))
			assert.GreaterOrEqual(t, first.DiscountValue.Exponent(), int32(-2))

			final := FinalPrice(price, first)
			assert.False(t, final.IsNegative())
			assert.True(t, final.Add(first.DiscountValue).Equal(price), "price %s coupon %s %s", p, c.Type, c.Value)
		}
	}
}

func TestFinalPrice_WithoutCoupon(t *testing.T) {
	assertDec(t, "49.00", FinalPrice(dec("49.00"), nil))
	assertDec(t, "0", FinalPrice(dec("-5"), nil))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE20", NormalizeCode("  save20 "))
	assert.Equal(t, "", NormalizeCode("   "))
}
