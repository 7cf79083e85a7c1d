package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rentflow/backend/internal/models"
)

// Store is the persistence the checkout service needs.
type Store interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// Quote is the checkout total for a plan and an optional coupon.
type Quote struct {
	PlanID      uuid.UUID       `json:"plan_id"`
	PlanName    string          `json:"plan_name"`
	Currency    string          `json:"currency"`
	PlanPrice   decimal.Decimal `json:"plan_price"`
	Discount    decimal.Decimal `json:"discount"`
	FinalPrice  decimal.Decimal `json:"final_price"`
	Coupon      *AppliedCoupon  `json:"coupon,omitempty"`
	CouponError *CouponError    `json:"coupon_error,omitempty"`
}

// Service computes checkout quotes.
type Service struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewService creates a checkout service. Lookups are bounded by fetchTimeout.
func NewService(store Store, fetchTimeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 3 * time.Second
	}
	return &Service{store: store, timeout: fetchTimeout, now: time.Now, logger: logger}
}

// SetClock replaces the time source (tests).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Quote prices planID with the optional coupon code. Coupon rejections are reported in
// Quote.CouponError and leave the price undiscounted; only plan lookup failures are returned.
func (s *Service) Quote(ctx context.Context, planID uuid.UUID, code string) (*Quote, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	plan, err := s.store.GetPlan(fetchCtx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}

	q := &Quote{
		PlanID:     plan.ID,
		PlanName:   plan.Name,
		Currency:   plan.Currency,
		PlanPrice:  plan.Price,
		Discount:   decimal.Zero,
		FinalPrice: FinalPrice(plan.Price, nil),
	}
	if NormalizeCode(code) == "" {
		return q, nil
	}

	applied, err := s.ApplyCoupon(fetchCtx, code, plan.Price)
	if err != nil {
		var cerr *CouponError
		if errors.As(err, &cerr) {
			q.CouponError = cerr
		}
		return q, nil
	}
	q.Coupon = applied
	q.Discount = applied.DiscountValue
	q.FinalPrice = FinalPrice(plan.Price, applied)
	return q, nil
}

// ApplyCoupon looks the code up and validates it against price. The returned error is
// always a *CouponError; lookup failures fail closed as not found.
func (s *Service) ApplyCoupon(ctx context.Context, code string, price decimal.Decimal) (*AppliedCoupon, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	coupon, err := s.store.GetCouponByCode(fetchCtx, code)
	if err != nil {
		if errors.Is(err, ErrMalformedCoupon) {
			s.logger.Error("malformed coupon record", zap.String("code", NormalizeCode(code)), zap.Error(err))
		} else {
			s.logger.Warn("coupon lookup failed", zap.String("code", NormalizeCode(code)), zap.Error(err))
		}
		return nil, ErrCouponNotFound
	}
	return Validate(coupon, code, price, s.now())
}
