package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rentflow/backend/internal/access"
	"github.com/rentflow/backend/internal/models"
)

var (
	// ErrMalformedCoupon is returned when a stored coupon row cannot be trusted.
	ErrMalformedCoupon = errors.New("malformed coupon")
	// ErrPlanNotFound is returned for unknown or inactive plans.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrCouponNotRedeemable is returned when a redemption finds no remaining uses.
	ErrCouponNotRedeemable = errors.New("coupon not redeemable")
	// ErrMissingProviderPaymentID is returned for a checkout without the provider's payment id.
	ErrMissingProviderPaymentID = errors.New("provider payment id required")
)

// Repository handles plan, coupon and payment persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a billing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCouponByCode returns the coupon whose uppercased code equals the normalized code, or nil.
func (r *Repository) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	const q = `SELECT id, code, type, value::text, is_active, valid_until, max_uses, current_uses, created_at, updated_at
		FROM coupons WHERE UPPER(code) = $1`
	var c models.Coupon
	var typ, value string
	err := r.pool.QueryRow(ctx, q, NormalizeCode(code)).Scan(&c.ID, &c.Code, &typ, &value, &c.IsActive, &c.ValidUntil,
		&c.MaxUses, &c.CurrentUses, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Type = models.CouponType(typ)
	if c.Type != models.CouponPercentage && c.Type != models.CouponFixed {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedCoupon, typ)
	}
	if c.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("%w: value %q", ErrMalformedCoupon, value)
	}
	return &c, nil
}

// GetPlan returns an active plan by ID.
func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	const q = `SELECT id, name, type, price::text, currency, active, created_at, updated_at
		FROM plans WHERE id = $1 AND active`
	p, err := scanPlan(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	return p, err
}

// ListPlans returns active plans ordered by price.
func (r *Repository) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, type, price::text, currency, active, created_at, updated_at
		FROM plans WHERE active ORDER BY price, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// CompleteCheckout records a paid checkout atomically: the subscription is upserted, the
// coupon (if any) consumes one use, and the payment row is written. A coupon that ran out
// of uses between quote and payment aborts the transaction with ErrCouponNotRedeemable.
func (r *Repository) CompleteCheckout(ctx context.Context, sub *models.Subscription, payment *models.Payment) error {
	if payment.ProviderPaymentID == "" {
		return ErrMissingProviderPaymentID
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := access.UpsertSubscription(ctx, tx, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	if payment.CouponID != nil {
		tag, err := tx.Exec(ctx, `UPDATE coupons SET current_uses = current_uses + 1, updated_at = NOW()
			WHERE id = $1 AND current_uses < max_uses`, *payment.CouponID)
		if err != nil {
			return fmt.Errorf("redeem coupon: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrCouponNotRedeemable
		}
	}
	const q = `INSERT INTO payments (id, user_id, plan_id, coupon_id, provider_payment_id, amount, discount, currency, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8)
		ON CONFLICT (provider_payment_id) DO NOTHING
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, q, payment.UserID, payment.PlanID, payment.CouponID, payment.ProviderPaymentID,
		payment.Amount.String(), payment.Discount.String(), payment.Currency, payment.Status).
		Scan(&payment.ID, &payment.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// already recorded: a redelivered webhook must not consume the coupon twice
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return tx.Commit(ctx)
}

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var p models.Plan
	var price string
	if err := row.Scan(&p.ID, &p.Name, &p.Type, &price, &p.Currency, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("plan price %q: %w", price, err)
	}
	p.Price = d
	return &p, nil
}
