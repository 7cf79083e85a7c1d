package access

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentflow/backend/internal/models"
)

const subscriptionColumns = `id, user_id, COALESCE(status,''), current_period_end, COALESCE(plan_type,''), COALESCE(plan_name,''),
	COALESCE(provider_customer_id,''), COALESCE(provider_subscription_id,''), created_at, updated_at`

// Repository handles subscription persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a subscriptions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByUserID returns the user's subscription, or nil when there is none.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`
	s, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Upsert inserts or replaces the subscription of s.UserID.
func (r *Repository) Upsert(ctx context.Context, s *models.Subscription) error {
	return UpsertSubscription(ctx, r.pool, s)
}

// ListPeriodEndedBetween returns users whose paid period ended in (from, to].
func (r *Repository) ListPeriodEndedBetween(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM subscriptions
		WHERE current_period_end > $1 AND current_period_end <= $2
		ORDER BY current_period_end`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertSubscription writes s through q so it can join a caller's transaction.
func UpsertSubscription(ctx context.Context, q Querier, s *models.Subscription) error {
	const stmt = `INSERT INTO subscriptions (id, user_id, status, current_period_end, plan_type, plan_name,
		provider_customer_id, provider_subscription_id)
		VALUES (gen_random_uuid(), $1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''))
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			plan_type = COALESCE(EXCLUDED.plan_type, subscriptions.plan_type),
			plan_name = COALESCE(EXCLUDED.plan_name, subscriptions.plan_name),
			provider_customer_id = COALESCE(EXCLUDED.provider_customer_id, subscriptions.provider_customer_id),
			provider_subscription_id = COALESCE(EXCLUDED.provider_subscription_id, subscriptions.provider_subscription_id),
			updated_at = NOW()
		RETURNING id, created_at, updated_at`
	return q.QueryRow(ctx, stmt, s.UserID, string(s.Status), s.CurrentPeriodEnd, s.PlanType, s.PlanName,
		s.ProviderCustomerID, s.ProviderSubscriptionID).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	var status string
	if err := row.Scan(&s.ID, &s.UserID, &status, &s.CurrentPeriodEnd, &s.PlanType, &s.PlanName,
		&s.ProviderCustomerID, &s.ProviderSubscriptionID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = models.SubscriptionStatus(status)
	return &s, nil
}
