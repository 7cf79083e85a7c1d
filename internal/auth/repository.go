package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentflow/backend/internal/models"
	"github.com/rentflow/backend/pkg/utils"
)

const profileColumns = `id, organization_id, email, password_hash, full_name, COALESCE(company_name,''), COALESCE(phone,''),
	role, subscription_status, last_login_at, created_at, updated_at`

// Repository handles profile and tenant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a profile by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

// GetByEmail returns a profile by email (case-insensitive).
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE LOWER(email) = LOWER($1)`, email))
}

// CreateProfileParams holds optional fields for registration.
type CreateProfileParams struct {
	CompanyName string
	Phone       string
}

// Create inserts a new profile. When a company name is given a tenant organization is
// created in the same transaction and the profile becomes its owner.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role, params *CreateProfileParams) (*models.Profile, error) {
	company, phone := "", ""
	if params != nil {
		company, phone = params.CompanyName, params.Phone
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orgID *uuid.UUID
	if company != "" {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `INSERT INTO organizations (id, name, slug)
			VALUES (gen_random_uuid(), $1, $2) RETURNING id`, company, utils.Slugify(company)+"-"+uuid.NewString()[:8]).Scan(&id)
		if err != nil {
			return nil, err
		}
		orgID = &id
	}

	q := `INSERT INTO profiles (email, password_hash, full_name, company_name, phone, role, organization_id)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), $6, $7)
		RETURNING ` + profileColumns
	p, err := scanProfile(tx.QueryRow(ctx, q, email, passwordHash, fullName, company, phone, string(role), orgID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateLastLogin records a successful sign-in.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE profiles SET last_login_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

// UpdateSubscriptionStatus writes the denormalized effective status. Only changed rows are touched.
func (r *Repository) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE profiles SET subscription_status = $2, updated_at = NOW()
		WHERE id = $1 AND subscription_status IS DISTINCT FROM $2`, id, status)
	return err
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	var role string
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Email, &p.Password, &p.FullName, &p.CompanyName, &p.Phone,
		&role, &p.SubscriptionStatus, &p.LastLoginAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	return &p, nil
}
