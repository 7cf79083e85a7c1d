package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/rentflow/backend/internal/models"
)

// ErrAccessDataUnavailable means the subscription could not be fetched in time.
// Callers never see it; the service logs it and fails closed.
var ErrAccessDataUnavailable = errors.New("access data unavailable")

// Source tells where a Result came from.
type Source string

const (
	SourcePolicy    Source = "policy"
	SourceCache     Source = "cache"
	SourceFresh     Source = "fresh"
	SourceFallback  Source = "fallback"
	SourceSignedOut Source = "signed_out"
)

// Result is the outcome of an access resolution.
type Result struct {
	UserID                uuid.UUID `json:"user_id"`
	Status                Status    `json:"status"`
	HasActiveSubscription bool      `json:"has_active_subscription"`
	Source                Source    `json:"source"`
	ResolvedAt            time.Time `json:"resolved_at"`
}

// SubscriptionFetcher loads the subscription of a user. It returns (nil, nil) when the user has none.
type SubscriptionFetcher interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

// StatusStore persists the denormalized profiles.subscription_status column.
type StatusStore interface {
	UpdateSubscriptionStatus(ctx context.Context, userID uuid.UUID, status string) error
}

// Cache holds advisory statuses. It is never authoritative over a fresh computation.
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) (Status, bool, error)
	Set(ctx context.Context, userID uuid.UUID, status Status) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// ServiceConfig tunes the subscription fetch.
type ServiceConfig struct {
	FetchTimeout       time.Duration
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	Clock              func() time.Time
}

// Service resolves access for identities: policy overrides, cache, bounded fetch, fail closed.
type Service struct {
	subs    SubscriptionFetcher
	store   StatusStore
	cache   Cache
	policy  Policy
	breaker *gobreaker.CircuitBreaker[*models.Subscription]
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewService creates an access service. store, cache and policy may be nil.
func NewService(subs SubscriptionFetcher, store StatusStore, cache Cache, policy Policy, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 3 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	s := &Service{
		subs:    subs,
		store:   store,
		cache:   cache,
		policy:  policy,
		timeout: cfg.FetchTimeout,
		now:     cfg.Clock,
		logger:  logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[*models.Subscription](gobreaker.Settings{
		Name:    "subscription-fetch",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// an abandoned request says nothing about the database
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

// Resolve returns the access result for id, using the cache when it holds a value.
func (s *Service) Resolve(ctx context.Context, id Identity) Result {
	return s.resolve(ctx, id, true)
}

// ResolveFresh bypasses the cache. Use it before finalizing a paid action.
func (s *Service) ResolveFresh(ctx context.Context, id Identity) Result {
	return s.resolve(ctx, id, false)
}

// Invalidate drops the cached status of a user.
func (s *Service) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		return fmt.Errorf("invalidate access cache: %w", err)
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, id Identity, useCache bool) Result {
	if s.policy != nil {
		if status, ok := s.policy.Override(id); ok {
			return s.result(id.UserID, status, SourcePolicy)
		}
	}

	if useCache && s.cache != nil {
		status, ok, err := s.cache.Get(ctx, id.UserID)
		switch {
		case err != nil:
			s.logger.Warn("access cache read failed", zap.String("user_id", id.UserID.String()), zap.Error(err))
		case ok && status.Valid():
			return s.result(id.UserID, status, SourceCache)
		}
	}

	sub, err := s.fetch(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, models.ErrMalformedSubscription) {
			s.logger.Error("malformed subscription record", zap.String("user_id", id.UserID.String()), zap.Error(err))
		} else {
			s.logger.Warn("subscription fetch failed, failing closed", zap.String("user_id", id.UserID.String()), zap.Error(err))
		}
		return s.result(id.UserID, StatusIncomplete, SourceFallback)
	}

	res := s.result(id.UserID, Resolve(sub, s.now()), SourceFresh)
	s.remember(ctx, res)
	return res
}

func (s *Service) fetch(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if s.subs == nil {
		return nil, ErrAccessDataUnavailable
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sub, err := s.breaker.Execute(func() (*models.Subscription, error) {
		return s.subs.GetByUserID(fetchCtx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccessDataUnavailable, err)
	}
	if sub == nil {
		return nil, nil
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return sub, nil
}

// remember writes the advisory cache and the denormalized profile column. Failures are logged only.
func (s *Service) remember(ctx context.Context, res Result) {
	if s.cache != nil {
		if err := s.cache.Set(ctx, res.UserID, res.Status); err != nil {
			s.logger.Warn("access cache write failed", zap.String("user_id", res.UserID.String()), zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.UpdateSubscriptionStatus(ctx, res.UserID, string(res.Status)); err != nil {
			s.logger.Warn("subscription_status write failed", zap.String("user_id", res.UserID.String()), zap.Error(err))
		}
	}
}

func (s *Service) result(userID uuid.UUID, status Status, source Source) Result {
	return Result{
		UserID:                userID,
		Status:                status,
		HasActiveSubscription: HasActiveSubscription(status),
		Source:                source,
		ResolvedAt:            s.now(),
	}
}
