package access

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentflow/backend/internal/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	sub   *models.Subscription
	err   error
	block bool
	calls int
}

func (f *fakeFetcher) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	f.mu.Lock()
	f.calls++
	sub, err, block := f.sub, f.err, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return sub, err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct {
	mu      sync.Mutex
	data    map[uuid.UUID]Status
	getErr  error
	deleted []uuid.UUID
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[uuid.UUID]Status{}} }

func (c *fakeCache) Get(_ context.Context, id uuid.UUID) (Status, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	s, ok := c.data[id]
	return s, ok, nil
}

func (c *fakeCache) Set(_ context.Context, id uuid.UUID, s Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = s
	return nil
}

func (c *fakeCache) Delete(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
	c.deleted = append(c.deleted, id)
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	written map[uuid.UUID]string
}

func (s *fakeStore) UpdateSubscriptionStatus(_ context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written == nil {
		s.written = map[uuid.UUID]string{}
	}
	s.written[id] = status
	return nil
}

func newTestService(f SubscriptionFetcher, store StatusStore, cache Cache, policy Policy) *Service {
	return NewService(f, store, cache, policy, ServiceConfig{
		FetchTimeout:    50 * time.Millisecond,
		BreakerFailures: 3,
		Clock:           func() time.Time { return now },
	}, nil)
}

func TestService_ResolveFresh(t *testing.T) {
	id := Identity{UserID: uuid.New(), Email: "tenant@example.com"}
	end := now.Add(24 * time.Hour)
	fetcher := &fakeFetcher{sub: &models.Subscription{UserID: id.UserID, Status: models.SubscriptionActive, CurrentPeriodEnd: &end}}
	cache, store := newFakeCache(), &fakeStore{}
	svc := newTestService(fetcher, store, cache, nil)

	res := svc.ResolveFresh(context.Background(), id)
	assert.Equal(t, StatusActive, res.Status)
	assert.True(t, res.HasActiveSubscription)
	assert.Equal(t, SourceFresh, res.Source)
	assert.Equal(t, now, res.ResolvedAt)
	assert.Equal(t, id.UserID, res.UserID)

	assert.Equal(t, StatusActive, cache.data[id.UserID])
	assert.Equal(t, "active", store.written[id.UserID])
}

func TestService_NoSubscriptionIsIncomplete(t *testing.T) {
	svc := newTestService(&fakeFetcher{}, nil, nil, nil)
	res := svc.Resolve(context.Background(), Identity{UserID: uuid.New()})
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.False(t, res.HasActiveSubscription)
	assert.Equal(t, SourceFresh, res.Source)
}

func TestService_CacheHit(t *testing.T) {
	id := Identity{UserID: uuid.New()}
	fetcher := &fakeFetcher{}
	cache := newFakeCache()
	cache.data[id.UserID] = StatusActive
	svc := newTestService(fetcher, nil, cache, nil)

	res := svc.Resolve(context.Background(), id)
	assert.Equal(t, StatusActive, res.Status)
	assert.Equal(t, SourceCache, res.Source)
	assert.Zero(t, fetcher.Calls())

	fresh := svc.ResolveFresh(context.Background(), id)
	assert.Equal(t, StatusIncomplete, fresh.Status)
	assert.Equal(t, 1, fetcher.Calls())
}

func TestService_CacheErrorsAndGarbageFallThrough(t *testing.T) {
	id := Identity{UserID: uuid.New()}
	end := now.Add(time.Hour)
	fetcher := &fakeFetcher{sub: &models.Subscription{UserID: id.UserID, Status: models.SubscriptionTrialing, CurrentPeriodEnd: &end}}

	broken := newFakeCache()
	broken.getErr = errors.New("redis down")
	res := newTestService(fetcher, nil, broken, nil).Resolve(context.Background(), id)
	assert.Equal(t, SourceFresh, res.Source)
	assert.Equal(t, StatusActive, res.Status)

	garbage := newFakeCache()
	garbage.data[id.UserID] = Status("bogus")
	res = newTestService(fetcher, nil, garbage, nil).Resolve(context.Background(), id)
	assert.Equal(t, SourceFresh, res.Source)
	assert.Equal(t, StatusActive, garbage.data[id.UserID])
}

func TestService_FetchTimeoutFailsClosed(t *testing.T) {
	id := Identity{UserID: uuid.New()}
	cache, store := newFakeCache(), &fakeStore{}
	svc := newTestService(&fakeFetcher{block: true}, store, cache, nil)

	start := time.Now()
	res := svc.ResolveFresh(context.Background(), id)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, StatusIncomplete, res.Status)
	assert.False(t, res.HasActiveSubscription)
	assert.Equal(t, SourceFallback, res.Source)

	_, cached := cache.data[id.UserID]
	assert.False(t, cached)
	assert.Empty(t, store.written)
}

func TestService_FetchErrorFailsClosed(t *testing.T) {
	svc := newTestService(&fakeFetcher{err: errors.New("connection refused")}, nil, nil, nil)
	res := svc.Resolve(context.Background(), Identity{UserID: uuid.New()})
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.Equal(t, SourceFallback, res.Source)
}

func TestService_MalformedSubscriptionFailsClosed(t *testing.T) {
	end := now.Add(time.Hour)
	tests := []struct {
		name string
		sub  *models.Subscription
	}{
		{"missing user", &models.Subscription{Status: models.SubscriptionActive, CurrentPeriodEnd: &end}},
		{"unknown status", &models.Subscription{UserID: uuid.New(), Status: "enterprise", CurrentPeriodEnd: &end}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&fakeFetcher{sub: tt.sub}, nil, nil, nil)
			res := svc.ResolveFresh(context.Background(), Identity{UserID: uuid.New()})
			assert.Equal(t, StatusIncomplete, res.Status)
			assert.Equal(t, SourceFallback, res.Source)
		})
	}
}

func TestService_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("timeout")}
	svc := newTestService(fetcher, nil, nil, nil)
	id := Identity{UserID: uuid.New()}

	for i := 0; i < 3; i++ {
		svc.ResolveFresh(context.Background(), id)
	}
	require.Equal(t, 3, fetcher.Calls())

	res := svc.ResolveFresh(context.Background(), id)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, 3, fetcher.Calls(), "open breaker must not reach the store")
}

func TestService_PolicyOverrideSkipsFetch(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("should not be called")}
	store := &fakeStore{}
	svc := newTestService(fetcher, store, newFakeCache(), NewMasterAdminPolicy("root@rentflow.io"))

	res := svc.ResolveFresh(context.Background(), Identity{UserID: uuid.New(), Email: "ROOT@rentflow.io", Role: "admin"})
	assert.Equal(t, StatusActive, res.Status)
	assert.True(t, res.HasActiveSubscription)
	assert.Equal(t, SourcePolicy, res.Source)
	assert.Zero(t, fetcher.Calls())
	assert.Empty(t, store.written)
}

func TestService_Invalidate(t *testing.T) {
	id := uuid.New()
	cache := newFakeCache()
	cache.data[id] = StatusActive
	svc := newTestService(&fakeFetcher{}, nil, cache, nil)

	require.NoError(t, svc.Invalidate(context.Background(), id))
	_, ok := cache.data[id]
	assert.False(t, ok)

	assert.NoError(t, newTestService(&fakeFetcher{}, nil, nil, nil).Invalidate(context.Background(), id))
}

func TestService_NilFetcherFailsClosed(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	res := svc.Resolve(context.Background(), Identity{UserID: uuid.New()})
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, StatusIncomplete, res.Status)
}
