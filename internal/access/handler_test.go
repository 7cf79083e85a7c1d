package access

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentflow/backend/internal/middleware"
	"github.com/rentflow/backend/internal/models"
	"github.com/rentflow/backend/pkg/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEnqueuer struct {
	payloads []queue.AccessRefreshPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueAccessRefresh(_ context.Context, p queue.AccessRefreshPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// withUser stands in for middleware.JWT.
func withUser(id Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, id.UserID)
		c.Set(middleware.ContextUserEmail, id.Email)
		c.Set(middleware.ContextUserRole, id.Role)
		c.Next()
	}
}

func newRouter(svc *Service, id *Identity, q RefreshEnqueuer) *gin.Engine {
	h := NewHandler(svc, NewDispatcher(svc, nil), q)
	r := gin.New()
	if id != nil {
		r.Use(withUser(*id))
	}
	r.GET("/me/access", h.Get)
	r.POST("/me/access/refresh", h.Refresh)
	r.POST("/admin/users/:id/access/refresh", h.AdminRefresh)
	r.GET("/app/session", RequireActiveSubscription(svc), h.Session)
	r.GET("/app/session/verify", RequireFreshActiveSubscription(svc), h.Session)
	return r
}

func do(r http.Handler, method, path string) (*httptest.ResponseRecorder, envelope) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body envelope
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func activeFetcher(userID uuid.UUID) *fakeFetcher {
	end := now.Add(24 * time.Hour)
	return &fakeFetcher{sub: &models.Subscription{UserID: userID, Status: models.SubscriptionActive, CurrentPeriodEnd: &end}}
}

func TestGuard_AllowsActiveSubscription(t *testing.T) {
	id := Identity{UserID: uuid.New(), Email: "tenant@example.com"}
	r := newRouter(newTestService(activeFetcher(id.UserID), nil, nil, nil), &id, nil)

	w, body := do(r, http.MethodGet, "/app/session")
	require.Equal(t, http.StatusOK, w.Code)

	var res Result
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.Equal(t, StatusActive, res.Status)
	assert.True(t, res.HasActiveSubscription)
}

func TestGuard_RejectsWithoutSubscription(t *testing.T) {
	id := Identity{UserID: uuid.New()}
	r := newRouter(newTestService(&fakeFetcher{}, nil, nil, nil), &id, nil)

	w, body := do(r, http.MethodGet, "/app/session")
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.False(t, body.Success)
	assert.Equal(t, "subscription required", body.Error)
}

func TestGuard_FailsClosedOnTimeout(t *testing.T) {
	id := Identity{UserID: uuid.New()}
	r := newRouter(newTestService(&fakeFetcher{block: true}, nil, nil, nil), &id, nil)

	w, _ := do(r, http.MethodGet, "/app/session/verify")
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestGuard_FreshIgnoresCache(t *testing.T) {
	id := Identity{UserID: uuid.New()}
	cache := newFakeCache()
	cache.data[id.UserID] = StatusActive
	r := newRouter(newTestService(&fakeFetcher{}, nil, cache, nil), &id, nil)

	w, _ := do(r, http.MethodGet, "/app/session")
	assert.Equal(t, http.StatusOK, w.Code)

	cache.data[id.UserID] = StatusActive
	w, _ = do(r, http.MethodGet, "/app/session/verify")
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestGuard_MasterAdminBypassesStore(t *testing.T) {
	id := Identity{UserID: uuid.New(), Email: "root@rentflow.io", Role: string(models.RoleAdmin)}
	fetcher := &fakeFetcher{err: errors.New("db down")}
	r := newRouter(newTestService(fetcher, nil, nil, NewMasterAdminPolicy("root@rentflow.io")), &id, nil)

	w, _ := do(r, http.MethodGet, "/app/session/verify")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, fetcher.Calls())
}

func TestGuard_RequiresUserContext(t *testing.T) {
	r := newRouter(newTestService(&fakeFetcher{}, nil, nil, nil), nil, nil)
	w, _ := do(r, http.MethodGet, "/app/session")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(r, http.MethodGet, "/me/access")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_GetAndRefresh(t *testing.T) {
	id := Identity{UserID: uuid.New()}
	r := newRouter(newTestService(activeFetcher(id.UserID), nil, newFakeCache(), nil), &id, nil)

	w, body := do(r, http.MethodGet, "/me/access")
	require.Equal(t, http.StatusOK, w.Code)
	var res Result
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.Equal(t, SourceFresh, res.Source)

	w, body = do(r, http.MethodGet, "/me/access")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.Equal(t, SourceCache, res.Source)

	w, body = do(r, http.MethodPost, "/me/access/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.Equal(t, SourceFresh, res.Source)
	assert.Equal(t, StatusActive, res.Status)
}

func TestHandler_AdminRefresh(t *testing.T) {
	admin := Identity{UserID: uuid.New(), Role: string(models.RoleAdmin)}
	q := &fakeEnqueuer{}
	r := newRouter(newTestService(&fakeFetcher{}, nil, nil, nil), &admin, q)

	target := uuid.New()
	w, _ := do(r, http.MethodPost, "/admin/users/"+target.String()+"/access/refresh")
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, q.payloads, 1)
	assert.Equal(t, target, q.payloads[0].UserID)
	assert.Equal(t, "admin", q.payloads[0].Reason)

	w, _ = do(r, http.MethodPost, "/admin/users/not-a-uuid/access/refresh")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	q.err = errors.New("redis down")
	w, _ = do(r, http.MethodPost, "/admin/users/"+target.String()+"/access/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
