package access

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rentflow/backend/internal/middleware"
	"github.com/rentflow/backend/pkg/queue"
	"github.com/rentflow/backend/pkg/response"
)

// ContextAccess is the gin context key holding the Result computed by a guard.
const ContextAccess = "access_result"

// RefreshEnqueuer schedules a background re-resolution.
type RefreshEnqueuer interface {
	EnqueueAccessRefresh(ctx context.Context, payload queue.AccessRefreshPayload) error
}

// Handler serves the current user's access status.
type Handler struct {
	svc        *Service
	dispatcher *Dispatcher
	queue      RefreshEnqueuer
}

// NewHandler creates an access handler.
func NewHandler(svc *Service, dispatcher *Dispatcher, q RefreshEnqueuer) *Handler {
	return &Handler{svc: svc, dispatcher: dispatcher, queue: q}
}

// Get handles GET /me/access.
func (h *Handler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	response.OK(c, h.svc.Resolve(c.Request.Context(), id))
}

// Refresh handles POST /me/access/refresh. Always recomputes from the subscription store.
func (h *Handler) Refresh(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	res := h.dispatcher.Dispatch(c.Request.Context(), Event{Type: EventRefreshRequested, Identity: id})
	response.OK(c, res)
}

// AdminRefresh handles POST /admin/users/:id/access/refresh (admin only). The worker performs
// the resolution so the caller's identity never leaks into the target's policy checks.
func (h *Handler) AdminRefresh(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.queue.EnqueueAccessRefresh(c.Request.Context(), queue.AccessRefreshPayload{UserID: userID, Reason: "admin"}); err != nil {
		response.ServiceUnavailable(c, "failed to schedule refresh")
		return
	}
	response.Accepted(c, gin.H{"user_id": userID, "scheduled": true})
}

// RequireActiveSubscription gates dashboard-class routes. Call after JWT.
// The cached status is accepted.
func RequireActiveSubscription(svc *Service) gin.HandlerFunc {
	return guard(svc, false)
}

// RequireFreshActiveSubscription gates paid actions and never trusts the cache.
func RequireFreshActiveSubscription(svc *Service) gin.HandlerFunc {
	return guard(svc, true)
}

func guard(svc *Service, fresh bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		var res Result
		if fresh {
			res = svc.ResolveFresh(c.Request.Context(), id)
		} else {
			res = svc.Resolve(c.Request.Context(), id)
		}
		c.Set(ContextAccess, res)
		if !res.HasActiveSubscription {
			response.PaymentRequired(c, "subscription required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) (Identity, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		return Identity{}, false
	}
	return Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, true
}

// Session handles GET /app/session behind a guard and echoes the result the guard computed.
// The frontend calls it on route changes; with the fresh guard it is the pre-check for paid actions.
func (h *Handler) Session(c *gin.Context) {
	v, ok := c.Get(ContextAccess)
	if !ok {
		response.Internal(c, "access guard missing")
		return
	}
	response.OK(c, v)
}
