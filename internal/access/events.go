package access

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventType enumerates the auth-state changes that trigger re-resolution.
type EventType string

const (
	EventSignedIn            EventType = "signed_in"
	EventSignedOut           EventType = "signed_out"
	EventTokenRefreshed      EventType = "token_refreshed"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventRefreshRequested    EventType = "refresh_requested"
)

// Event is an auth-state change for one identity.
type Event struct {
	Type     EventType
	Identity Identity
}

// Listener receives the result computed for an event.
type Listener func(ctx context.Context, ev Event, res Result)

// Dispatcher reruns the resolver on auth-state changes and notifies listeners.
type Dispatcher struct {
	svc       *Service
	mu        sync.RWMutex
	listeners []Listener
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher bound to svc.
func NewDispatcher(svc *Service, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{svc: svc, logger: logger}
}

// OnAuthStateChange registers a listener. Listeners run synchronously in registration order.
func (d *Dispatcher) OnAuthStateChange(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Dispatch invalidates the cached status and recomputes it. A signed-out identity is
// reported as incomplete without touching the subscription store.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Result {
	if err := d.svc.Invalidate(ctx, ev.Identity.UserID); err != nil {
		d.logger.Warn("access invalidate failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}

	var res Result
	if ev.Type == EventSignedOut {
		res = d.svc.result(ev.Identity.UserID, StatusIncomplete, SourceSignedOut)
	} else {
		res = d.svc.ResolveFresh(ctx, ev.Identity)
	}

	d.logger.Debug("access resolved",
		zap.String("event", string(ev.Type)),
		zap.String("user_id", ev.Identity.UserID.String()),
		zap.String("status", string(res.Status)),
		zap.String("source", string(res.Source)),
	)

	d.mu.RLock()
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, ev, res)
	}
	return res
}
