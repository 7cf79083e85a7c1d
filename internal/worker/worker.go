package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rentflow/backend/internal/access"
	"github.com/rentflow/backend/internal/models"
	"github.com/rentflow/backend/pkg/queue"
)

// JobQueue is the subset of queue.Queue the processor uses.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ProfileLookup loads the identity fields of a user.
type ProfileLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// PeriodEndLister finds subscriptions whose paid period ended in a window.
type PeriodEndLister interface {
	ListPeriodEndedBetween(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

// AccessProcessor re-resolves access for queued users and sweeps lapsed subscriptions.
type AccessProcessor struct {
	dispatcher *access.Dispatcher
	profiles   ProfileLookup
	subs       PeriodEndLister
	queue      JobQueue
	logger     *zap.Logger
}

// NewAccessProcessor creates an access refresh processor.
func NewAccessProcessor(dispatcher *access.Dispatcher, profiles ProfileLookup, subs PeriodEndLister, q JobQueue, logger *zap.Logger) *AccessProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessProcessor{dispatcher: dispatcher, profiles: profiles, subs: subs, queue: q, logger: logger}
}

// Process executes one access refresh job.
func (p *AccessProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAccessRefresh {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.AccessRefreshPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return p.refresh(ctx, payload.UserID)
}

func (p *AccessProcessor) refresh(ctx context.Context, userID uuid.UUID) error {
	profile, err := p.profiles.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", userID, err)
	}
	res := p.dispatcher.Dispatch(ctx, access.Event{
		Type:     access.EventSubscriptionUpdated,
		Identity: access.Identity{UserID: profile.ID, Email: profile.Email, Role: string(profile.Role)},
	})
	if res.Source == access.SourceFallback {
		return fmt.Errorf("access for %s unresolved: %w", userID, access.ErrAccessDataUnavailable)
	}
	p.logger.Info("access refreshed", zap.String("user_id", userID.String()), zap.String("status", string(res.Status)))
	return nil
}

// Sweep re-resolves every user whose paid period ended in (from, to].
// It returns how many users were refreshed.
func (p *AccessProcessor) Sweep(ctx context.Context, from, to time.Time) (int, error) {
	ids, err := p.subs.ListPeriodEndedBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list lapsed subscriptions: %w", err)
	}
	n := 0
	for _, id := range ids {
		if err := p.refresh(ctx, id); err != nil {
			p.logger.Warn("sweep refresh failed", zap.String("user_id", id.String()), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// RunSweeper calls Sweep every interval over the window since the previous tick.
// The first window reaches lookback into the past so periods that ended while the
// worker was down are still picked up; pass the status cache TTL.
func (p *AccessProcessor) RunSweeper(ctx context.Context, interval, lookback time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now().Add(-lookback)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("access sweeper stopping")
			return
		case now := <-ticker.C:
			n, err := p.Sweep(ctx, last, now)
			if err != nil {
				p.logger.Warn("access sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Info("access sweep completed", zap.Int("refreshed", n))
			}
			last = now
		}
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *AccessProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("access worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			sleep(ctx, queue.RetryBackoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
