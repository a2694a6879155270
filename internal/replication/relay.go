package replication

import (
	"context"
	"math"
	"time"

	"echosphere/internal/mirror"
	"echosphere/internal/model"
	"echosphere/internal/repository"

	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"
)

// RelayConfig tunes the outbox relay. Zero values take the defaults.
type RelayConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	Rate           int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.Rate <= 0 {
		c.Rate = 200
	}
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 5 * time.Minute
	}
	return c
}

// Relay drains the outbox into the mirror in id order. A row that fails
// holds back the rows behind it until its backoff expires, so the mirror
// sees writes in commit order. Rows that exhaust their attempts are left
// in the table with their last error and skipped.
type Relay struct {
	outbox  repository.OutboxRepository
	tree    mirror.Tree
	cfg     RelayConfig
	limiter ratelimit.Limiter
	now     func() time.Time
}

// NewRelay returns a relay draining outbox into tree.
func NewRelay(outbox repository.OutboxRepository, tree mirror.Tree, cfg RelayConfig) *Relay {
	cfg = cfg.withDefaults()
	return &Relay{
		outbox:  outbox,
		tree:    tree,
		cfg:     cfg,
		limiter: ratelimit.New(cfg.Rate, ratelimit.WithoutSlack),
		now:     time.Now,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	jww.INFO.Printf("outbox relay started (poll %v, batch %d)", r.cfg.PollInterval, r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			jww.ERROR.Printf("outbox relay: %+v", err)
		}

		select {
		case <-ctx.Done():
			jww.INFO.Printf("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick processes one batch and returns how many rows were delivered.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	events, err := r.outbox.Pending(ctx, r.cfg.MaxAttempts, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := range events {
		ev := &events[i]
		if ev.NextAttemptAt.After(r.now()) {
			break
		}

		r.limiter.Take()

		op, decodeErr := mirror.DecodeOp(ev.Payload)
		if decodeErr != nil {
			jww.ERROR.Printf("outbox event %d is undecodable, giving up: %v", ev.ID, decodeErr)
			if err := r.outbox.MarkFailed(ctx, ev.ID, r.cfg.MaxAttempts, decodeErr.Error(), r.now()); err != nil {
				return delivered, err
			}
			continue
		}

		if err := mirror.Apply(ctx, r.tree, op); err != nil {
			blocked, markErr := r.fail(ctx, ev, err)
			if markErr != nil {
				return delivered, markErr
			}
			if blocked {
				break
			}
			continue
		}

		if err := r.outbox.MarkDelivered(ctx, ev.ID, r.now()); err != nil {
			return delivered, err
		}
		delivered++
	}

	if delivered > 0 {
		jww.DEBUG.Printf("outbox relay delivered %d events", delivered)
	}
	return delivered, nil
}

// fail records a failed attempt and reports whether later rows must wait.
func (r *Relay) fail(ctx context.Context, ev *model.OutboxEvent, cause error) (bool, error) {
	attempts := ev.Attempts + 1

	if attempts >= r.cfg.MaxAttempts {
		jww.ERROR.Printf("outbox event %d (%s %s) failed %d times, giving up: %v",
			ev.ID, ev.Op, ev.Path, attempts, cause)
		return false, r.outbox.MarkFailed(ctx, ev.ID, attempts, cause.Error(), r.now())
	}

	delay := r.retryDelay(attempts)
	jww.WARN.Printf("outbox event %d (%s %s) failed (attempt %d/%d), retrying in %v: %v",
		ev.ID, ev.Op, ev.Path, attempts, r.cfg.MaxAttempts, delay, cause)
	return true, r.outbox.MarkFailed(ctx, ev.ID, attempts, cause.Error(), r.now().Add(delay))
}

func (r *Relay) retryDelay(attempts int) time.Duration {
	delay := float64(r.cfg.BaseRetryDelay) * math.Pow(2, float64(attempts-1))
	if time.Duration(delay) > r.cfg.MaxRetryDelay || math.IsInf(delay, 0) {
		return r.cfg.MaxRetryDelay
	}
	return time.Duration(delay)
}
