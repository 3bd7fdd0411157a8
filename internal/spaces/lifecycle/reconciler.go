package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/spaces/internal/spaces/runtime"
	"github.com/bdobrica/spaces/internal/spaces/store"
)

// ReconcilerConfig configures the auto-expiry loop.
type ReconcilerConfig struct {
	// Interval is how often to sweep. Defaults to 5m.
	Interval time.Duration
	// SessionBudget is how long a space may run before being stopped.
	// Defaults to 3h.
	SessionBudget time.Duration
}

// Reconciler stops spaces whose running session exceeded the budget, and
// repairs rows that drifted from engine reality along the way.
type Reconciler struct {
	store *store.Store
	rt    runtime.Runtime
	cfg   ReconcilerConfig
	log   *slog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(st *store.Store, rt runtime.Runtime, cfg ReconcilerConfig, log *slog.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.SessionBudget <= 0 {
		cfg.SessionBudget = 3 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: st, rt: rt, cfg: cfg, log: log}
}

// Run sweeps immediately, then on every tick, until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("expiry reconciler starting",
		"interval", r.cfg.Interval, "session_budget", r.cfg.SessionBudget)

	if err := r.Sweep(ctx); err != nil {
		r.log.Error("expiry sweep failed", "err", err)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("expiry reconciler stopping")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Error("expiry sweep failed", "err", err)
			}
		}
	}
}

// Sweep runs one expiry pass. Each expired space is handled independently;
// one failure never blocks the rest.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.cfg.SessionBudget)
	expired, err := r.store.ListExpiredRunning(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list expired spaces: %w", err)
	}

	for _, sp := range expired {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.expire(ctx, sp); err != nil {
			r.log.Error("failed to expire space", "space_id", sp.ID, "err", err)
		}
	}
	return nil
}

func (r *Reconciler) expire(ctx context.Context, sp *store.Space) error {
	err := r.rt.Stop(ctx, sp.ContainerID)
	switch {
	case err == nil:
		r.log.Info("space expired and stopped",
			"space_id", sp.ID, "user_id", sp.UserID, "started_at", sp.StartedAt.Time)
	case errors.Is(err, runtime.ErrAlreadyStopped), errors.Is(err, runtime.ErrNotFound):
		// Desired state already holds; only the row is stale.
		r.log.Info("expired space already down, repairing row",
			"space_id", sp.ID, "user_id", sp.UserID)
	default:
		return fmt.Errorf("stop container: %w", err)
	}

	if err := r.store.MarkSpaceStopped(ctx, sp.ID); err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return fmt.Errorf("mark stopped: %w", err)
	}
	return nil
}
