package inbound

import (
	"context"
	"log/slog"
	"time"

	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/goroutine"
	"go.uber.org/atomic"
)

type uc interface {
	SessionCleanup(ctx context.Context) error
}

// RegisterCleanupJob starts the periodic sweep of expired verification
// sessions. A local flag skips a tick while the previous run is still going;
// the cross-instance lock lives inside the usecase.
func RegisterCleanupJob(ctx context.Context, cfg config.Config, routine *goroutine.Manager, u uc) {
	interval := cfg.GetMinute("modules.verification.cleanup_interval_minutes")
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	var running atomic.Bool

	routine.Go(ctx, func(pCtx context.Context) error {
		slog.InfoContext(pCtx, "Running job for sweeping expired sessions", "interval", interval.String())

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-pCtx.Done():
				return pCtx.Err()
			case <-ticker.C:
				if !running.CompareAndSwap(false, true) {
					continue
				}
				if err := u.SessionCleanup(pCtx); err != nil {
					slog.ErrorContext(pCtx, "session cleanup run failed", "error", err)
				}
				running.Store(false)
			}
		}
	})
}
