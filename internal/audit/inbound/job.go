package inbound

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/goverify/goverify/internal/pkg/config"
	"github.com/goverify/goverify/internal/pkg/goroutine"
)

// RegisterArchiveJob starts the periodic archive of old attempt records.
// A local flag skips a tick while the previous run is still going; the
// cross-instance lock lives inside the usecase.
func RegisterArchiveJob(ctx context.Context, cfg config.Config, routine *goroutine.Manager, u uc) {
	interval := cfg.GetMinute("modules.audit.archive_interval_minutes")
	if interval <= 0 {
		interval = 60 * time.Minute
	}

	var running atomic.Bool

	routine.Go(ctx, func(pCtx context.Context) error {
		slog.InfoContext(pCtx, "Running job for archiving attempt records", "interval", interval.String())

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
				if err := u.Archive(pCtx); err != nil {
					slog.ErrorContext(pCtx, "attempt archive run failed", "error", err)
				}
				running.Store(false)
			}
		}
	})
}
