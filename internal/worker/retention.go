package worker

import (
	"context"
	"log/slog"
	"time"

	"tokenomy/internal/repository"
)

// usageIdleCutoff is how long a usage window may sit untouched before its
// rolling counters are zeroed. All-time totals and timestamps survive.
const usageIdleCutoff = 7 * 24 * time.Hour

// RetentionWorker runs the advisory cleanup sweeps: expired cooldown rows,
// stale usage windows, old price history. None of these affect correctness;
// expiry and windows are always checked against the clock at read time.
type RetentionWorker struct {
	store          repository.Store
	interval       time.Duration
	historyHorizon time.Duration
}

func NewRetentionWorker(store repository.Store, interval, historyHorizon time.Duration) *RetentionWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if historyHorizon <= 0 {
		historyHorizon = 90 * 24 * time.Hour
	}
	return &RetentionWorker{store: store, interval: interval, historyHorizon: historyHorizon}
}

func (w *RetentionWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("Retention worker is running", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Retention worker shutting down")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RetentionWorker) sweep(ctx context.Context) {
	now := time.Now()

	cooldowns, err := w.store.Cooldowns().PurgeExpired(ctx, now)
	if err != nil {
		slog.Error("retention: purge cooldowns", "error", err)
	}
	windows, err := w.store.Usage().ZeroStale(ctx, now.Add(-usageIdleCutoff))
	if err != nil {
		slog.Error("retention: zero stale usage", "error", err)
	}
	history, err := w.store.Prices().PurgeBefore(ctx, now.Add(-w.historyHorizon))
	if err != nil {
		slog.Error("retention: purge price history", "error", err)
	}

	if cooldowns+windows+history > 0 {
		slog.Info("retention: sweep complete",
			"cooldowns_purged", cooldowns,
			"usage_windows_zeroed", windows,
			"price_history_purged", history,
		)
	}
}

func (w *RetentionWorker) Stop(ctx context.Context) error {
	return nil
}
