package worker

import (
	"context"
	"log/slog"
	"time"

	"tokenomy/internal/service"
)

// PricingWorker triggers the adaptive pricing cycle on a fixed period. The
// engine's own gates keep concurrent triggers for one community single-flight,
// so overlapping ticks across instances are harmless.
type PricingWorker struct {
	engine   *service.PricingEngine
	interval time.Duration
}

func NewPricingWorker(engine *service.PricingEngine, interval time.Duration) *PricingWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PricingWorker{engine: engine, interval: interval}
}

// Start runs the ticker loop until ctx is cancelled.
func (w *PricingWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("Pricing worker is running", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Pricing worker shutting down")
			return nil
		case <-ticker.C:
			changed, err := w.engine.RunAll(ctx)
			if err != nil {
				slog.Error("pricing worker: run failed", "error", err)
				continue
			}
			if changed > 0 {
				slog.Info("pricing worker: prices updated", "changed", changed)
			}
		}
	}
}

// Stop implements the infrastructure.Server interface (shutdown is via ctx).
func (w *PricingWorker) Stop(ctx context.Context) error {
	return nil
}
