package workers

import (
	"chat-client/observability"
	"context"
	"log/slog"
	"time"
)

// ReporterWorker logs the synchronization counters every interval and once more on shutdown.
type ReporterWorker struct {
	stats    *observability.SyncStats
	interval time.Duration
	log      *slog.Logger
}

func NewReporterWorker(stats *observability.SyncStats, interval time.Duration, log *slog.Logger) *ReporterWorker {
	return &ReporterWorker{stats: stats, interval: interval, log: log}
}

func (w *ReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.stats.LogSummary(w.log)
			return nil
		case <-ticker.C:
			w.stats.LogSummary(w.log)
		}
	}
}
