package usecase

import (
	"context"
	"log/slog"
	"time"

	"agency-ai/internal/domain"
)

// usageReportWindow is the lookback for the periodic usage report.
const usageReportWindow = 24 * time.Hour

// Janitor bundles the recurring maintenance the scheduler drives:
// sweeping stale agents offline, pruning old ledger rows and logging a
// periodic usage report. Each method matches the scheduler's action
// signature. A zero window disables the corresponding sweep.
type Janitor struct {
	registry     *Registry
	usage        domain.UsageStore // can be nil (no ledger configured)
	offlineAfter time.Duration
	retention    time.Duration
	logger       *slog.Logger
}

// NewJanitor creates a janitor. A nil logger discards records.
func NewJanitor(registry *Registry, usage domain.UsageStore, offlineAfter, retention time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = discardLogger()
	}
	return &Janitor{
		registry:     registry,
		usage:        usage,
		offlineAfter: offlineAfter,
		retention:    retention,
		logger:       logger,
	}
}

// SweepOffline marks idle agents inactive beyond the configured window
// as offline.
func (j *Janitor) SweepOffline(ctx context.Context) error {
	if j.offlineAfter <= 0 {
		return nil
	}
	j.registry.SweepOffline(ctx, j.offlineAfter)
	return nil
}

// PruneLedger deletes execution rows older than the retention window.
func (j *Janitor) PruneLedger(ctx context.Context) error {
	if j.usage == nil || j.retention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-j.retention)
	removed, err := j.usage.PruneExecutions(ctx, cutoff)
	if err != nil {
		return domain.WrapOp("Janitor.PruneLedger", err)
	}
	if removed > 0 {
		j.logger.Info("usage ledger pruned", "removed", removed, "cutoff", cutoff)
	}
	return nil
}

// ReportUsage logs the aggregate execution stats for the last day.
func (j *Janitor) ReportUsage(ctx context.Context) error {
	if j.usage == nil {
		return nil
	}
	stats, err := j.usage.UsageStats(ctx, domain.UsageFilter{Since: time.Now().Add(-usageReportWindow)})
	if err != nil {
		return domain.WrapOp("Janitor.ReportUsage", err)
	}
	j.logger.Info("usage report",
		"window", usageReportWindow,
		"executions", stats.Executions,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"input_tokens", stats.InputTokens,
		"output_tokens", stats.OutputTokens,
		"cost", stats.Cost,
		"agents", j.registry.Count(),
	)
	return nil
}
