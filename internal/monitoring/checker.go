package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reengage-cli/internal/config"
	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/internal/store"
)

// RunStore lists ledger runs and closes the ones left open.
type RunStore interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.BatchSummary, errMsg string) error
}

// Checker watches the ledger while the server is up. Each tick it closes runs
// stuck in running longer than the batch lock TTL, then evaluates thresholds
// and posts alerts.
type Checker struct {
	collector  *Collector
	alerter    *Alerter
	runs       RunStore
	staleAfter time.Duration
	lookback   int
	interval   time.Duration
	now        func() time.Time
}

// NewChecker creates a checker. staleAfter is normally the batch lock TTL: a
// run still open past it has lost its lock and will never complete.
func NewChecker(collector *Collector, alerter *Alerter, runs RunStore, cfg config.MonitoringConfig, staleAfter time.Duration) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector:  collector,
		alerter:    alerter,
		runs:       runs,
		staleAfter: staleAfter,
		lookback:   cfg.LookbackWindowHours,
		interval:   interval,
		now:        time.Now,
	}
}

// Run sweeps once at start, so runs abandoned by a crashed process are closed
// right away, then every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: checker started",
		zap.Duration("interval", c.interval),
		zap.Duration("stale_after", c.staleAfter),
		zap.Int("lookback_hours", c.lookback),
	)

	if ctx.Err() == nil {
		c.check(ctx, log)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	var alerts []Alert

	closed, err := c.closeStale(ctx, log)
	if err != nil {
		log.Error("monitoring: stale run sweep failed", zap.Error(err))
	}
	if len(closed) > 0 {
		alerts = append(alerts, c.staleAlert(closed))
	}

	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: collect snapshot failed", zap.Error(err))
	} else {
		alerts = append(alerts, c.alerter.Evaluate(snap)...)
	}

	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts")
		return
	}
	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: check complete",
		zap.Int("alerts", len(alerts)),
		zap.Int("sent", sent),
		zap.Int("stale_runs_closed", len(closed)),
	)
}

// closeStale marks open runs older than staleAfter as failed and returns them.
func (c *Checker) closeStale(ctx context.Context, log *zap.Logger) ([]model.Run, error) {
	if c.staleAfter <= 0 {
		return nil, nil
	}
	open, err := c.runs.ListRuns(ctx, store.RunFilter{Status: model.RunStatusRunning, Limit: 100})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list open runs")
	}

	cutoff := c.now().UTC().Add(-c.staleAfter)
	var closed []model.Run
	for _, r := range open {
		if r.Status != model.RunStatusRunning || !r.StartedAt.Before(cutoff) {
			continue
		}
		msg := fmt.Sprintf("abandoned: still running after %s", c.staleAfter)
		if err := c.runs.CompleteRun(ctx, r.ID, model.RunStatusFailed, r.Summary, msg); err != nil {
			log.Warn("monitoring: close stale run failed", zap.String("run_id", r.ID), zap.Error(err))
			continue
		}
		log.Warn("monitoring: closed stale run",
			zap.String("run_id", r.ID),
			zap.String("trigger", r.Trigger),
			zap.Time("started_at", r.StartedAt),
		)
		closed = append(closed, r)
	}
	return closed, nil
}

func (c *Checker) staleAlert(closed []model.Run) Alert {
	ids := make([]string, len(closed))
	for i, r := range closed {
		ids[i] = r.ID
	}
	return Alert{
		Type:     AlertStaleRun,
		Severity: "high",
		Message:  fmt.Sprintf("%d run(s) never completed within %s and were marked failed", len(closed), c.staleAfter),
		Details: map[string]any{
			"run_ids":     ids,
			"stale_after": c.staleAfter.String(),
		},
		Timestamp: c.now().UTC(),
	}
}
