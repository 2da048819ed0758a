package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Deal outcomes within the lookback window.
	DealsTotal     int     `json:"deals_total"`
	DealsWritten   int     `json:"deals_written"`
	DealsSkipped   int     `json:"deals_skipped"`
	DealsFailed    int     `json:"deals_failed"`
	DealsConflicts int     `json:"deals_conflicts"`
	DealFailRate   float64 `json:"deal_fail_rate"`
	CostUSD        float64 `json:"cost_usd"`

	// Batch runs started within the lookback window.
	RunsTotal   int `json:"runs_total"`
	RunsFailed  int `json:"runs_failed"`
	RunsRunning int `json:"runs_running"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Ledger is the subset of store.Store the collector reads.
type Ledger interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	ListOutcomes(ctx context.Context, filter store.OutcomeFilter) ([]model.DealOutcome, error)
}

// Collector gathers metrics from the run ledger.
type Collector struct {
	ledger Ledger
	now    func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(ledger Ledger) *Collector {
	return &Collector{ledger: ledger, now: time.Now}
}

// Collect gathers a snapshot of ledger metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	outcomes, err := c.ledger.ListOutcomes(ctx, store.OutcomeFilter{Since: cutoff, Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list outcomes")
	}

	var summary model.BatchSummary
	for _, o := range outcomes {
		summary.Add(o)
	}
	snap.DealsTotal = summary.Total
	snap.DealsWritten = summary.Written
	snap.DealsSkipped = summary.Skipped
	snap.DealsFailed = summary.Failed
	snap.DealsConflicts = summary.Conflicts
	snap.CostUSD = summary.TotalCost
	if processed := summary.Written + summary.Failed; processed > 0 {
		snap.DealFailRate = float64(summary.Failed) / float64(processed)
	}

	runs, err := c.ledger.ListRuns(ctx, store.RunFilter{Limit: 1000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}

	return snap, nil
}
