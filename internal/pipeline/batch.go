package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reengage-cli/internal/metrics"
	"github.com/sells-group/reengage-cli/internal/model"
)

// ErrBatchLocked is returned when another batch holds the lock.
var ErrBatchLocked = eris.New("pipeline: another batch is running")

// BatchLockName is the store lock guarding batch and single-deal runs.
const BatchLockName = "batch"

// TriggerDeal is the ledger trigger for single-deal runs.
const TriggerDeal = "deal"

// Ledger records runs and outcomes and arbitrates the batch lock.
type Ledger interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
	CreateRun(ctx context.Context, trigger string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.BatchSummary, errMsg string) error
	RecordOutcome(ctx context.Context, o model.DealOutcome) error
}

// BatchOptions controls one batch run.
type BatchOptions struct {
	// Limit caps the deals considered. Zero uses the configured limit.
	Limit int
	// DryRun generates emails without writing anything to the CRM.
	DryRun bool
	// Trigger is recorded on the ledger run ("cli", "cron", "http").
	Trigger string
}

// RunBatch processes every open deal in the cadence stages, one at a time.
func (p *Pipeline) RunBatch(ctx context.Context, opts BatchOptions) (*model.BatchSummary, error) {
	start := time.Now()
	owner := uuid.NewString()
	log := zap.L().With(zap.String("lock_owner", owner), zap.Bool("dry_run", opts.DryRun))

	release, err := p.lock(ctx, log, owner)
	if err != nil {
		return nil, err
	}
	defer release()

	trigger := opts.Trigger
	if trigger == "" {
		trigger = "cli"
	}
	run, err := p.ledger.CreateRun(ctx, trigger)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: batch started", zap.String("trigger", trigger))

	deals, err := p.crm.FetchDealsInStages(ctx, p.cadences.Stages())
	if err != nil {
		err = eris.Wrap(err, "pipeline: fetch deals")
		p.finish(ctx, log, run.ID, model.RunStatusFailed, nil, err.Error())
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = p.limit
	}
	if limit > 0 && len(deals) > limit {
		log.Info("pipeline: batch limited", zap.Int("found", len(deals)), zap.Int("limit", limit))
		deals = deals[:limit]
	}

	summary := &model.BatchSummary{ByStatus: make(map[model.OutcomeStatus]int)}
	for _, d := range deals {
		if ctx.Err() != nil {
			break
		}
		out := p.process(ctx, d, opts.DryRun)
		out.RunID = run.ID
		if err := p.ledger.RecordOutcome(context.WithoutCancel(ctx), out); err != nil {
			log.Warn("pipeline: record outcome failed", zap.Int64("deal_id", d.ID), zap.Error(err))
		}
		summary.Add(out)
	}

	if ctx.Err() != nil {
		p.finish(ctx, log, run.ID, model.RunStatusFailed, summary, "cancelled")
		metrics.ObserveBatch(start)
		return summary, eris.Wrap(ctx.Err(), "pipeline: batch cancelled")
	}

	p.finish(ctx, log, run.ID, model.RunStatusComplete, summary, "")
	metrics.ObserveBatch(start)
	log.Info("pipeline: batch complete",
		zap.Int("total", summary.Total),
		zap.Int("written", summary.Written),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("conflicts", summary.Conflicts),
		zap.Float64("cost_usd", summary.TotalCost),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}

// lock takes the batch lock for owner and returns its release func.
func (p *Pipeline) lock(ctx context.Context, log *zap.Logger, owner string) (func(), error) {
	acquired, err := p.ledger.AcquireLock(ctx, BatchLockName, owner, p.lockTTL)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: acquire batch lock")
	}
	if !acquired {
		return nil, ErrBatchLocked
	}
	return func() {
		if err := p.ledger.ReleaseLock(context.WithoutCancel(ctx), BatchLockName, owner); err != nil {
			log.Warn("pipeline: release batch lock failed", zap.Error(err))
		}
	}, nil
}

func (p *Pipeline) finish(ctx context.Context, log *zap.Logger, runID string, status model.RunStatus, summary *model.BatchSummary, errMsg string) {
	if err := p.ledger.CompleteRun(context.WithoutCancel(ctx), runID, status, summary, errMsg); err != nil {
		log.Warn("pipeline: complete run failed", zap.Error(err))
	}
}
