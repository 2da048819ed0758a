// Package pipeline decides, drafts, and writes cadence emails for open deals.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reengage-cli/internal/agent"
	"github.com/sells-group/reengage-cli/internal/cadence"
	"github.com/sells-group/reengage-cli/internal/config"
	"github.com/sells-group/reengage-cli/internal/cost"
	"github.com/sells-group/reengage-cli/internal/crm"
	"github.com/sells-group/reengage-cli/internal/label"
	"github.com/sells-group/reengage-cli/internal/metrics"
	"github.com/sells-group/reengage-cli/internal/model"
)

// CRM is the deal repository the pipeline reads from and writes to.
type CRM interface {
	FetchDealsInStages(ctx context.Context, stageIDs []int) ([]*model.Deal, error)
	GetDeal(ctx context.Context, id int64) (*model.Deal, error)
	FetchNotes(ctx context.Context, dealID int64) (string, error)
	UpdateEmail(ctx context.Context, dealID int64, title, body string) error
	InitializeStep(ctx context.Context, dealID int64) error
	AdvanceStep(ctx context.Context, dealID int64, current int) error
}

// Analyst digests meeting notes.
type Analyst interface {
	Analyze(ctx context.Context, notes, agentID string) (*model.StrategicDossier, error)
}

// Researcher gathers external insights.
type Researcher interface {
	Research(ctx context.Context, instruction string, profile model.Profile, systemPrompt string, dossier *model.StrategicDossier) (*model.ResearchDossier, error)
}

// Writer drafts the email.
type Writer interface {
	Generate(ctx context.Context, agentID string, in agent.WriterInput) (*model.Email, error)
}

// Deps holds the pipeline's collaborators.
type Deps struct {
	CRM        CRM
	Analyst    Analyst
	Researcher Researcher
	Writer     Writer
	Ledger     Ledger
	Cadences   *cadence.Resolver
	Labels     *label.Resolver
	Lookup     crm.OptionLookup
	Costs      *cost.Calculator
}

// Pipeline runs the per-deal state machine and the batch around it.
type Pipeline struct {
	crm        CRM
	analyst    Analyst
	researcher Researcher
	writer     Writer
	ledger     Ledger
	cadences   *cadence.Resolver
	labels     *label.Resolver
	lookup     crm.OptionLookup
	costs      *cost.Calculator
	limit      int
	lockTTL    time.Duration
}

// New creates a Pipeline.
func New(cfg *config.Config, d Deps) *Pipeline {
	costs := d.Costs
	if costs == nil {
		costs = cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))
	}
	return &Pipeline{
		crm:        d.CRM,
		analyst:    d.Analyst,
		researcher: d.Researcher,
		writer:     d.Writer,
		ledger:     d.Ledger,
		cadences:   d.Cadences,
		labels:     d.Labels,
		lookup:     d.Lookup,
		costs:      costs,
		limit:      cfg.Batch.Limit,
		lockTTL:    cfg.Batch.LockTTL(),
	}
}

// ProcessDeal runs one deal through the pipeline and writes the result.
func (p *Pipeline) ProcessDeal(ctx context.Context, d *model.Deal) model.DealOutcome {
	return p.process(ctx, d, false)
}

// ProcessDealByID fetches one deal and processes it under the batch lock, so
// it never overlaps a running batch. The outcome is recorded on its own ledger
// run. With dryRun the email is generated but nothing is written back.
func (p *Pipeline) ProcessDealByID(ctx context.Context, id int64, dryRun bool) (model.DealOutcome, error) {
	out := model.DealOutcome{DealID: id}
	owner := uuid.NewString()
	log := zap.L().With(zap.Int64("deal_id", id), zap.String("lock_owner", owner))

	release, err := p.lock(ctx, log, owner)
	if err != nil {
		return out, err
	}
	defer release()

	run, err := p.ledger.CreateRun(ctx, TriggerDeal)
	if err != nil {
		return out, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))

	d, err := p.crm.GetDeal(ctx, id)
	if err != nil {
		err = eris.Wrap(err, "pipeline: fetch deal")
		p.finish(ctx, log, run.ID, model.RunStatusFailed, nil, err.Error())
		return out, err
	}

	out = p.process(ctx, d, dryRun)
	out.RunID = run.ID
	if err := p.ledger.RecordOutcome(context.WithoutCancel(ctx), out); err != nil {
		log.Warn("pipeline: record outcome failed", zap.Error(err))
	}
	summary := &model.BatchSummary{ByStatus: make(map[model.OutcomeStatus]int)}
	summary.Add(out)
	p.finish(ctx, log, run.ID, model.RunStatusComplete, summary, "")
	return out, nil
}

func (p *Pipeline) process(ctx context.Context, d *model.Deal, dryRun bool) (out model.DealOutcome) {
	log := zap.L().With(zap.Int64("deal_id", d.ID))
	out = model.DealOutcome{DealID: d.ID}

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: panic while processing deal", zap.Any("panic", r), zap.Stack("stack"))
			out.Status = model.OutcomeFailedError
			out.Error = fmt.Sprintf("panic: %v", r)
		}
		out.CreatedAt = time.Now().UTC()
		metrics.ObserveOutcome(out)
		log.Info("pipeline: deal processed",
			zap.String("status", string(out.Status)),
			zap.String("cadence", out.Cadence),
			zap.Int("step", out.Step),
			zap.Float64("cost_usd", out.Cost),
		)
	}()

	if d.HasEmail() {
		out.Status = model.OutcomeSkippedExisting
		return out
	}

	t, ok := p.cadences.DetermineType(d)
	if !ok {
		log.Debug("pipeline: stage has no cadence", zap.Int("stage_id", d.StageID))
		out.Status = model.OutcomeSkippedNoCadence
		return out
	}
	out.Cadence = p.cadences.Name(t)
	step := p.cadences.ExtractStep(d, t)
	out.Step = step

	rule, ok := p.cadences.StepRule(t, step)
	if !ok {
		log.Info("pipeline: no rule for step", zap.String("cadence", out.Cadence), zap.Int("step", step))
		out.Status = model.OutcomeSkippedNoRule
		return out
	}

	bundle := p.labels.Config(ctx, d)
	profile := crm.BuildProfile(ctx, d, p.lookup)

	strategic := p.analyze(ctx, log, d, bundle)
	if strategic != nil {
		p.charge(&out, &strategic.Usage)
	}

	if t.Counted() && !dryRun {
		if _, ok := cadence.ParseCounter(d.NurturingStep); !ok {
			if err := p.crm.InitializeStep(ctx, d.ID); err != nil {
				log.Warn("pipeline: initialize step counter failed", zap.Error(err))
			} else {
				d.NurturingStep = "1"
			}
		}
	}

	var research *model.ResearchDossier
	if rule.ResearchNeeded {
		research = p.research(ctx, log, rule, profile, bundle, strategic)
		if research != nil {
			p.charge(&out, &research.Usage)
		}
	}

	email, err := p.writer.Generate(ctx, bundle.AgentID(t), agent.WriterInput{
		CadenceName: out.Cadence,
		ContentType: rule.ContentType,
		Profile:     profile,
		Strategic:   strategic,
		Research:    research,
	})
	if email != nil {
		p.charge(&out, &email.Usage)
	}
	if err != nil || email == nil || email.Title == "" || email.Body == "" {
		if err == nil {
			err = eris.New("pipeline: writer returned an empty email")
		}
		log.Warn("pipeline: writer failed", zap.Error(err))
		out.Status = model.OutcomeFailedWriter
		out.Error = err.Error()
		return out
	}

	if dryRun {
		log.Info("pipeline: dry run, email not written",
			zap.String("title", email.Title),
			zap.Int("body_len", len(email.Body)),
			zap.String("strategy", email.Strategy),
		)
		out.Status = model.OutcomeDryRun
		return out
	}

	if err := p.crm.UpdateEmail(ctx, d.ID, email.Title, email.Body); err != nil {
		log.Error("pipeline: persist email failed", zap.Error(err))
		out.Status = model.OutcomeFailedPersist
		out.Error = err.Error()
		return out
	}
	d.EmailTitle, d.EmailBody = email.Title, email.Body
	out.Status = model.OutcomeWritten

	if t.Counted() {
		if err := p.crm.AdvanceStep(ctx, d.ID, step); err != nil {
			if errors.Is(err, crm.ErrStepConflict) {
				out.Status = model.OutcomeWrittenConflict
			} else {
				log.Error("pipeline: advance step failed", zap.Error(err))
			}
			out.Error = err.Error()
		} else {
			d.NurturingStep = strconv.Itoa(step + 1)
		}
	}
	return out
}

func (p *Pipeline) analyze(ctx context.Context, log *zap.Logger, d *model.Deal, bundle label.Config) *model.StrategicDossier {
	agentID := bundle.AnalystID()
	if agentID == "" {
		log.Warn("pipeline: label has no analyst agent", zap.String("label", bundle.Name))
		return nil
	}

	notes, err := p.crm.FetchNotes(ctx, d.ID)
	if err != nil {
		log.Warn("pipeline: fetch notes failed", zap.Error(err))
		return nil
	}

	dossier, err := p.analyst.Analyze(ctx, notes, agentID)
	if err != nil {
		log.Warn("pipeline: analyst failed", zap.Error(err))
		return nil
	}
	return dossier
}

func (p *Pipeline) research(ctx context.Context, log *zap.Logger, rule cadence.StepRule, profile model.Profile, bundle label.Config, strategic *model.StrategicDossier) *model.ResearchDossier {
	instruction, err := rule.Instruction(cadence.InstructionData{
		Sector:       profile.Get(model.ProfileSector),
		Resumption:   profile.Get(model.ProfileResumption),
		Organization: profile.Get(model.ProfileOrganization),
	})
	if err != nil {
		log.Warn("pipeline: render research instruction failed", zap.Error(err))
		return nil
	}

	dossier, err := p.researcher.Research(ctx, instruction, profile, bundle.ResearchSystemPrompt, strategic)
	if err != nil {
		log.Warn("pipeline: researcher failed", zap.Error(err))
		return nil
	}
	return dossier
}

// charge prices u and adds it to the outcome's cost.
func (p *Pipeline) charge(out *model.DealOutcome, u *model.TokenUsage) {
	u.Cost = p.costs.Usage(*u)
	out.Cost += u.Cost
	metrics.ObserveUsage(*u)
}
