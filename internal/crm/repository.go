// Package crm is the typed deal repository over the Pipedrive API.
package crm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reengage-cli/internal/cadence"
	"github.com/sells-group/reengage-cli/internal/config"
	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/pkg/pipedrive"
)

// ErrStepConflict is returned by AdvanceStep when the remote step counter no
// longer matches the value this run read.
var ErrStepConflict = eris.New("crm: step counter changed concurrently")

// Deal statuses accepted by FetchDeals.
const (
	StatusOpen          = "open"
	StatusAllNotDeleted = "all_not_deleted"
)

// StageNamer resolves a stage id to its display name.
type StageNamer interface {
	StageName(ctx context.Context, stageID int) string
}

// Option configures a Repository.
type Option func(*Repository)

// WithRequestDelay pauses between sequential list calls.
func WithRequestDelay(d time.Duration) Option {
	return func(r *Repository) {
		r.delay = d
	}
}

// WithStageNamer enables stage name enrichment on fetched deals.
func WithStageNamer(s StageNamer) Option {
	return func(r *Repository) {
		r.stages = s
	}
}

// Repository reads and writes cadence deals.
type Repository struct {
	client pipedrive.Client
	keys   config.FieldKeys
	stages StageNamer
	delay  time.Duration
}

// NewRepository creates a Repository over client.
func NewRepository(client pipedrive.Client, keys config.FieldKeys, opts ...Option) *Repository {
	r := &Repository{client: client, keys: keys}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Keys returns the custom field keys the repository decodes with.
func (r *Repository) Keys() config.FieldKeys {
	return r.keys
}

// FetchDealsInStages returns the open deals in stageIDs, de-duplicated by id
// in first-seen order.
func (r *Repository) FetchDealsInStages(ctx context.Context, stageIDs []int) ([]*model.Deal, error) {
	return r.FetchDeals(ctx, stageIDs, StatusOpen)
}

// FetchDeals returns the deals in stageIDs with the given status filter.
func (r *Repository) FetchDeals(ctx context.Context, stageIDs []int, status string) ([]*model.Deal, error) {
	seen := make(map[int64]bool)
	var deals []*model.Deal

	for i, stageID := range stageIDs {
		if i > 0 {
			if err := r.pause(ctx); err != nil {
				return nil, err
			}
		}

		recs, err := r.client.ListDeals(ctx, pipedrive.ListDealsParams{StageID: stageID, Status: status})
		if err != nil {
			return nil, eris.Wrapf(err, "crm: fetch stage %d", stageID)
		}
		zap.L().Debug("crm: fetched stage",
			zap.Int("stage_id", stageID),
			zap.Int("deals", len(recs)),
		)

		for _, rec := range recs {
			d := r.decode(ctx, rec)
			if d.ID == 0 || seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			deals = append(deals, d)
		}
	}
	return deals, nil
}

// GetDeal fetches one deal.
func (r *Repository) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	rec, err := r.client.GetDeal(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "crm: get deal %d", id)
	}
	if rec == nil {
		return nil, eris.Errorf("crm: deal %d not found", id)
	}
	return r.decode(ctx, rec), nil
}

// FetchNotes returns the deal's notes cleaned of HTML and joined, or "" when
// the deal has none.
func (r *Repository) FetchNotes(ctx context.Context, dealID int64) (string, error) {
	notes, err := r.client.ListNotes(ctx, dealID)
	if err != nil {
		return "", eris.Wrapf(err, "crm: fetch notes deal %d", dealID)
	}
	return JoinNotes(notes), nil
}

// ListNotes returns the deal's raw notes.
func (r *Repository) ListNotes(ctx context.Context, dealID int64) ([]pipedrive.Note, error) {
	notes, err := r.client.ListNotes(ctx, dealID)
	if err != nil {
		return nil, eris.Wrapf(err, "crm: list notes deal %d", dealID)
	}
	return notes, nil
}

// AddNote attaches a note to the deal.
func (r *Repository) AddNote(ctx context.Context, dealID int64, content string) error {
	return eris.Wrapf(r.client.AddNote(ctx, dealID, content), "crm: add note deal %d", dealID)
}

// UpdateEmail writes the generated email to the deal's output fields.
func (r *Repository) UpdateEmail(ctx context.Context, dealID int64, title, body string) error {
	fields := map[string]any{
		r.keys.EmailTitle: title,
		r.keys.EmailBody:  body,
	}
	return eris.Wrapf(r.client.UpdateDeal(ctx, dealID, fields), "crm: update email deal %d", dealID)
}

// InitializeStep sets the nurturing step counter to 1.
func (r *Repository) InitializeStep(ctx context.Context, dealID int64) error {
	fields := map[string]any{r.keys.NurturingStep: 1}
	return eris.Wrapf(r.client.UpdateDeal(ctx, dealID, fields), "crm: initialize step deal %d", dealID)
}

// AdvanceStep writes current+1 to the step counter after confirming the
// remote counter still equals current. A mismatch returns ErrStepConflict and
// writes nothing.
func (r *Repository) AdvanceStep(ctx context.Context, dealID int64, current int) error {
	d, err := r.GetDeal(ctx, dealID)
	if err != nil {
		return eris.Wrap(err, "crm: advance step")
	}

	remote, ok := cadence.ParseCounter(d.NurturingStep)
	if !ok || remote != current {
		zap.L().Warn("crm: step counter moved",
			zap.Int64("deal_id", dealID),
			zap.Int("expected", current),
			zap.String("remote", d.NurturingStep),
		)
		return ErrStepConflict
	}

	fields := map[string]any{r.keys.NurturingStep: current + 1}
	return eris.Wrapf(r.client.UpdateDeal(ctx, dealID, fields), "crm: advance step deal %d", dealID)
}

func (r *Repository) decode(ctx context.Context, rec pipedrive.Record) *model.Deal {
	d := Decode(rec, r.keys)
	if r.stages != nil && d.StageID != 0 {
		d.StageName = r.stages.StageName(ctx, d.StageID)
	}
	return d
}

func (r *Repository) pause(ctx context.Context) error {
	if r.delay <= 0 {
		return nil
	}
	t := time.NewTimer(r.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
