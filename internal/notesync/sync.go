// Package notesync copies meeting notes from origin deals onto freshly
// created cadence deals that have none.
package notesync

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reengage-cli/internal/crm"
	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/pkg/pipedrive"
)

// Repository is the slice of the CRM the syncer needs.
type Repository interface {
	FetchDeals(ctx context.Context, stageIDs []int, status string) ([]*model.Deal, error)
	ListNotes(ctx context.Context, dealID int64) ([]pipedrive.Note, error)
	AddNote(ctx context.Context, dealID int64, content string) error
}

// Summary reports one sync pass.
type Summary struct {
	Scanned     int `json:"scanned"`
	Synced      int `json:"synced"`
	NotesCopied int `json:"notes_copied"`
	NoOrigin    int `json:"no_origin"`
	Failed      int `json:"failed"`
}

// Syncer copies origin notes onto deals in the waiting stages.
type Syncer struct {
	repo   Repository
	stages []int
	delay  time.Duration
}

// New creates a Syncer over the given waiting stages. delay is slept between
// note posts.
func New(repo Repository, stages []int, delay time.Duration) *Syncer {
	return &Syncer{repo: repo, stages: stages, delay: delay}
}

// Run scans the waiting stages once. A failing deal is counted and skipped.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	deals, err := s.repo.FetchDeals(ctx, s.stages, crm.StatusAllNotDeleted)
	if err != nil {
		return nil, eris.Wrap(err, "notesync: fetch deals")
	}

	summary := &Summary{}
	for _, d := range deals {
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "notesync: cancelled")
		}
		if d.NotesCount != 0 {
			continue
		}
		summary.Scanned++

		log := zap.L().With(zap.Int64("deal_id", d.ID), zap.String("origin_deal_id", d.OriginDealID))
		originID, ok := parseID(d.OriginDealID)
		if !ok {
			log.Debug("notesync: deal has no origin deal")
			summary.NoOrigin++
			continue
		}

		copied, err := s.copyNotes(ctx, d.ID, originID)
		summary.NotesCopied += copied
		if err != nil {
			log.Warn("notesync: copy notes failed", zap.Int("copied", copied), zap.Error(err))
			summary.Failed++
			continue
		}
		if copied > 0 {
			summary.Synced++
			log.Info("notesync: notes copied", zap.Int("count", copied))
		} else {
			log.Info("notesync: origin deal has no notes")
		}
	}

	zap.L().Info("notesync: pass complete",
		zap.Int("deals", len(deals)),
		zap.Int("scanned", summary.Scanned),
		zap.Int("synced", summary.Synced),
		zap.Int("notes_copied", summary.NotesCopied),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *Syncer) copyNotes(ctx context.Context, dealID, originID int64) (int, error) {
	notes, err := s.repo.ListNotes(ctx, originID)
	if err != nil {
		return 0, err
	}

	copied := 0
	for i, n := range notes {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return copied, err
			}
		}
		if err := s.repo.AddNote(ctx, dealID, crm.CleanHTML(n.Content)); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func (s *Syncer) pause(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// parseID accepts the origin field as "123" or "123.0".
func parseID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
		return id, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
