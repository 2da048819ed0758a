package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/reengage-cli/internal/agent"
	"github.com/sells-group/reengage-cli/internal/fieldmap"
	"github.com/sells-group/reengage-cli/internal/model"
)

// --- CRM Mock ---

type mockCRM struct {
	mock.Mock
}

func (m *mockCRM) FetchDealsInStages(ctx context.Context, stageIDs []int) ([]*model.Deal, error) {
	args := m.Called(ctx, stageIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Deal), args.Error(1)
}

func (m *mockCRM) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Deal), args.Error(1)
}

func (m *mockCRM) FetchNotes(ctx context.Context, dealID int64) (string, error) {
	args := m.Called(ctx, dealID)
	return args.String(0), args.Error(1)
}

func (m *mockCRM) UpdateEmail(ctx context.Context, dealID int64, title, body string) error {
	return m.Called(ctx, dealID, title, body).Error(0)
}

func (m *mockCRM) InitializeStep(ctx context.Context, dealID int64) error {
	return m.Called(ctx, dealID).Error(0)
}

func (m *mockCRM) AdvanceStep(ctx context.Context, dealID int64, current int) error {
	return m.Called(ctx, dealID, current).Error(0)
}

// --- Agent Mocks ---

type mockAnalyst struct {
	mock.Mock
}

func (m *mockAnalyst) Analyze(ctx context.Context, notes, agentID string) (*model.StrategicDossier, error) {
	args := m.Called(ctx, notes, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StrategicDossier), args.Error(1)
}

type mockResearcher struct {
	mock.Mock
}

func (m *mockResearcher) Research(ctx context.Context, instruction string, profile model.Profile, systemPrompt string, dossier *model.StrategicDossier) (*model.ResearchDossier, error) {
	args := m.Called(ctx, instruction, profile, systemPrompt, dossier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ResearchDossier), args.Error(1)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Generate(ctx context.Context, agentID string, in agent.WriterInput) (*model.Email, error) {
	args := m.Called(ctx, agentID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Email), args.Error(1)
}

// --- Ledger Mock ---

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, name, owner, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockLedger) ReleaseLock(ctx context.Context, name, owner string) error {
	return m.Called(ctx, name, owner).Error(0)
}

func (m *mockLedger) CreateRun(ctx context.Context, trigger string) (*model.Run, error) {
	args := m.Called(ctx, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockLedger) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.BatchSummary, errMsg string) error {
	return m.Called(ctx, runID, status, summary, errMsg).Error(0)
}

func (m *mockLedger) RecordOutcome(ctx context.Context, o model.DealOutcome) error {
	return m.Called(ctx, o).Error(0)
}

// --- Option lookup ---

// fakeLookup resolves option ids from a fixed table and counts calls.
type fakeLookup struct {
	texts map[fieldmap.FieldType]map[string]string
	calls int
}

func (f *fakeLookup) IDToText(_ context.Context, field fieldmap.FieldType, raw string) string {
	f.calls++
	if raw == "" {
		return model.NotInformed
	}
	if t, ok := f.texts[field][raw]; ok {
		return t
	}
	return raw
}
