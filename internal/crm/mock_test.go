package crm

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/reengage-cli/internal/fieldmap"
	"github.com/sells-group/reengage-cli/pkg/pipedrive"
)

// --- Pipedrive Mock ---

type mockPipedrive struct {
	mock.Mock
}

func (m *mockPipedrive) ListDeals(ctx context.Context, params pipedrive.ListDealsParams) ([]pipedrive.Record, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pipedrive.Record), args.Error(1)
}

func (m *mockPipedrive) GetDeal(ctx context.Context, id int64) (pipedrive.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pipedrive.Record), args.Error(1)
}

func (m *mockPipedrive) UpdateDeal(ctx context.Context, id int64, fields map[string]any) error {
	return m.Called(ctx, id, fields).Error(0)
}

func (m *mockPipedrive) ListNotes(ctx context.Context, dealID int64) ([]pipedrive.Note, error) {
	args := m.Called(ctx, dealID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pipedrive.Note), args.Error(1)
}

func (m *mockPipedrive) AddNote(ctx context.Context, dealID int64, content string) error {
	return m.Called(ctx, dealID, content).Error(0)
}

func (m *mockPipedrive) ListDealFields(ctx context.Context) ([]pipedrive.DealField, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pipedrive.DealField), args.Error(1)
}

func (m *mockPipedrive) ListStages(ctx context.Context) ([]pipedrive.Stage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]pipedrive.Stage), args.Error(1)
}

// --- Lookup fakes ---

type stageNames map[int]string

func (s stageNames) StageName(_ context.Context, id int) string { return s[id] }

type optionText map[string]string

func (o optionText) IDToText(_ context.Context, field fieldmap.FieldType, raw string) string {
	if raw == "" {
		return "Não informado"
	}
	if v, ok := o[string(field)+":"+raw]; ok {
		return v
	}
	return raw
}
