// Package fieldmap resolves Pipedrive option ids and stage ids to their
// display text, backed by a persistent cache.
package fieldmap

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reengage-cli/internal/config"
	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/pkg/pipedrive"
)

// CacheKey is the persistent cache entry holding the serialized mappings.
const CacheKey = "pipedrive_field_mappings"

// FieldType names an enum-like custom field whose ids need translating.
type FieldType string

const (
	Label         FieldType = "label"
	Origin        FieldType = "origin"
	SubOrigin     FieldType = "sub_origin"
	Portfolio     FieldType = "portfolio"
	EmployeeCount FieldType = "employee_count"
	Resumption    FieldType = "resumption"
)

// FieldTypes lists every translated field.
var FieldTypes = []FieldType{Label, Origin, SubOrigin, Portfolio, EmployeeCount, Resumption}

// Keys maps each field type to the deal field key it is read from.
type Keys map[FieldType]string

// KeysFromConfig builds Keys from configured custom field hashes.
func KeysFromConfig(f config.FieldKeys) Keys {
	return Keys{
		Label:         f.Label,
		Origin:        f.Origin,
		SubOrigin:     f.SubOrigin,
		Portfolio:     f.Portfolio,
		EmployeeCount: f.EmployeeCount,
		Resumption:    f.Resumption,
	}
}

// Mappings is the cached translation table. BuiltAt dates the API fetch it
// came from and bounds its lifetime in memory and in the cache.
type Mappings struct {
	Options map[FieldType]map[string]string `json:"options"`
	Stages  map[int]string                  `json:"stages"`
	BuiltAt time.Time                       `json:"built_at"`
}

// Source is the subset of the Pipedrive API the table is built from.
type Source interface {
	ListDealFields(ctx context.Context) ([]pipedrive.DealField, error)
	ListStages(ctx context.Context) ([]pipedrive.Stage, error)
}

// Cache persists the serialized table between runs.
type Cache interface {
	GetCache(ctx context.Context, key string) ([]byte, error)
	SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteCache(ctx context.Context, key string) error
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets how long a built table is used, in memory and in the cache.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMinRefreshInterval limits how often a lookup miss may rebuild the table.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		s.minRefresh = d
	}
}

// Service translates ids using a table held in memory, then the persistent
// cache, then a rebuild from the API.
type Service struct {
	src        Source
	cache      Cache
	keys       Keys
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time

	mu          sync.Mutex
	current     *Mappings
	lastRefresh time.Time
}

// New creates a Service. cache may be nil for a memory-only table.
func New(src Source, cache Cache, keys Keys, opts ...Option) *Service {
	s := &Service{
		src:        src,
		cache:      cache,
		keys:       keys,
		ttl:        720 * time.Hour,
		minRefresh: time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IDToText returns the option label for raw. Empty input yields
// model.NotInformed. For multi-valued fields ("12,34") the first id is used.
// A miss triggers one rebuild; if still missing the id itself is returned.
func (s *Service) IDToText(ctx context.Context, field FieldType, raw string) string {
	id := firstID(raw)
	if id == "" {
		return model.NotInformed
	}
	if !knownType(field) {
		zap.L().Warn("fieldmap: unknown field type", zap.String("field", string(field)))
		return id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load(ctx)
	if err != nil {
		zap.L().Warn("fieldmap: mappings unavailable", zap.Error(err))
		return id
	}
	if text, ok := m.Options[field][id]; ok {
		return text
	}

	m, ok := s.refreshOnMiss(ctx)
	if !ok {
		return id
	}
	if text, ok := m.Options[field][id]; ok {
		return text
	}
	return id
}

// StageName returns the stage's name, or "" when the stage is unknown.
func (s *Service) StageName(ctx context.Context, stageID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load(ctx)
	if err != nil {
		zap.L().Warn("fieldmap: mappings unavailable", zap.Error(err))
		return ""
	}
	if name, ok := m.Stages[stageID]; ok {
		return name
	}
	if m, ok := s.refreshOnMiss(ctx); ok {
		return m.Stages[stageID]
	}
	return ""
}

// Refresh rebuilds the table from the API and overwrites the cache.
func (s *Service) Refresh(ctx context.Context) (*Mappings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuild(ctx)
}

// Warm loads the table from the cache, or from the API when the cache is
// empty or unreadable.
func (s *Service) Warm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load(ctx)
	return err
}

// Clear drops the in-memory table and the persistent cache entry.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.lastRefresh = time.Time{}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.DeleteCache(ctx, CacheKey); err != nil {
		return eris.Wrap(err, "fieldmap: clear cache")
	}
	return nil
}

func (s *Service) refreshOnMiss(ctx context.Context) (*Mappings, bool) {
	if !s.lastRefresh.IsZero() && s.now().Sub(s.lastRefresh) < s.minRefresh {
		return nil, false
	}
	m, err := s.rebuild(ctx)
	if err != nil {
		zap.L().Warn("fieldmap: refresh failed", zap.Error(err))
		return nil, false
	}
	return m, true
}

// load must be called with mu held. An expired table is replaced from the
// cache or the API, and kept only when the rebuild fails.
func (s *Service) load(ctx context.Context) (*Mappings, error) {
	if s.fresh(s.current) {
		return s.current, nil
	}

	if s.cache != nil {
		raw, err := s.cache.GetCache(ctx, CacheKey)
		if err != nil {
			zap.L().Warn("fieldmap: cache read failed", zap.Error(err))
		}
		if raw != nil {
			var m Mappings
			switch err := json.Unmarshal(raw, &m); {
			case err != nil:
				zap.L().Warn("fieldmap: cache corrupted, rebuilding")
			case s.fresh(&m):
				s.current = &m
				return s.current, nil
			default:
				zap.L().Debug("fieldmap: cached mappings expired", zap.Time("built_at", m.BuiltAt))
			}
		}
	}

	m, err := s.rebuild(ctx)
	if err != nil && s.current != nil {
		zap.L().Warn("fieldmap: rebuild failed, using expired mappings", zap.Error(err))
		return s.current, nil
	}
	return m, err
}

func (s *Service) fresh(m *Mappings) bool {
	return m != nil && s.now().Sub(m.BuiltAt) < s.ttl
}

// rebuild must be called with mu held.
func (s *Service) rebuild(ctx context.Context) (*Mappings, error) {
	var (
		fields []pipedrive.DealField
		stages []pipedrive.Stage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fields, err = s.src.ListDealFields(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stages, err = s.src.ListStages(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "fieldmap: rebuild")
	}

	m := build(s.keys, fields, stages)
	m.BuiltAt = s.now().UTC()
	s.current = m
	s.lastRefresh = s.now()

	if s.cache != nil {
		raw, err := json.Marshal(m)
		if err != nil {
			return m, eris.Wrap(err, "fieldmap: marshal")
		}
		if err := s.cache.SetCache(ctx, CacheKey, raw, s.ttl); err != nil {
			zap.L().Warn("fieldmap: cache write failed", zap.Error(err))
		}
	}

	zap.L().Info("fieldmap: mappings rebuilt",
		zap.Int("fields", len(fields)),
		zap.Int("stages", len(m.Stages)),
	)
	return m, nil
}

func build(keys Keys, fields []pipedrive.DealField, stages []pipedrive.Stage) *Mappings {
	byKey := make(map[string]FieldType, len(keys))
	for ft, key := range keys {
		if key != "" {
			byKey[key] = ft
		}
	}

	m := &Mappings{
		Options: make(map[FieldType]map[string]string, len(FieldTypes)),
		Stages:  make(map[int]string, len(stages)),
	}
	for _, ft := range FieldTypes {
		m.Options[ft] = map[string]string{}
	}
	for _, f := range fields {
		ft, ok := byKey[f.Key]
		if !ok {
			continue
		}
		for _, opt := range f.Options {
			m.Options[ft][string(opt.ID)] = opt.Label
		}
	}
	for _, st := range stages {
		m.Stages[st.ID] = st.Name
	}
	return m
}

func firstID(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func knownType(ft FieldType) bool {
	return slices.Contains(FieldTypes, ft)
}
