// Package label selects the agent bundle and research prompt for a deal's
// customer-segment label.
package label

import (
	"context"
	_ "embed"
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reengage-cli/internal/cadence"
	"github.com/sells-group/reengage-cli/internal/fieldmap"
	"github.com/sells-group/reengage-cli/internal/model"
)

//go:embed defaults.yaml
var defaultTable []byte

// RoleAnalyst is the agent role that digests meeting notes.
const RoleAnalyst = "analyst"

// Config is the agent bundle for one label.
type Config struct {
	Name                 string            `yaml:"-"`
	Agents               map[string]string `yaml:"agents"`
	ResearchSystemPrompt string            `yaml:"research_system_prompt"`
}

// AnalystID returns the analyst agent of the bundle.
func (c Config) AnalystID() string {
	return c.Agents[RoleAnalyst]
}

// AgentID returns the writer agent for cadence t. A missing role falls back
// to the bundle's resumption writer.
func (c Config) AgentID(t cadence.Type) string {
	if id := c.Agents[t.Role()]; id != "" {
		return id
	}
	fallback := c.Agents[cadence.Resumption.Role()]
	zap.L().Warn("label: no agent for role, using resumption agent",
		zap.String("label", c.Name),
		zap.String("role", t.Role()),
	)
	return fallback
}

// OptionLookup turns raw option ids into their display text.
type OptionLookup interface {
	IDToText(ctx context.Context, field fieldmap.FieldType, raw string) string
}

// Resolver maps deals to label bundles.
type Resolver struct {
	def    Config
	labels map[string]Config
	lookup OptionLookup
}

type tableDoc struct {
	Default Config            `yaml:"default"`
	Labels  map[string]Config `yaml:"labels"`
}

// New builds a Resolver from a default bundle and per-label bundles.
func New(def Config, labels map[string]Config, lookup OptionLookup) *Resolver {
	if def.Name == "" {
		def.Name = "default"
	}
	r := &Resolver{def: def, labels: make(map[string]Config, len(labels)), lookup: lookup}
	for name, cfg := range labels {
		cfg.Name = name
		r.labels[normalize(name)] = cfg
	}
	return r
}

// LoadFile reads the label table from path, or the built-in table when path
// is empty.
func LoadFile(path string, lookup OptionLookup) (*Resolver, error) {
	data := defaultTable
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "label: read %s", path)
		}
		data = b
	}
	return Parse(data, lookup)
}

// Parse builds a Resolver from a YAML document.
func Parse(data []byte, lookup OptionLookup) (*Resolver, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "label: parse table")
	}
	if doc.Default.AnalystID() == "" || doc.Default.Agents[cadence.Resumption.Role()] == "" {
		return nil, eris.New("label: default bundle needs analyst and resumption agents")
	}
	return New(doc.Default, doc.Labels, lookup), nil
}

// Config resolves the bundle for the deal's label, falling back to the
// default bundle.
func (r *Resolver) Config(ctx context.Context, d *model.Deal) Config {
	text := ""
	if d.LabelID != "" && r.lookup != nil {
		text = r.lookup.IDToText(ctx, fieldmap.Label, d.LabelID)
	}
	if cfg, ok := r.labels[normalize(text)]; ok && text != "" {
		return cfg
	}
	zap.L().Info("label: using default bundle",
		zap.Int64("deal_id", d.ID),
		zap.String("label", text),
	)
	return r.def
}

// AgentID resolves the writer agent for deal d in cadence t.
func (r *Resolver) AgentID(ctx context.Context, d *model.Deal, t cadence.Type) string {
	return r.Config(ctx, d).AgentID(t)
}

// Labels returns the configured label names.
func (r *Resolver) Labels() []string {
	out := make([]string, 0, len(r.labels))
	for _, cfg := range r.labels {
		out = append(out, cfg.Name)
	}
	return out
}

// normalize folds case and strips accents so "Núcleo" matches "nucleo".
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
