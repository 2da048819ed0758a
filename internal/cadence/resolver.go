package cadence

import (
	_ "embed"
	"io"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reengage-cli/internal/model"
)

//go:embed defaults.yaml
var defaultTable []byte

// Definition is one cadence's configuration.
type Definition struct {
	Type          Type
	Name          string
	Stages        []int
	Steps         map[int]StepRule
	InfiniteCycle []int
}

// Resolver maps deals to cadences and steps to rules.
type Resolver struct {
	defs       map[Type]*Definition
	stageIndex map[int]Type
}

type tableDoc struct {
	Cadences map[string]definitionDoc `yaml:"cadences"`
}

type definitionDoc struct {
	Name          string          `yaml:"name"`
	Stages        []int           `yaml:"stages"`
	InfiniteCycle []int           `yaml:"infinite_cycle"`
	Steps         map[int]stepDoc `yaml:"steps"`
}

type stepDoc struct {
	ContentType         string `yaml:"content_type"`
	ResearchNeeded      bool   `yaml:"research_needed"`
	ResearchInstruction string `yaml:"research_instruction"`
}

// Default returns a Resolver over the built-in cadence tables.
func Default() (*Resolver, error) {
	return Parse(defaultTable)
}

// LoadFile reads cadence tables from a YAML file. An empty path yields the
// built-in tables.
func LoadFile(path string) (*Resolver, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cadence: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Load(f)
}

// Load reads cadence tables from r.
func Load(r io.Reader) (*Resolver, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "cadence: read table")
	}
	return Parse(data)
}

// Parse builds a Resolver from a YAML document and validates it.
func Parse(data []byte) (*Resolver, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "cadence: parse table")
	}

	defs := make(map[Type]*Definition, len(doc.Cadences))
	for key, d := range doc.Cadences {
		t, err := ParseType(key)
		if err != nil {
			return nil, err
		}
		def := &Definition{
			Type:          t,
			Name:          d.Name,
			Stages:        d.Stages,
			InfiniteCycle: d.InfiniteCycle,
			Steps:         make(map[int]StepRule, len(d.Steps)),
		}
		for n, s := range d.Steps {
			rule := StepRule{Step: n, ContentType: s.ContentType, ResearchNeeded: s.ResearchNeeded}
			if s.ResearchNeeded {
				if strings.TrimSpace(s.ResearchInstruction) == "" {
					return nil, eris.Errorf("cadence: %s step %d needs research but has no instruction", t, n)
				}
				tmpl, err := parseInstruction(t.String()+"-"+strconv.Itoa(n), s.ResearchInstruction)
				if err != nil {
					return nil, err
				}
				rule.instruction = tmpl
			}
			def.Steps[n] = rule
		}
		defs[t] = def
	}
	return New(defs)
}

// New builds a Resolver from already constructed definitions.
func New(defs map[Type]*Definition) (*Resolver, error) {
	r := &Resolver{defs: defs, stageIndex: make(map[int]Type)}
	for t, def := range defs {
		if def.Type == Unknown {
			def.Type = t
		}
		if def.Name == "" {
			def.Name = t.String()
		}
		if len(def.InfiniteCycle) > 0 && !t.Counted() {
			return nil, eris.Errorf("cadence: %s cannot define an infinite cycle", t)
		}
		for _, n := range def.InfiniteCycle {
			if _, ok := def.Steps[n]; !ok {
				return nil, eris.Errorf("cadence: %s cycle references undefined step %d", t, n)
			}
		}
		for _, stage := range def.Stages {
			if other, dup := r.stageIndex[stage]; dup {
				return nil, eris.Errorf("cadence: stage %d belongs to both %s and %s", stage, other, t)
			}
			r.stageIndex[stage] = t
		}
	}
	return r, nil
}

// Definition returns the configuration for t.
func (r *Resolver) Definition(t Type) (*Definition, bool) {
	def, ok := r.defs[t]
	return def, ok
}

// Name returns the display name of t.
func (r *Resolver) Name(t Type) string {
	if def, ok := r.defs[t]; ok {
		return def.Name
	}
	return t.String()
}

// Stages lists every configured stage id, ordered by cadence then as configured.
func (r *Resolver) Stages() []int {
	var out []int
	for _, t := range Types {
		if def, ok := r.defs[t]; ok {
			out = append(out, def.Stages...)
		}
	}
	return out
}

// DetermineType returns the cadence whose stage set contains the deal's stage.
func (r *Resolver) DetermineType(d *model.Deal) (Type, bool) {
	t, ok := r.stageIndex[d.StageID]
	return t, ok
}

var firstInt = regexp.MustCompile(`\d+`)

// ExtractStep returns the deal's current position in cadence t. Counted
// cadences read the persisted counter; the others take the first integer in
// the stage name. Anything unparseable yields step 1.
func (r *Resolver) ExtractStep(d *model.Deal, t Type) int {
	if t.Counted() {
		if n, ok := ParseCounter(d.NurturingStep); ok {
			return n
		}
		return 1
	}
	if m := firstInt.FindString(d.StageName); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// StepRule returns the rule for step within cadence t, wrapping counted
// cadences past their defined steps into the infinite cycle.
func (r *Resolver) StepRule(t Type, step int) (StepRule, bool) {
	def, ok := r.defs[t]
	if !ok {
		return StepRule{}, false
	}
	if t.Counted() {
		step = CycleStep(step, len(def.Steps), def.InfiniteCycle)
	}
	rule, ok := def.Steps[step]
	return rule, ok
}

// StepNumbers returns the defined step numbers of t in ascending order.
func (r *Resolver) StepNumbers(t Type) []int {
	def, ok := r.defs[t]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(def.Steps))
	for n := range def.Steps {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// ParseCounter reads a persisted step counter. ok is false for empty,
// non-numeric or non-positive values.
func ParseCounter(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, n > 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || f < 1 {
		return 0, false
	}
	return int(f), true
}
