package cadence

import (
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
)

// StepRule describes what the email at one cadence step should do.
type StepRule struct {
	Step           int
	ContentType    string
	ResearchNeeded bool

	instruction *template.Template
}

// InstructionData feeds the research instruction template.
type InstructionData struct {
	Sector       string
	Resumption   string
	Organization string
}

// Instruction renders the research brief for this step. It returns "" when
// the step needs no research.
func (r StepRule) Instruction(data InstructionData) (string, error) {
	if !r.ResearchNeeded || r.instruction == nil {
		return "", nil
	}
	var b strings.Builder
	if err := r.instruction.Execute(&b, data); err != nil {
		return "", eris.Wrapf(err, "cadence: render instruction for step %d", r.Step)
	}
	return strings.TrimSpace(b.String()), nil
}

func parseInstruction(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, eris.Wrapf(err, "cadence: parse instruction %s", name)
	}
	return t, nil
}

// CycleStep maps a step past the defined sequence onto the infinite cycle:
// cycle[(step-defined-1) mod len(cycle)]. Steps inside the defined range, or
// cadences without a cycle, are returned unchanged.
func CycleStep(step, defined int, cycle []int) int {
	if len(cycle) == 0 || step <= defined {
		return step
	}
	return cycle[(step-defined-1)%len(cycle)]
}
