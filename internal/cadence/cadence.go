// Package cadence maps deals onto outreach cadences and resolves the rule
// for the deal's current step.
package cadence

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Type is one of the closed set of outreach cadences.
type Type int

const (
	Unknown Type = iota
	EarlyNurturing
	Resumption
	FinalResumption
)

// Types lists every cadence in evaluation order.
var Types = []Type{EarlyNurturing, Resumption, FinalResumption}

// String returns the configuration key of the cadence.
func (t Type) String() string {
	switch t {
	case EarlyNurturing:
		return "early_nurturing"
	case Resumption:
		return "resumption"
	case FinalResumption:
		return "final_resumption"
	default:
		return "unknown"
	}
}

// Role is the agent role that writes emails for this cadence.
func (t Type) Role() string {
	return t.String()
}

// Counted reports whether the cadence tracks its position in a persisted step
// counter rather than in the stage name.
func (t Type) Counted() bool {
	return t == EarlyNurturing
}

// ParseType parses a configuration key into a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "early_nurturing", "nurturing":
		return EarlyNurturing, nil
	case "resumption", "retomada":
		return Resumption, nil
	case "final_resumption", "final_nurturing":
		return FinalResumption, nil
	}
	return Unknown, eris.Errorf("cadence: unknown type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
