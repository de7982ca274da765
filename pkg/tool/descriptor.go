package tool

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/google/uuid"
)

// Kind is the value class a parameter accepts. Every kind travels to the
// executor as a string.
type Kind string

const (
	// KindString accepts any string
	KindString Kind = "string"
	// KindNumeric accepts decimal strings such as "15" or "1.5"
	KindNumeric Kind = "numeric"
	// KindEnum accepts one of Parameter.Enum
	KindEnum Kind = "enum"
)

var numericPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Parameter describes one positional argument of a tool.
type Parameter struct {
	Name        string   `json:"name" yaml:"name"`
	Kind        Kind     `json:"kind" yaml:"kind"`
	Description string   `json:"description" yaml:"description"`
	Required    bool     `json:"required" yaml:"required"`
	Default     *string  `json:"default,omitempty" yaml:"default,omitempty"`
	Enum        []string `json:"enum,omitempty" yaml:"enum,omitempty"`

	// IncludeIf names an earlier parameter that must have been supplied for
	// this one to be appended.
	IncludeIf string `json:"include_if,omitempty" yaml:"include_if,omitempty"`
}

// Omittable reports whether an absent value leaves no trace in the argument list.
func (p Parameter) Omittable() bool {
	return !p.Required && p.Default == nil
}

// Descriptor is the declarative schema of one invocable capability.
type Descriptor struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Subsystem   string      `json:"subsystem" yaml:"subsystem"`
	Script      string      `json:"script" yaml:"script"`
	Parameters  []Parameter `json:"parameters" yaml:"parameters"`
}

// Parameter returns the named parameter.
func (d Descriptor) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Invocation is what an Executor receives: the identity the script acts as,
// where the script lives and its positional arguments.
type Invocation struct {
	Tool      string
	Identity  uuid.UUID
	Subsystem string
	Script    string
	Args      []string
}

// Str returns a pointer to s, for Parameter.Default literals.
func Str(s string) *string {
	return &s
}

func (d Descriptor) clone() Descriptor {
	out := d
	out.Parameters = make([]Parameter, len(d.Parameters))
	for i, p := range d.Parameters {
		if p.Default != nil {
			p.Default = Str(*p.Default)
		}
		p.Enum = slices.Clone(p.Enum)
		out.Parameters[i] = p
	}
	return out
}

// validate checks the registration rules. Positions must stay stable, so once
// an omittable parameter appears every later parameter has to be omittable
// too, and each one is gated on the omittable parameter right before it. A
// value is then only placed when every earlier slot is filled.
func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDescriptor)
	}
	if d.Description == "" {
		return fmt.Errorf("%w: %s: description cannot be empty", ErrInvalidDescriptor, d.Name)
	}
	if d.Script == "" {
		return fmt.Errorf("%w: %s: script cannot be empty", ErrInvalidDescriptor, d.Name)
	}

	seen := make(map[string]Parameter, len(d.Parameters))
	omittableSeen, lastOmittable := "", ""
	for _, p := range d.Parameters {
		if p.Name == "" {
			return fmt.Errorf("%w: %s: parameter name cannot be empty", ErrInvalidDescriptor, d.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate parameter %s", ErrInvalidDescriptor, d.Name, p.Name)
		}
		if p.Required && p.Default != nil {
			return fmt.Errorf("%w: %s: required parameter %s cannot have a default", ErrInvalidDescriptor, d.Name, p.Name)
		}

		switch p.Kind {
		case KindString:
		case KindNumeric:
			if p.Default != nil && !numericPattern.MatchString(*p.Default) {
				return fmt.Errorf("%w: %s: default %q of %s is not numeric", ErrInvalidDescriptor, d.Name, *p.Default, p.Name)
			}
		case KindEnum:
			if len(p.Enum) == 0 {
				return fmt.Errorf("%w: %s: enum parameter %s lists no values", ErrInvalidDescriptor, d.Name, p.Name)
			}
			if p.Default != nil && !slices.Contains(p.Enum, *p.Default) {
				return fmt.Errorf("%w: %s: default %q of %s is not one of %v", ErrInvalidDescriptor, d.Name, *p.Default, p.Name, p.Enum)
			}
		default:
			return fmt.Errorf("%w: %s: invalid kind %q for %s", ErrInvalidDescriptor, d.Name, p.Kind, p.Name)
		}

		if p.IncludeIf != "" {
			gate, ok := seen[p.IncludeIf]
			if !ok {
				return fmt.Errorf("%w: %s: %s is gated on %s, which is not an earlier parameter", ErrInvalidDescriptor, d.Name, p.Name, p.IncludeIf)
			}
			if !gate.Omittable() {
				return fmt.Errorf("%w: %s: gate %s of %s must be optional without a default", ErrInvalidDescriptor, d.Name, p.IncludeIf, p.Name)
			}
		}

		if omittableSeen != "" && !p.Omittable() {
			return fmt.Errorf("%w: %s: %s follows omittable parameter %s and would shift position", ErrInvalidDescriptor, d.Name, p.Name, omittableSeen)
		}
		if p.Omittable() {
			if lastOmittable != "" && p.IncludeIf != lastOmittable {
				return fmt.Errorf("%w: %s: %s follows omittable parameter %s and must be gated on it", ErrInvalidDescriptor, d.Name, p.Name, lastOmittable)
			}
			if omittableSeen == "" {
				omittableSeen = p.Name
			}
			lastOmittable = p.Name
		}

		seen[p.Name] = p
	}

	return nil
}
