package tool

import "slices"

// Policy restricts which tools may be dispatched.
type Policy struct {
	Allow []string `json:"allow" yaml:"allow" mapstructure:"allow"` // List of allowed tools (* for all)
	Deny  []string `json:"deny" yaml:"deny" mapstructure:"deny"`    // List of denied tools (overrides allow)
}

// Allows checks if a tool is allowed by the policy. A nil policy allows
// everything; an empty allow list allows nothing.
func (p *Policy) Allows(name string) bool {
	if p == nil {
		return true
	}

	if slices.Contains(p.Deny, name) || slices.Contains(p.Deny, "*") {
		return false
	}

	return slices.Contains(p.Allow, name) || slices.Contains(p.Allow, "*")
}
