package tool

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Manifest is a YAML document declaring a set of tools that share a
// subsystem.
//
//	subsystem: stacks-faktory
//	tools:
//	  - name: faktory_get_dao_tokens
//	    description: ...
//	    script: get-dao-tokens.ts
//	    parameters:
//	      - {name: page, kind: numeric, default: "1", description: ...}
type Manifest struct {
	Subsystem string       `yaml:"subsystem"`
	Tools     []Descriptor `yaml:"tools"`
}

// LoadManifest decodes a manifest. Tools without their own subsystem inherit
// the manifest's.
func LoadManifest(r io.Reader) (Manifest, error) {
	var m Manifest

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, fmt.Errorf("%w: empty manifest", ErrInvalidDescriptor)
		}
		return Manifest{}, fmt.Errorf("failed to decode manifest: %w", err)
	}

	for i := range m.Tools {
		if m.Tools[i].Subsystem == "" {
			m.Tools[i].Subsystem = m.Subsystem
		}
	}

	return m, nil
}

// RegisterManifest registers every tool in m, stopping at the first failure.
func (r *Registry) RegisterManifest(m Manifest) error {
	for _, d := range m.Tools {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
