package tool

import (
	"fmt"
	"iter"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Registry holds tool descriptors keyed by name, in registration order.
// Descriptors are copied on the way in and out, so a registered descriptor
// never changes.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tools   map[string]Descriptor
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Descriptor),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register validates and adds a descriptor.
func (r *Registry) Register(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	schema, err := generateSchema(d)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
	}

	r.tools[d.Name] = d.clone()
	r.schemas[d.Name] = schema
	r.order = append(r.order, d.Name)

	log.Debug().
		Str("tool", d.Name).
		Int("parameters", len(d.Parameters)).
		Msg("Tool registered")

	return nil
}

// Get returns a copy of the named descriptor.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return d.clone(), nil
}

func (r *Registry) lookup(name string) (Descriptor, *gojsonschema.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	if !ok {
		return Descriptor{}, nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return d, r.schemas[name], nil
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// All yields (name, description) pairs in registration order. The sequence
// works on a snapshot taken when iteration starts.
func (r *Registry) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		r.mu.RLock()
		pairs := make([][2]string, len(r.order))
		for i, name := range r.order {
			pairs[i] = [2]string{name, r.tools[name].Description}
		}
		r.mu.RUnlock()

		for _, p := range pairs {
			if !yield(p[0], p[1]) {
				return
			}
		}
	}
}

// Descriptors returns copies of every descriptor in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].clone())
	}
	return out
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
