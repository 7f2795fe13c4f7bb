// Package param provides a lock-free registry of normalized control values.
//
// The set of parameters is fixed when the registry is created. Values can
// be set from any goroutine and read from the audio thread without locks
// or allocations.
package param

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"pipelined.dev/neural/schema"
)

// DefaultStep is the quantization step of normalized values.
const DefaultStep = 0.01

// ErrUnknown is returned when a parameter name is not registered.
var ErrUnknown = errors.New("unknown parameter")

// Definition declares a parameter.
type Definition struct {
	Name    string
	Label   string
	Default float32
	Step    float32
}

// Parameter is a normalized value in [0, 1].
type Parameter struct {
	Definition
	value uint32
}

// Value returns the current normalized value.
func (p *Parameter) Value() float32 {
	return math.Float32frombits(atomic.LoadUint32(&p.value))
}

// SetValue clamps v to [0, 1] and stores it.
func (p *Parameter) SetValue(v float32) {
	switch {
	case v < 0 || v != v:
		v = 0
	case v > 1:
		v = 1
	}
	atomic.StoreUint32(&p.value, math.Float32bits(v))
}

// Registry holds parameters by name.
type Registry struct {
	params map[string]*Parameter
	order  []string
}

// NewRegistry creates a registry. Step defaults to DefaultStep.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		params: make(map[string]*Parameter, len(defs)),
		order:  make([]string, 0, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("parameter without name")
		}
		if _, ok := r.params[d.Name]; ok {
			return nil, fmt.Errorf("duplicate parameter %q", d.Name)
		}
		if d.Step <= 0 {
			d.Step = DefaultStep
		}
		if d.Label == "" {
			d.Label = d.Name
		}
		p := &Parameter{Definition: d}
		p.SetValue(d.Default)
		r.params[d.Name] = p
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// ForSchema creates a registry with one parameter per conditioning slot.
// Slots driven by the same parameter share it.
func ForSchema(s schema.Schema) *Registry {
	r := &Registry{
		params: make(map[string]*Parameter),
	}
	for _, slot := range s.Conditioning() {
		name := slot.Parameter()
		if _, ok := r.params[name]; ok {
			continue
		}
		label := slot.Label
		if label == "" {
			label = name
		}
		r.params[name] = &Parameter{Definition: Definition{Name: name, Label: label, Step: DefaultStep}}
		r.order = append(r.order, name)
	}
	return r
}

// NormalizedValue returns the value of named parameter. Unknown names
// read as zero.
func (r *Registry) NormalizedValue(name string) float32 {
	if p, ok := r.params[name]; ok {
		return p.Value()
	}
	return 0
}

// Get returns a parameter by name.
func (r *Registry) Get(name string) (*Parameter, bool) {
	p, ok := r.params[name]
	return p, ok
}

// Set clamps and stores the value of named parameter.
func (r *Registry) Set(name string, v float32) error {
	p, ok := r.params[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	p.SetValue(v)
	return nil
}

// SetQuantized stores the value snapped to the parameter step.
func (r *Registry) SetQuantized(name string, v float32) error {
	p, ok := r.params[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	steps := math.Round(float64(v) / float64(p.Step))
	p.SetValue(float32(steps * float64(p.Step)))
	return nil
}

// Reset restores default values.
func (r *Registry) Reset() {
	for _, p := range r.params {
		p.SetValue(p.Default)
	}
}

// Names returns parameter names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns parameters in registration order.
func (r *Registry) All() []*Parameter {
	result := make([]*Parameter, len(r.order))
	for i, name := range r.order {
		result[i] = r.params[name]
	}
	return result
}
