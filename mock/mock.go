// Package mock provides test doubles for inference models and parameters.
package mock

import (
	"errors"
	"sync"

	"pipelined.dev/neural"
	"pipelined.dev/neural/schema"
)

// ErrRun is returned by sessions when FailOn matches.
var ErrRun = errors.New("mock: run failed")

// StepFunc computes outputs of a binding from its inputs. It's called on
// every session run.
type StepFunc func(b *neural.Binding) error

// Model mocks a neural.Model.
type Model struct {
	Step         StepFunc
	ErrorOnLoad  error
	ErrorOnBind  error
	ErrorOnRun   error
	ErrorOnClose error
	// FailOn is called before every run with zero-based run number of
	// the channel session. Run fails with ErrRun if it returns true.
	FailOn     func(channel, run int) bool
	PanicOnRun bool
	Hooks

	mu       sync.Mutex
	schema   schema.Schema
	sessions []*Session
}

// Hooks allows to check model lifecycle.
type Hooks struct {
	Loaded bool
	Closed bool
}

// Loader returns a loader that always returns this model.
func (m *Model) Loader() neural.Loader {
	return neural.LoaderFunc(func(s schema.Schema) (neural.Model, error) {
		if m.ErrorOnLoad != nil {
			return nil, m.ErrorOnLoad
		}
		m.Loaded = true
		m.schema = s
		return m, nil
	})
}

// Schema returns the schema model was loaded with.
func (m *Model) Schema() schema.Schema {
	return m.schema
}

// Bind implements neural.Model.
func (m *Model) Bind(b *neural.Binding) (neural.Session, error) {
	if m.ErrorOnBind != nil {
		return nil, m.ErrorOnBind
	}
	s := &Session{model: m, binding: b}
	m.mu.Lock()
	m.sessions = append(m.sessions, s)
	m.mu.Unlock()
	return s, nil
}

// Close implements neural.Model.
func (m *Model) Close() error {
	m.Closed = true
	return m.ErrorOnClose
}

// Sessions returns all sessions bound by the model.
func (m *Model) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Session(nil), m.sessions...)
}

// Session mocks a neural.Session.
type Session struct {
	counter
	model   *Model
	binding *neural.Binding
	Closed  bool
}

// Binding returns the binding session was created for.
func (s *Session) Binding() *neural.Binding {
	return s.binding
}

// Run implements neural.Session.
func (s *Session) Run() error {
	run := s.runs
	s.advance(len(audio(s.binding.Inputs)))
	if s.model.PanicOnRun {
		panic("mock: run panicked")
	}
	if s.model.ErrorOnRun != nil {
		return s.model.ErrorOnRun
	}
	if s.model.FailOn != nil && s.model.FailOn(s.binding.Channel, run) {
		return ErrRun
	}
	if s.model.Step != nil {
		return s.model.Step(s.binding)
	}
	return nil
}

// Close implements neural.Session.
func (s *Session) Close() error {
	s.Closed = true
	return nil
}

// counter counts runs and samples.
type counter struct {
	runs    int
	samples int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.runs++
	c.samples = c.samples + size
}

// Count returns number of runs and samples.
func (c *counter) Count() (int, int) {
	return c.runs, c.samples
}

// Parameters is a fixed parameter provider.
type Parameters map[string]float32

// NormalizedValue implements neural.Parameters.
func (p Parameters) NormalizedValue(name string) float32 {
	return p[name]
}

// Scale multiplies audio by gain and fills every state output with value.
func Scale(gain, state float32) StepFunc {
	return func(b *neural.Binding) error {
		in, out := audio(b.Inputs), audio(b.Outputs)
		for i, v := range in {
			out[i] = v * gain
		}
		for _, t := range b.Outputs {
			if t.Kind != schema.State {
				continue
			}
			for i := range t.Data {
				t.Data[i] = state
			}
		}
		return nil
	}
}

// Recurrent is a one-pole smoother y = h = alpha*h + (1-alpha)*x. The
// pole is kept in the first element of the first state slot, other state
// is carried unchanged.
func Recurrent(alpha float32) StepFunc {
	return func(b *neural.Binding) error {
		carry(b)
		in, out := audio(b.Inputs), audio(b.Outputs)
		h := firstState(b.Inputs)[0]
		for i, x := range in {
			h = alpha*h + (1-alpha)*x
			out[i] = h
		}
		firstState(b.Outputs)[0] = h
		return nil
	}
}

// Conditioning writes the sum of input audio and the named conditioning
// input into output audio. State is carried unchanged.
func Conditioning(name string) StepFunc {
	return func(b *neural.Binding) error {
		in, out, c := audio(b.Inputs), audio(b.Outputs), b.Input(name)
		for i := range out {
			out[i] = in[i] + c[i]
		}
		carry(b)
		return nil
	}
}

// Constant writes v into every output audio sample. State is carried
// unchanged.
func Constant(v float32) StepFunc {
	return func(b *neural.Binding) error {
		out := audio(b.Outputs)
		for i := range out {
			out[i] = v
		}
		carry(b)
		return nil
	}
}

func carry(b *neural.Binding) {
	o := 0
	for _, in := range b.Inputs {
		if in.Kind != schema.State {
			continue
		}
		for b.Outputs[o].Kind != schema.State {
			o++
		}
		copy(b.Outputs[o].Data, in.Data)
		o++
	}
}

func firstState(tensors []neural.Tensor) []float32 {
	for i := range tensors {
		if tensors[i].Kind == schema.State {
			return tensors[i].Data
		}
	}
	return nil
}

func audio(tensors []neural.Tensor) []float32 {
	for i := range tensors {
		if tensors[i].Kind == schema.Audio {
			return tensors[i].Data
		}
	}
	return nil
}
