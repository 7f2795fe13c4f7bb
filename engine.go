package neural

import "pipelined.dev/neural/schema"

// Parameters provides normalized control values. NormalizedValue is called
// from the audio thread once per conditioning slot per block. It must not
// block or allocate.
type Parameters interface {
	NormalizedValue(name string) float32
}

// Model is a loaded inference model.
type Model interface {
	// Bind creates a session over the buffers of one channel. It is called
	// on the control thread, possibly for several channels concurrently.
	Bind(*Binding) (Session, error)
	Close() error
}

// Session runs inference over the buffers of one binding. Run reads the
// bound inputs and overwrites the bound outputs. It must not block on I/O
// or allocate, and must return an error rather than panic. The session
// may keep references to the bound buffers until Close and never longer.
type Session interface {
	Run() error
	Close() error
}

// Loader loads a model for a schema.
type Loader interface {
	Load(schema.Schema) (Model, error)
}

// LoaderFunc is a function that implements Loader.
type LoaderFunc func(schema.Schema) (Model, error)

// Load calls f(s).
func (f LoaderFunc) Load(s schema.Schema) (Model, error) {
	return f(s)
}

// zeros is used when no parameters are provided.
type zeros struct{}

func (zeros) NormalizedValue(string) float32 { return 0 }
