// Package ort runs neural models with ONNX Runtime.
//
// Every channel gets its own session bound once to the tensors that wrap
// processor buffers, so a run copies nothing and allocates nothing.
// Sessions keep references to the binding buffers until they are closed.
// The processor closes sessions before it replaces or drops the buffers,
// so a session never outlives the memory it reads and writes.
//
// Model dimensions are checked against the schema when the model is
// opened and against the block length when a channel is bound.
package ort

import (
	"errors"
	"fmt"
	"os"
	"sync"

	onnx "github.com/yalue/onnxruntime_go"

	"pipelined.dev/neural"
	"pipelined.dev/neural/schema"
)

// LibraryEnv is the environment variable with the shared library path.
const LibraryEnv = "ONNXRUNTIME_LIB"

// Config of the runtime.
type Config struct {
	// LibraryPath of onnxruntime shared library. LibraryEnv is used if empty.
	LibraryPath string
	// ModelPath of the model file. It's resolved with ResolveModelPath
	// from schema model name if empty.
	ModelPath string
	// IntraOpThreads per session. Defaults to 1.
	IntraOpThreads int
	// InterOpThreads per session. Defaults to 1.
	InterOpThreads int
}

var env struct {
	sync.Mutex
	refs int
}

func acquireEnvironment(libraryPath string) error {
	env.Lock()
	defer env.Unlock()
	if env.refs == 0 {
		if libraryPath == "" {
			libraryPath = os.Getenv(LibraryEnv)
		}
		if libraryPath != "" {
			onnx.SetSharedLibraryPath(libraryPath)
		}
		if err := onnx.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	env.refs++
	return nil
}

func releaseEnvironment() error {
	env.Lock()
	defer env.Unlock()
	env.refs--
	if env.refs == 0 {
		return onnx.DestroyEnvironment()
	}
	return nil
}

// Model is an onnx model validated against a schema.
type Model struct {
	path    string
	schema  schema.Schema
	inputs  []onnx.InputOutputInfo
	outputs []onnx.InputOutputInfo
	options *onnx.SessionOptions
	closed  bool
}

// Loader returns a loader that opens models with provided config.
func Loader(cfg Config) neural.Loader {
	return neural.LoaderFunc(func(s schema.Schema) (neural.Model, error) {
		m, err := Open(s, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
}

// Open initializes the runtime, checks model inputs and outputs against
// the schema and prepares session options.
func Open(s schema.Schema, cfg Config) (*Model, error) {
	path := cfg.ModelPath
	if path == "" {
		var err error
		if path, err = ResolveModelPath(s.Model); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model %s: %w", s.Name, err)
	}
	if err := acquireEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}
	m, err := open(s, cfg, path)
	if err != nil {
		_ = releaseEnvironment()
		return nil, err
	}
	return m, nil
}

func open(s schema.Schema, cfg Config, path string) (*Model, error) {
	inputs, outputs, err := onnx.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	if err := validate(s.Inputs, inputs); err != nil {
		return nil, err
	}
	if err := validate(s.Outputs, outputs); err != nil {
		return nil, err
	}
	options, err := sessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &Model{
		path:    path,
		schema:  s,
		inputs:  inputs,
		outputs: outputs,
		options: options,
	}, nil
}

// validate checks that the model declares every slot with float element
// type and compatible shape. The time dimension isn't checked because
// block size is unknown until prepare.
func validate(slots []schema.Slot, infos []onnx.InputOutputInfo) error {
	declared := make(map[string]onnx.InputOutputInfo, len(infos))
	for _, info := range infos {
		declared[info.Name] = info
	}
	for _, slot := range slots {
		info, ok := declared[slot.Name]
		if !ok {
			return &schema.MismatchError{Slot: slot.Name, Field: "name", Want: slot.Name, Got: "missing"}
		}
		if info.DataType != onnx.TensorElementDataTypeFloat {
			return &schema.MismatchError{Slot: slot.Name, Field: "element type", Want: "float", Got: fmt.Sprint(info.DataType)}
		}
		delete(declared, slot.Name)
	}
	for name := range declared {
		return &schema.MismatchError{Slot: name, Field: "name", Want: "declared slot", Got: "unknown"}
	}
	return match(slots, infos, 0)
}

// match checks declared dimensions of every slot for block length l.
// Block length l <= 0 leaves the time dimension unchecked.
func match(slots []schema.Slot, infos []onnx.InputOutputInfo, l int) error {
	for _, slot := range slots {
		for _, info := range infos {
			if info.Name != slot.Name {
				continue
			}
			if err := slot.Match(l, []int64(info.Dimensions)); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// blockLength returns the length of the bound audio input.
func blockLength(b *neural.Binding) int {
	for _, t := range b.Inputs {
		if t.Kind == schema.Audio {
			return len(t.Data)
		}
	}
	return 0
}

func sessionOptions(cfg Config) (*onnx.SessionOptions, error) {
	intra, inter := cfg.IntraOpThreads, cfg.InterOpThreads
	if intra <= 0 {
		intra = 1
	}
	if inter <= 0 {
		inter = 1
	}
	options, err := onnx.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	for _, set := range []func() error{
		func() error { return options.SetIntraOpNumThreads(intra) },
		func() error { return options.SetInterOpNumThreads(inter) },
		func() error { return options.SetCpuMemArena(true) },
		func() error { return options.SetMemPattern(true) },
	} {
		if err := set(); err != nil {
			_ = options.Destroy()
			return nil, fmt.Errorf("session options: %w", err)
		}
	}
	return options, nil
}

// Path returns the model file path.
func (m *Model) Path() string {
	return m.path
}

// IO returns inputs and outputs declared by the model file.
func (m *Model) IO() (inputs, outputs []onnx.InputOutputInfo) {
	return m.inputs, m.outputs
}

// Bind creates a session with tensors over binding buffers.
func (m *Model) Bind(b *neural.Binding) (neural.Session, error) {
	if m.closed {
		return nil, errors.New("model is closed")
	}
	l := blockLength(b)
	if err := match(m.schema.Inputs, m.inputs, l); err != nil {
		return nil, err
	}
	if err := match(m.schema.Outputs, m.outputs, l); err != nil {
		return nil, err
	}
	s := &session{}
	s.failure.Channel = b.Channel
	inputs, err := s.tensors(b.Inputs)
	if err != nil {
		s.destroy()
		return nil, err
	}
	outputs, err := s.tensors(b.Outputs)
	if err != nil {
		s.destroy()
		return nil, err
	}
	s.session, err = onnx.NewAdvancedSession(m.path, b.InputNames(), b.OutputNames(), inputs, outputs, m.options)
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// Close destroys session options and releases the runtime.
func (m *Model) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var err error
	if m.options != nil {
		err = m.options.Destroy()
	}
	if rerr := releaseEnvironment(); err == nil {
		err = rerr
	}
	return err
}

// session runs one channel.
type session struct {
	session *onnx.AdvancedSession
	values  []*onnx.Tensor[float32]
	failure neural.InferenceError
}

// tensors wraps binding buffers without copying them.
func (s *session) tensors(bound []neural.Tensor) ([]onnx.Value, error) {
	values := make([]onnx.Value, 0, len(bound))
	for _, t := range bound {
		tensor, err := onnx.NewTensor(onnx.NewShape(t.Shape...), t.Data)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", t.Name, err)
		}
		s.values = append(s.values, tensor)
		values = append(values, tensor)
	}
	return values, nil
}

// Run implements neural.Session. Runtime panics are returned as errors.
func (s *session) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.failure.Err = errRuntimePanic
			err = &s.failure
		}
	}()
	if err := s.session.Run(); err != nil {
		s.failure.Err = err
		return &s.failure
	}
	return nil
}

var errRuntimePanic = errors.New("onnxruntime panicked")

// Close implements neural.Session.
func (s *session) Close() error {
	return s.destroy()
}

func (s *session) destroy() error {
	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	for _, v := range s.values {
		if derr := v.Destroy(); err == nil {
			err = derr
		}
	}
	s.values = nil
	return err
}
