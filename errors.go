package neural

import (
	"errors"
	"fmt"
	"strings"

	"pipelined.dev/neural/schema"
)

var (
	// ErrConfiguration is returned when block size, channel count or
	// buffers are invalid.
	ErrConfiguration = errors.New("configuration error")
	// ErrSchemaMismatch is returned when declared and actual tensor names
	// or shapes disagree.
	ErrSchemaMismatch = schema.ErrMismatch
	// ErrShapeMismatch is returned when a state vector doesn't match the
	// declared size of its slot.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInference is returned when the inference runtime call failed.
	ErrInference = errors.New("inference failed")
	// ErrInvalidState is returned if processor method cannot be executed at this moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrClosed is returned when processor is used after Close.
	ErrClosed = errors.New("processor closed")
	// ErrNonFinite is the cause of inference errors for outputs with NaN
	// or infinite samples.
	ErrNonFinite = errors.New("non-finite model output")

	errPanic = errors.New("inference runtime panicked")
)

// ConfigError is returned by Prepare and binding for invalid configuration.
type ConfigError struct {
	Op    string
	Field string
	Value int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %d", e.Op, e.Field, e.Value)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// ShapeError is returned when a state vector has unexpected length.
type ShapeError struct {
	Slot string
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("state %q: want %d values, got %d", e.Slot, e.Want, e.Got)
}

// Is reports whether target is ErrShapeMismatch.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// InferenceError is the failure of a single inference call. Processors
// and adapters keep one instance per channel and reuse it, so a failing
// block doesn't allocate.
type InferenceError struct {
	Channel int
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("channel %d: inference failed: %v", e.Channel, e.Err)
}

// Is reports whether target is ErrInference.
func (e *InferenceError) Is(target error) bool {
	return target == ErrInference
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// closeErrors wraps errors that might occure when multiple sessions
// are closed.
type closeErrors []error

func (e closeErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e closeErrors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// ret returns untyped nil if error is list is empty.
func (e closeErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
