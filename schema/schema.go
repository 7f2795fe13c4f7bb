// Package schema describes the named tensor slots a recurrent audio model
// consumes and produces.
//
// A schema has exactly one streaming audio input, any number of
// conditioning inputs and any number of recurrent state inputs. Outputs
// start with the processed audio and continue with one updated state per
// input state, in the same order. Slots are always referenced by name.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultThreshold is used when a schema doesn't declare one.
const DefaultThreshold = 0.8

// ErrMismatch is returned when declared and actual slot names or shapes
// disagree.
var ErrMismatch = errors.New("schema mismatch")

// Kind is the role of a slot.
type Kind uint8

const (
	// Audio is the streaming audio slot, shaped [1, L, 1].
	Audio Kind = iota + 1
	// Conditioning is a control slot broadcast to block length, shaped [1, L, 1].
	Conditioning
	// State is a recurrent state slot, shaped [1, 1, S].
	State
)

var kinds = map[string]Kind{
	"audio":        Audio,
	"conditioning": Conditioning,
	"state":        State,
}

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Conditioning:
		return "conditioning"
	case State:
		return "state"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalYAML implements yaml.Marshaler.
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, ok := kinds[strings.ToLower(s)]
	if !ok {
		return fmt.Errorf("line %d: unknown slot kind %q", value.Line, s)
	}
	*k = v
	return nil
}

// Range is the legal range of a conditioning value. Zero value means [0, 1].
type Range struct {
	Min float32 `yaml:"min"`
	Max float32 `yaml:"max"`
}

// Clamp limits v to the range.
func (r Range) Clamp(v float32) float32 {
	if v < r.Min || v != v {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Slot is a named model input or output.
type Slot struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`
	// Size is the state vector length. Only used by state slots.
	Size int `yaml:"size,omitempty"`
	// Param is the parameter name a conditioning slot is driven by.
	// Defaults to the slot name.
	Param string `yaml:"param,omitempty"`
	// Label is a display name for the driving parameter.
	Label string `yaml:"label,omitempty"`
	Range Range  `yaml:"range,omitempty"`
	// Updates names the input state slot an output state replaces.
	Updates string `yaml:"updates,omitempty"`
}

// Bounds returns the legal range of a conditioning slot.
func (s Slot) Bounds() Range {
	if s.Range == (Range{}) {
		return Range{Min: 0, Max: 1}
	}
	return s.Range
}

// Parameter returns the name of the parameter driving a conditioning slot.
func (s Slot) Parameter() string {
	if s.Param == "" {
		return s.Name
	}
	return s.Param
}

// Shape returns the tensor shape of the slot for block length l.
func (s Slot) Shape(l int) []int64 {
	if s.Kind == State {
		return []int64{1, 1, int64(s.Size)}
	}
	return []int64{1, int64(l), 1}
}

// Match checks an actual tensor shape against the slot shape for block
// length l. Negative dimensions in got are dynamic and match anything.
// Block length l <= 0 leaves the time dimension unchecked.
func (s Slot) Match(l int, got []int64) error {
	want := s.Shape(l)
	if len(got) != len(want) {
		return &MismatchError{Slot: s.Name, Field: "rank", Want: fmt.Sprint(len(want)), Got: fmt.Sprint(len(got))}
	}
	for i := range want {
		if got[i] < 0 || (i == 1 && s.Kind != State && l <= 0) {
			continue
		}
		if got[i] != want[i] {
			return &MismatchError{Slot: s.Name, Field: "shape", Want: fmt.Sprint(want), Got: fmt.Sprint(got)}
		}
	}
	return nil
}

// MismatchError describes a disagreement between a declared slot and what
// was actually found.
type MismatchError struct {
	Slot  string
	Field string
	Want  string
	Got   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: slot %q %s: want %s, got %s", e.Slot, e.Field, e.Want, e.Got)
}

// Is reports whether target is ErrMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

// Schema is the ordered description of model inputs and outputs. It is
// immutable once a model is loaded with it.
type Schema struct {
	Name string `yaml:"name"`
	// Model is the model file name.
	Model string `yaml:"model,omitempty"`
	// SampleRate the model was trained at. Zero means any.
	SampleRate int `yaml:"sampleRate,omitempty"`
	// Threshold of the output limiter. Zero means DefaultThreshold.
	Threshold float32 `yaml:"threshold,omitempty"`
	Inputs    []Slot  `yaml:"inputs"`
	Outputs   []Slot  `yaml:"outputs"`
}

// Limit returns the output limiter threshold.
func (s Schema) Limit() float32 {
	if s.Threshold == 0 {
		return DefaultThreshold
	}
	return s.Threshold
}

// Validate checks slot kinds, names and the output order. It returns
// *MismatchError for any violation.
func (s Schema) Validate() error {
	if s.Threshold != s.Threshold || s.Threshold < 0 || s.Threshold > 1 {
		return &MismatchError{Slot: s.Name, Field: "threshold", Want: "(0, 1]", Got: fmt.Sprint(s.Threshold)}
	}
	names := make(map[string]struct{}, len(s.Inputs)+len(s.Outputs))
	unique := func(slot Slot) error {
		if slot.Name == "" {
			return &MismatchError{Slot: slot.Name, Field: "name", Want: "non-empty", Got: "empty"}
		}
		if _, ok := names[slot.Name]; ok {
			return &MismatchError{Slot: slot.Name, Field: "name", Want: "unique", Got: "duplicate"}
		}
		names[slot.Name] = struct{}{}
		return nil
	}

	var audio int
	var states []Slot
	for _, in := range s.Inputs {
		if err := unique(in); err != nil {
			return err
		}
		switch in.Kind {
		case Audio:
			audio++
		case Conditioning:
			if r := in.Bounds(); r.Min != r.Min || r.Max != r.Max || r.Min > r.Max {
				return &MismatchError{Slot: in.Name, Field: "range", Want: "min <= max", Got: fmt.Sprintf("[%v, %v]", r.Min, r.Max)}
			}
		case State:
			if in.Size <= 0 {
				return &MismatchError{Slot: in.Name, Field: "size", Want: "> 0", Got: fmt.Sprint(in.Size)}
			}
			states = append(states, in)
		default:
			return &MismatchError{Slot: in.Name, Field: "kind", Want: "audio, conditioning or state", Got: in.Kind.String()}
		}
	}
	if audio != 1 {
		return &MismatchError{Slot: s.Name, Field: "audio inputs", Want: "1", Got: fmt.Sprint(audio)}
	}

	if len(s.Outputs) != len(states)+1 {
		return &MismatchError{Slot: s.Name, Field: "outputs", Want: fmt.Sprint(len(states) + 1), Got: fmt.Sprint(len(s.Outputs))}
	}
	for i, out := range s.Outputs {
		if err := unique(out); err != nil {
			return err
		}
		if i == 0 {
			if out.Kind != Audio {
				return &MismatchError{Slot: out.Name, Field: "kind", Want: Audio.String(), Got: out.Kind.String()}
			}
			continue
		}
		in := states[i-1]
		if out.Kind != State {
			return &MismatchError{Slot: out.Name, Field: "kind", Want: State.String(), Got: out.Kind.String()}
		}
		if out.Updates != "" && out.Updates != in.Name {
			return &MismatchError{Slot: out.Name, Field: "updates", Want: in.Name, Got: out.Updates}
		}
		if out.Size != in.Size {
			return &MismatchError{Slot: out.Name, Field: "size", Want: fmt.Sprint(in.Size), Got: fmt.Sprint(out.Size)}
		}
	}
	return nil
}

// Audio returns the audio input slot.
func (s Schema) Audio() Slot {
	for _, in := range s.Inputs {
		if in.Kind == Audio {
			return in
		}
	}
	return Slot{}
}

// Conditioning returns conditioning input slots in declared order.
func (s Schema) Conditioning() []Slot {
	return s.inputs(Conditioning)
}

// States returns state input slots in declared order.
func (s Schema) States() []Slot {
	return s.inputs(State)
}

func (s Schema) inputs(k Kind) []Slot {
	var slots []Slot
	for _, in := range s.Inputs {
		if in.Kind == k {
			slots = append(slots, in)
		}
	}
	return slots
}

// InputNames returns input slot names in declared order.
func (s Schema) InputNames() []string {
	return slotNames(s.Inputs)
}

// OutputNames returns output slot names in declared order.
func (s Schema) OutputNames() []string {
	return slotNames(s.Outputs)
}

func slotNames(slots []Slot) []string {
	names := make([]string, 0, len(slots))
	for _, s := range slots {
		names = append(names, s.Name)
	}
	return names
}

// Clone returns a deep copy of the schema.
func (s Schema) Clone() Schema {
	c := s
	c.Inputs = append([]Slot(nil), s.Inputs...)
	c.Outputs = append([]Slot(nil), s.Outputs...)
	return c
}
