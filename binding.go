package neural

import (
	"fmt"

	"pipelined.dev/neural/schema"
)

// Tensor is a fixed memory region bound to a schema slot.
type Tensor struct {
	Name  string
	Kind  schema.Kind
	Shape []int64
	Data  []float32
}

// Binding associates the buffers of one channel with every schema slot.
// Inputs and Outputs follow the schema order. A binding is valid for
// exactly one configuration and is never mutated.
type Binding struct {
	Channel int
	Inputs  []Tensor
	Outputs []Tensor
}

// Input returns data bound to the named input slot.
func (b *Binding) Input(name string) []float32 {
	return lookup(b.Inputs, name)
}

// Output returns data bound to the named output slot.
func (b *Binding) Output(name string) []float32 {
	return lookup(b.Outputs, name)
}

// InputNames returns input names in schema order.
func (b *Binding) InputNames() []string {
	return tensorNames(b.Inputs)
}

// OutputNames returns output names in schema order.
func (b *Binding) OutputNames() []string {
	return tensorNames(b.Outputs)
}

func lookup(tensors []Tensor, name string) []float32 {
	for i := range tensors {
		if tensors[i].Name == name {
			return tensors[i].Data
		}
	}
	return nil
}

func tensorNames(tensors []Tensor) []string {
	names := make([]string, 0, len(tensors))
	for _, t := range tensors {
		names = append(names, t.Name)
	}
	return names
}

// bind links every slot of the schema to buffers of a single channel.
func bind(s *schema.Schema, blockSize, channel int, buf *blockBuffers, state [][]float32) (*Binding, error) {
	if blockSize <= 0 {
		return nil, &ConfigError{Op: "bind", Field: "block size", Value: blockSize}
	}
	if channel < 0 {
		return nil, &ConfigError{Op: "bind", Field: "channel", Value: channel}
	}
	conditioning, states := len(s.Conditioning()), len(s.States())
	if buf == nil || len(buf.cond) != conditioning || len(buf.next) != states || len(state) != states {
		return nil, &ConfigError{Op: "bind", Field: "buffers of channel", Value: channel}
	}

	b := &Binding{
		Channel: channel,
		Inputs:  make([]Tensor, 0, len(s.Inputs)),
		Outputs: make([]Tensor, 0, len(s.Outputs)),
	}
	var c, st int
	for _, slot := range s.Inputs {
		var data []float32
		switch slot.Kind {
		case schema.Audio:
			data = buf.in
		case schema.Conditioning:
			data = buf.cond[c]
			c++
		case schema.State:
			data = state[st]
			st++
		}
		b.Inputs = append(b.Inputs, Tensor{Name: slot.Name, Kind: slot.Kind, Shape: slot.Shape(blockSize), Data: data})
	}
	st = 0
	for _, slot := range s.Outputs {
		var data []float32
		switch slot.Kind {
		case schema.Audio:
			data = buf.out
		case schema.State:
			data = buf.next[st]
			st++
		}
		b.Outputs = append(b.Outputs, Tensor{Name: slot.Name, Kind: slot.Kind, Shape: slot.Shape(blockSize), Data: data})
	}
	if err := b.validate(s, blockSize); err != nil {
		return nil, err
	}
	return b, nil
}

// validate checks names, order, shapes and buffer lengths against the schema.
func (b *Binding) validate(s *schema.Schema, blockSize int) error {
	if len(b.Inputs) != len(s.Inputs) {
		return &schema.MismatchError{Slot: s.Name, Field: "inputs", Want: fmt.Sprint(len(s.Inputs)), Got: fmt.Sprint(len(b.Inputs))}
	}
	if len(b.Outputs) != len(s.Outputs) {
		return &schema.MismatchError{Slot: s.Name, Field: "outputs", Want: fmt.Sprint(len(s.Outputs)), Got: fmt.Sprint(len(b.Outputs))}
	}
	for i, slot := range s.Inputs {
		if err := check(slot, b.Inputs[i], blockSize); err != nil {
			return err
		}
	}
	for i, slot := range s.Outputs {
		if err := check(slot, b.Outputs[i], blockSize); err != nil {
			return err
		}
	}
	return nil
}

func check(slot schema.Slot, t Tensor, blockSize int) error {
	if t.Name != slot.Name {
		return &schema.MismatchError{Slot: slot.Name, Field: "name", Want: slot.Name, Got: t.Name}
	}
	if err := slot.Match(blockSize, t.Shape); err != nil {
		return err
	}
	if n := elements(t.Shape); n != len(t.Data) {
		return &schema.MismatchError{Slot: slot.Name, Field: "buffer length", Want: fmt.Sprint(n), Got: fmt.Sprint(len(t.Data))}
	}
	return nil
}

func elements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
