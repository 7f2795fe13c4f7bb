package schema

import "sort"

var presets = map[string]func() Schema{
	"cl1b":   CL1B,
	"hybrid": Hybrid,
	"piano":  NeuralPiano,
}

// Preset returns a built-in schema by name.
func Preset(name string) (Schema, bool) {
	fn, ok := presets[name]
	if !ok {
		return Schema{}, false
	}
	return fn(), true
}

// Presets returns sorted names of built-in schemas.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CL1B is the optical compressor model. It carries two state groups of
// different sizes.
func CL1B() Schema {
	return Schema{
		Name:      "cl1b",
		Model:     "CL1B_nof.onnx",
		Threshold: 0.8,
		Inputs: []Slot{
			{Name: "input", Kind: Audio},
			{Name: "params_inputs", Kind: Conditioning, Param: "threshold", Label: "Threshold"},
			{Name: "params_inputs1", Kind: Conditioning, Param: "ratio", Label: "Ratio"},
			{Name: "params_inputs2", Kind: Conditioning, Param: "attack", Label: "Attack"},
			{Name: "params_inputs3", Kind: Conditioning, Param: "release", Label: "Release"},
			{Name: "states1", Kind: State, Size: 6},
			{Name: "states2", Kind: State, Size: 6},
			{Name: "hidden", Kind: State, Size: 4},
		},
		Outputs: []Slot{
			{Name: "output", Kind: Audio},
			{Name: "new_states1", Kind: State, Size: 6, Updates: "states1"},
			{Name: "new_states2", Kind: State, Size: 6, Updates: "states2"},
			{Name: "new_hidden", Kind: State, Size: 4, Updates: "hidden"},
		},
	}
}

// Hybrid is the compressor with tape and preamp stages.
func Hybrid() Schema {
	return Schema{
		Name:      "hybrid",
		Model:     "CL1BTapePreamp__lstm_8.onnx",
		Threshold: 0.8,
		Inputs: []Slot{
			{Name: "inputs", Kind: Audio},
			{Name: "c", Kind: Conditioning, Label: "Comp"},
			{Name: "p", Kind: Conditioning, Label: "PreAmp"},
			{Name: "t", Kind: Conditioning, Label: "Tape"},
			{Name: "h1", Kind: State, Size: 8},
			{Name: "h2", Kind: State, Size: 8},
		},
		Outputs: []Slot{
			{Name: "outputs", Kind: Audio},
			{Name: "new_h1", Kind: State, Size: 8, Updates: "h1"},
			{Name: "new_h2", Kind: State, Size: 8, Updates: "h2"},
		},
	}
}

// NeuralPiano is the piano voice model driven by key number and velocity.
func NeuralPiano() Schema {
	return Schema{
		Name:      "piano",
		Model:     "NeuralPiano_up.onnx",
		Threshold: 0.6,
		Inputs: []Slot{
			{Name: "input", Kind: Audio},
			{Name: "k", Kind: Conditioning, Label: "KeyNumber"},
			{Name: "v", Kind: Conditioning, Label: "Velocity"},
			{Name: "h", Kind: State, Size: 64},
		},
		Outputs: []Slot{
			{Name: "output", Kind: Audio},
			{Name: "new_h", Kind: State, Size: 64, Updates: "h"},
		},
	}
}
