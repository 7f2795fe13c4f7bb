package neural

import "pipelined.dev/neural/schema"

// snapshot holds conditioning values sampled once per block.
type snapshot struct {
	params []string
	ranges []schema.Range
	values []float32
}

func newSnapshot(slots []schema.Slot) snapshot {
	s := snapshot{
		params: make([]string, len(slots)),
		ranges: make([]schema.Range, len(slots)),
		values: make([]float32, len(slots)),
	}
	for i, slot := range slots {
		s.params[i] = slot.Parameter()
		s.ranges[i] = slot.Bounds()
	}
	return s
}

// sample reads and clamps current values.
func (s *snapshot) sample(p Parameters) {
	for i, name := range s.params {
		s.values[i] = s.ranges[i].Clamp(p.NormalizedValue(name))
	}
}

// broadcast fills every buffer with its scalar. It must run every block,
// bound memory stays the same but values don't.
func broadcast(dst [][]float32, values []float32) {
	for i, v := range values {
		b := dst[i]
		for j := range b {
			b[j] = v
		}
	}
}
