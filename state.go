package neural

import "pipelined.dev/neural/schema"

// stateStore keeps recurrent state vectors of every channel. Vectors of a
// channel share one allocation, channels never share memory.
type stateStore struct {
	slots   []schema.Slot
	vectors [][][]float32
}

func newStateStore(slots []schema.Slot) *stateStore {
	return &stateStore{slots: slots}
}

// init allocates zeroed vectors for every channel.
func (s *stateStore) init(channels int) {
	total := 0
	for _, slot := range s.slots {
		total += slot.Size
	}
	s.vectors = make([][][]float32, channels)
	for c := range s.vectors {
		mem := make([]float32, total)
		v := make([][]float32, len(s.slots))
		for i, slot := range s.slots {
			v[i] = mem[:slot.Size:slot.Size]
			mem = mem[slot.Size:]
		}
		s.vectors[c] = v
	}
}

func (s *stateStore) channels() int {
	return len(s.vectors)
}

func (s *stateStore) vector(channel, slot int) []float32 {
	return s.vectors[channel][slot]
}

// write overwrites a single state vector in place.
func (s *stateStore) write(channel, slot int, v []float32) error {
	dst := s.vectors[channel][slot]
	if len(v) != len(dst) {
		return &ShapeError{Slot: s.slots[slot].Name, Want: len(dst), Got: len(v)}
	}
	copy(dst, v)
	return nil
}

// commit overwrites all state vectors of a channel. Nothing is written
// unless every vector has the declared size.
func (s *stateStore) commit(channel int, next [][]float32) error {
	vectors := s.vectors[channel]
	if len(next) != len(vectors) {
		return &ShapeError{Slot: "*", Want: len(vectors), Got: len(next)}
	}
	for i, v := range next {
		if len(v) != len(vectors[i]) {
			return &ShapeError{Slot: s.slots[i].Name, Want: len(vectors[i]), Got: len(v)}
		}
	}
	for i, v := range next {
		if err := s.write(channel, i, v); err != nil {
			return err
		}
	}
	return nil
}

// reset zeroes state of every channel.
func (s *stateStore) reset() {
	for _, v := range s.vectors {
		for _, vector := range v {
			clear(vector)
		}
	}
}
