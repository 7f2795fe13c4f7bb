package neural

import "pipelined.dev/neural/schema"

// blockBuffers are the fixed buffers of one channel. They are allocated
// once per configuration and overwritten every block.
type blockBuffers struct {
	in   []float32
	out  []float32
	cond [][]float32
	// next receives state outputs before they are committed.
	next [][]float32
}

// newBlockBuffers carves all buffers of a channel from a single allocation.
func newBlockBuffers(blockSize, conditioning int, states []schema.Slot) *blockBuffers {
	total := blockSize * (2 + conditioning)
	for _, s := range states {
		total += s.Size
	}
	mem := make([]float32, total)
	carve := func(n int) []float32 {
		b := mem[:n:n]
		mem = mem[n:]
		return b
	}

	b := &blockBuffers{
		in:   carve(blockSize),
		out:  carve(blockSize),
		cond: make([][]float32, conditioning),
		next: make([][]float32, len(states)),
	}
	for i := range b.cond {
		b.cond[i] = carve(blockSize)
	}
	for i, s := range states {
		b.next[i] = carve(s.Size)
	}
	return b
}
