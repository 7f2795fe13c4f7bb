package neural

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/neural/schema"
)

func TestStateStore(t *testing.T) {
	s := schema.CL1B()
	store := newStateStore(s.States())
	store.init(2)
	assert.Equal(t, 2, store.channels())
	assert.Len(t, store.vector(0, 0), 6)
	assert.Len(t, store.vector(0, 2), 4)

	require.NoError(t, store.write(1, 2, []float32{1, 2, 3, 4}))
	assert.Equal(t, []float32{1, 2, 3, 4}, store.vector(1, 2))
	assert.Equal(t, []float32{0, 0, 0, 0}, store.vector(0, 2))

	err := store.write(0, 2, []float32{1, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "hidden", shapeErr.Slot)
	assert.Equal(t, []float32{0, 0, 0, 0}, store.vector(0, 2))

	// commit writes all or nothing
	next := [][]float32{make([]float32, 6), make([]float32, 6), {9, 9}}
	next[0][0] = 5
	assert.ErrorIs(t, store.commit(0, next), ErrShapeMismatch)
	assert.Equal(t, float32(0), store.vector(0, 0)[0])
	next[2] = []float32{9, 9, 9, 9}
	require.NoError(t, store.commit(0, next))
	assert.Equal(t, float32(5), store.vector(0, 0)[0])
	assert.Equal(t, []float32{9, 9, 9, 9}, store.vector(0, 2))

	// vectors don't overlap
	store.vector(0, 0)[5] = 7
	assert.Equal(t, float32(0), store.vector(0, 1)[0])

	store.reset()
	for c := 0; c < 2; c++ {
		for i := range s.States() {
			for _, v := range store.vector(c, i) {
				assert.Zero(t, v)
			}
		}
	}
}

func TestBlockBuffers(t *testing.T) {
	s := schema.Hybrid()
	b := newBlockBuffers(8, len(s.Conditioning()), s.States())
	assert.Len(t, b.in, 8)
	assert.Len(t, b.out, 8)
	require.Len(t, b.cond, 3)
	require.Len(t, b.next, 2)
	for _, c := range b.cond {
		assert.Len(t, c, 8)
		assert.Equal(t, 8, cap(c))
	}
	for _, n := range b.next {
		assert.Len(t, n, 8)
	}
	// buffers don't overlap
	b.in[7] = 1
	assert.Zero(t, b.out[0])
}

func TestBroadcast(t *testing.T) {
	s := schema.Schema{
		Inputs: []schema.Slot{
			{Name: "a", Kind: schema.Conditioning},
			{Name: "b", Kind: schema.Conditioning, Param: "drive", Range: schema.Range{Min: 0.2, Max: 0.5}},
		},
	}
	snap := newSnapshot(s.Conditioning())
	assert.Equal(t, []string{"a", "drive"}, snap.params)

	snap.sample(params{"a": 2, "drive": 0.1})
	assert.Equal(t, []float32{1, 0.2}, snap.values)

	dst := [][]float32{make([]float32, 3), make([]float32, 3)}
	broadcast(dst, snap.values)
	assert.Equal(t, [][]float32{{1, 1, 1}, {0.2, 0.2, 0.2}}, dst)

	snap.sample(params{"a": 0.4, "drive": 0.3})
	broadcast(dst, snap.values)
	assert.Equal(t, [][]float32{{0.4, 0.4, 0.4}, {0.3, 0.3, 0.3}}, dst)
}

type params map[string]float32

func (p params) NormalizedValue(name string) float32 {
	return p[name]
}

func TestBind(t *testing.T) {
	s := schema.CL1B()
	store := newStateStore(s.States())
	store.init(1)
	buf := newBlockBuffers(16, len(s.Conditioning()), s.States())

	b, err := bind(&s, 16, 0, buf, store.vectors[0])
	require.NoError(t, err)
	assert.Equal(t, s.InputNames(), b.InputNames())
	assert.Equal(t, s.OutputNames(), b.OutputNames())
	assert.Equal(t, []int64{1, 16, 1}, b.Inputs[0].Shape)
	assert.Equal(t, []int64{1, 1, 6}, b.Inputs[5].Shape)

	// bindings share memory with buffers and state
	buf.cond[1][0] = 0.5
	assert.Equal(t, float32(0.5), b.Input("params_inputs1")[0])
	store.vector(0, 2)[0] = 0.25
	assert.Equal(t, float32(0.25), b.Input("hidden")[0])
	buf.next[0][0] = 0.75
	assert.Equal(t, float32(0.75), b.Output("new_states1")[0])
	assert.Nil(t, b.Input("missing"))

	var tests = []struct {
		description string
		blockSize   int
		buf         *blockBuffers
		state       [][]float32
		expected    error
	}{
		{
			description: "zero block size",
			blockSize:   0,
			buf:         buf,
			state:       store.vectors[0],
			expected:    ErrConfiguration,
		},
		{
			description: "missing buffers",
			blockSize:   16,
			state:       store.vectors[0],
			expected:    ErrConfiguration,
		},
		{
			description: "missing state",
			blockSize:   16,
			buf:         buf,
			state:       store.vectors[0][:2],
			expected:    ErrConfiguration,
		},
		{
			description: "buffer size",
			blockSize:   32,
			buf:         buf,
			state:       store.vectors[0],
			expected:    ErrSchemaMismatch,
		},
		{
			description: "state size",
			blockSize:   16,
			buf:         buf,
			state:       [][]float32{make([]float32, 6), make([]float32, 6), make([]float32, 3)},
			expected:    ErrSchemaMismatch,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			_, err := bind(&s, test.blockSize, 0, test.buf, test.state)
			assert.ErrorIs(t, err, test.expected)
		})
	}
}

func TestBindingValidate(t *testing.T) {
	s := schema.NeuralPiano()
	store := newStateStore(s.States())
	store.init(1)
	b, err := bind(&s, 4, 0, newBlockBuffers(4, 2, s.States()), store.vectors[0])
	require.NoError(t, err)

	// swapped conditioning names are rejected
	b.Inputs[1], b.Inputs[2] = b.Inputs[2], b.Inputs[1]
	err = b.validate(&s, 4)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	var mismatch *schema.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "k", mismatch.Slot)
	assert.Equal(t, "name", mismatch.Field)

	b.Inputs[1], b.Inputs[2] = b.Inputs[2], b.Inputs[1]
	b.Outputs = b.Outputs[:1]
	assert.ErrorIs(t, b.validate(&s, 4), ErrSchemaMismatch)
}
