package param_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/neural/param"
	"pipelined.dev/neural/schema"
)

func TestRegistry(t *testing.T) {
	r, err := param.NewRegistry(
		param.Definition{Name: "c", Label: "Comp"},
		param.Definition{Name: "t", Default: 0.5},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "t"}, r.Names())
	assert.Equal(t, float32(0), r.NormalizedValue("c"))
	assert.Equal(t, float32(0.5), r.NormalizedValue("t"))
	assert.Equal(t, float32(0), r.NormalizedValue("missing"))

	var tests = []struct {
		value    float32
		expected float32
	}{
		{value: 0.3, expected: 0.3},
		{value: -1, expected: 0},
		{value: 2, expected: 1},
		{value: 1, expected: 1},
	}
	for _, test := range tests {
		require.NoError(t, r.Set("c", test.value))
		assert.Equal(t, test.expected, r.NormalizedValue("c"))
	}

	assert.ErrorIs(t, r.Set("missing", 1), param.ErrUnknown)
	assert.ErrorIs(t, r.SetQuantized("missing", 1), param.ErrUnknown)

	require.NoError(t, r.SetQuantized("t", 0.123))
	assert.InDelta(t, 0.12, r.NormalizedValue("t"), 1e-6)

	r.Reset()
	assert.Equal(t, float32(0), r.NormalizedValue("c"))
	assert.Equal(t, float32(0.5), r.NormalizedValue("t"))

	p, ok := r.Get("c")
	require.True(t, ok)
	assert.Equal(t, "Comp", p.Label)
	assert.Equal(t, float32(param.DefaultStep), p.Step)
}

func TestRegistryDefinitions(t *testing.T) {
	_, err := param.NewRegistry(param.Definition{Name: "a"}, param.Definition{Name: "a"})
	assert.Error(t, err)
	_, err = param.NewRegistry(param.Definition{})
	assert.Error(t, err)
}

func TestForSchema(t *testing.T) {
	var tests = []struct {
		schema schema.Schema
		names  []string
		labels []string
	}{
		{
			schema: schema.CL1B(),
			names:  []string{"threshold", "ratio", "attack", "release"},
			labels: []string{"Threshold", "Ratio", "Attack", "Release"},
		},
		{
			schema: schema.Hybrid(),
			names:  []string{"c", "p", "t"},
			labels: []string{"Comp", "PreAmp", "Tape"},
		},
		{
			schema: schema.NeuralPiano(),
			names:  []string{"k", "v"},
			labels: []string{"KeyNumber", "Velocity"},
		},
	}
	for _, test := range tests {
		t.Run(test.schema.Name, func(t *testing.T) {
			r := param.ForSchema(test.schema)
			assert.Equal(t, test.names, r.Names())
			labels := []string{}
			for _, p := range r.All() {
				labels = append(labels, p.Label)
				assert.Equal(t, float32(0), p.Value())
			}
			assert.Equal(t, test.labels, labels)
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := param.ForSchema(schema.Hybrid())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = r.Set("t", float32(i%100)/100)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			v := r.NormalizedValue("t")
			assert.True(t, v >= 0 && v <= 1)
		}
	}()
	wg.Wait()
}

func TestAllocations(t *testing.T) {
	r := param.ForSchema(schema.CL1B())
	allocs := testing.AllocsPerRun(100, func() {
		_ = r.NormalizedValue("ratio")
	})
	assert.Equal(t, float64(0), allocs)
}
