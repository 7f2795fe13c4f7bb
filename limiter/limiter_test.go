package limiter_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/neural/limiter"
)

var samples = []float32{0, 0.1, -0.2, 0.6, -0.79, 0.8, -0.8, 0.81, -0.95, 1, -1, 1.5, -3, 10, -1000, math.MaxFloat32, -math.MaxFloat32}

func TestTanh(t *testing.T) {
	var tests = []struct {
		threshold float32
	}{
		{threshold: 0.6},
		{threshold: 0.8},
		{threshold: 1},
	}
	for _, test := range tests {
		l := limiter.Tanh{Threshold: test.threshold}
		for _, x := range samples {
			y := l.Limit(x)
			assert.LessOrEqual(t, math.Abs(float64(y)), 1.0)
			if math.Abs(float64(x)) <= float64(test.threshold) {
				assert.Equal(t, x, y)
			} else {
				assert.InDelta(t, math.Tanh(float64(x)), float64(y), 1e-6)
			}
		}
	}
}

func TestKnee(t *testing.T) {
	l := limiter.Knee{Threshold: 0.5}
	for _, x := range samples {
		y := l.Limit(x)
		assert.LessOrEqual(t, math.Abs(float64(y)), 1.0)
		if math.Abs(float64(x)) <= 0.5 {
			assert.Equal(t, x, y)
		}
		// odd symmetry
		assert.Equal(t, -y, l.Limit(-x))
	}
	// continuous at the threshold
	assert.InDelta(t, 0.5, l.Limit(0.5+1e-6), 1e-5)
	assert.InDelta(t, -0.5, l.Limit(-0.5-1e-6), 1e-5)
	// monotonic past the threshold
	assert.Less(t, l.Limit(0.6), l.Limit(0.7))
}

func TestBypass(t *testing.T) {
	for _, x := range samples {
		assert.Equal(t, x, limiter.Bypass{}.Limit(x))
	}
}

func TestApply(t *testing.T) {
	src := []float32{0.2, -0.4, 0.6, -0.8, 0.9}
	dst := make([]float32, len(src))
	limiter.Apply(limiter.Tanh{Threshold: 0.8}, dst, src)
	assert.Equal(t, src[:4], dst[:4])
	assert.InDelta(t, math.Tanh(0.9), dst[4], 1e-6)
}

func TestNew(t *testing.T) {
	var tests = []struct {
		name     string
		expected limiter.Limiter
		err      bool
	}{
		{name: "", expected: limiter.Tanh{Threshold: 0.7}},
		{name: "tanh", expected: limiter.Tanh{Threshold: 0.7}},
		{name: "knee", expected: limiter.Knee{Threshold: 0.7}},
		{name: "bypass", expected: limiter.Bypass{}},
		{name: "clip", err: true},
	}
	for _, test := range tests {
		l, err := limiter.New(test.name, 0.7)
		if test.err {
			assert.Error(t, err)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, test.expected, l)
	}
}
