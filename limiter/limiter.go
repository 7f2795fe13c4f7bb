// Package limiter provides output stabilizer strategies applied sample-wise
// to raw model output.
package limiter

import (
	"fmt"
	"math"
)

// Limiter bounds a single sample. Implementations must be stateless and
// must not allocate.
type Limiter interface {
	Limit(x float32) float32
}

// Tanh leaves samples within the threshold unchanged and replaces
// samples beyond it with tanh(x). The curve is not continuous at the
// threshold.
type Tanh struct {
	Threshold float32
}

// Limit implements Limiter.
func (l Tanh) Limit(x float32) float32 {
	if abs(x) <= l.Threshold {
		return x
	}
	return float32(math.Tanh(float64(x)))
}

// Knee blends smoothly past the threshold:
// sign(x)*(t + t*tanh((|x|-t)/t)). It is continuous at the threshold and
// bounded by 2t.
type Knee struct {
	Threshold float32
}

// Limit implements Limiter.
func (l Knee) Limit(x float32) float32 {
	a := abs(x)
	t := l.Threshold
	if a <= t || t <= 0 {
		return x
	}
	y := t + t*float32(math.Tanh(float64((a-t)/t)))
	if x < 0 {
		return -y
	}
	return y
}

// Bypass returns samples unchanged.
type Bypass struct{}

// Limit implements Limiter.
func (Bypass) Limit(x float32) float32 {
	return x
}

// Apply writes limited src samples into dst. Lengths must match.
func Apply(l Limiter, dst, src []float32) {
	for i, x := range src {
		dst[i] = l.Limit(x)
	}
}

// New returns a limiter by strategy name.
func New(name string, threshold float32) (Limiter, error) {
	switch name {
	case "", "tanh":
		return Tanh{Threshold: threshold}, nil
	case "knee":
		return Knee{Threshold: threshold}, nil
	case "bypass":
		return Bypass{}, nil
	}
	return nil, fmt.Errorf("unknown limiter %q", name)
}

func abs(x float32) float32 {
	return math.Float32frombits(math.Float32bits(x) &^ (1 << 31))
}
