package neural

import (
	"errors"

	"pipelined.dev/neural/limiter"
)

// Option provides a way to set functional parameters to processor.
type Option func(*Processor) error

// WithName sets name to Processor. Schema name is used by default.
func WithName(n string) Option {
	return func(p *Processor) error {
		p.name = n
		return nil
	}
}

// WithLogger sets logger to Processor. If this option is not provided, silent logger is used.
func WithLogger(logger Logger) Option {
	return func(p *Processor) error {
		p.log = logger
		return nil
	}
}

// WithLimiter replaces the default tanh limiter of the output.
func WithLimiter(l limiter.Limiter) Option {
	return func(p *Processor) error {
		if l == nil {
			return errors.New("nil limiter")
		}
		p.limiter = l
		return nil
	}
}

// WithParameters sets provider of conditioning values. If this option is
// not provided, all conditioning values are zero.
func WithParameters(params Parameters) Option {
	return func(p *Processor) error {
		if params == nil {
			return errors.New("nil parameters")
		}
		p.params = params
		return nil
	}
}

// WithMetrics publishes processor counters with metric package under
// the processor name.
func WithMetrics() Option {
	return func(p *Processor) error {
		p.metrics = true
		return nil
	}
}

// WithConcurrentChannels processes every channel beyond the first on its
// own goroutine. The model sessions must be safe to run concurrently.
func WithConcurrentChannels() Option {
	return func(p *Processor) error {
		p.concurrent = true
		return nil
	}
}
