// Package metric publishes processor counters through expvar.
package metric

import (
	"expvar"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"pipelined.dev/neural/signal"
)

const processorsLabel = "neural.processors"

const (
	// BlockCounter measures number of process calls.
	BlockCounter = "Blocks"
	// ProcessedCounter measures number of channel blocks that went through the model.
	ProcessedCounter = "Processed"
	// PassthroughCounter measures number of channel blocks left unchanged.
	PassthroughCounter = "Passthrough"
	// FailureCounter measures number of failed inference calls.
	FailureCounter = "Failures"
	// MismatchCounter measures number of channel blocks with unexpected length.
	MismatchCounter = "SizeMismatches"
	// LatencyCounter is the duration of the last inference call.
	LatencyCounter = "Latency"
	// DurationCounter counts what's the duration of processed signal.
	DurationCounter = "Duration"
	// ProcessorCounter counts number of meters created for the name.
	ProcessorCounter = "Processors"
)

var (
	processors = metrics{
		m: make(map[string]*metric),
	}

	counters = []string{
		BlockCounter,
		ProcessedCounter,
		PassthroughCounter,
		FailureCounter,
		MismatchCounter,
		LatencyCounter,
		DurationCounter,
		ProcessorCounter,
	}
)

// Get metrics values for provided processor name.
func Get(name string) map[string]string {
	return getCounters(name)
}

// GetAll returns counters for all measured processors.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	processors.Lock()
	defer processors.Unlock()
	for name := range processors.m {
		m[name] = getCounters(name)
	}
	return m
}

func getCounters(name string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(name, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// Meter captures counters of a single processor. Counters are shared by
// all meters with the same name. All methods are safe to call from the
// audio thread, nil meter is a no-op.
type Meter struct {
	*metric
	blockDuration int64
}

// New creates a meter for the named processor.
func New(name string) *Meter {
	m := processors.get(name)
	m.processors.Add(1)
	return &Meter{metric: m}
}

// Reset sets the duration of a single block.
func (m *Meter) Reset(sampleRate, blockSize int) {
	if m == nil || sampleRate <= 0 {
		return
	}
	atomic.StoreInt64(&m.blockDuration, int64(signal.DurationOf(sampleRate, int64(blockSize))))
}

// Block counts a process call.
func (m *Meter) Block() {
	if m == nil {
		return
	}
	m.blocks.Add(1)
	m.duration.add(time.Duration(atomic.LoadInt64(&m.blockDuration)))
}

// Processed counts a channel block that went through the model.
func (m *Meter) Processed(latency time.Duration) {
	if m == nil {
		return
	}
	m.processed.Add(1)
	m.latency.set(latency)
}

// Passthrough counts a channel block left unchanged.
func (m *Meter) Passthrough() {
	if m == nil {
		return
	}
	m.passthrough.Add(1)
}

// Failure counts a failed inference call.
func (m *Meter) Failure() {
	if m == nil {
		return
	}
	m.failures.Add(1)
}

// Mismatch counts a channel block with unexpected length.
func (m *Meter) Mismatch() {
	if m == nil {
		return
	}
	m.mismatches.Add(1)
}

type metrics struct {
	sync.Mutex
	m map[string]*metric
}

func (m *metrics) get(name string) *metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[name]; ok {
		// return existing metric if available
		return metric
	}
	// create new metric
	metric := newMetric(name)
	m.m[name] = metric
	return metric
}

type metric struct {
	processors  *expvar.Int
	blocks      *expvar.Int
	processed   *expvar.Int
	passthrough *expvar.Int
	failures    *expvar.Int
	mismatches  *expvar.Int
	latency     *duration
	duration    *duration
}

func newMetric(name string) *metric {
	m := metric{
		processors:  expvar.NewInt(key(name, ProcessorCounter)),
		blocks:      expvar.NewInt(key(name, BlockCounter)),
		processed:   expvar.NewInt(key(name, ProcessedCounter)),
		passthrough: expvar.NewInt(key(name, PassthroughCounter)),
		failures:    expvar.NewInt(key(name, FailureCounter)),
		mismatches:  expvar.NewInt(key(name, MismatchCounter)),
		latency:     &duration{},
		duration:    &duration{},
	}
	expvar.Publish(key(name, LatencyCounter), m.latency)
	expvar.Publish(key(name, DurationCounter), m.duration)
	return &m
}

func key(name, counter string) string {
	return fmt.Sprintf("%s.%s.%s", processorsLabel, name, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return strconv.Quote(time.Duration(atomic.LoadInt64(&v.d)).String())
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
