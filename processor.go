package neural

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/neural/limiter"
	"pipelined.dev/neural/metric"
	"pipelined.dev/neural/schema"
)

// Logger is a global interface for processor loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
}

// Status is the lifecycle state of a channel.
type Status int32

const (
	// Unloaded channel has no buffers.
	Unloaded Status = iota
	// Prepared channel has buffers and bindings and waits for a block.
	Prepared
	// Processing channel is running a block.
	Processing
	// Closed is terminal.
	Closed
)

func (s Status) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Prepared:
		return "prepared"
	case Processing:
		return "processing"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Stats are processor counters. Channel blocks are counted once per
// channel per Process call.
type Stats struct {
	// Blocks is the number of Process calls.
	Blocks uint64
	// Processed channel blocks went through the model.
	Processed uint64
	// Passthrough channel blocks were left unchanged: no model, no
	// prepared channel or unexpected length.
	Passthrough uint64
	// Failures are channel blocks left unchanged after inference error.
	Failures uint64
	// SizeMismatches are channel blocks with length other than the
	// prepared block size.
	SizeMismatches uint64
}

type stats struct {
	blocks      atomic.Uint64
	processed   atomic.Uint64
	passthrough atomic.Uint64
	failures    atomic.Uint64
	mismatches  atomic.Uint64
}

// channel owns buffers, binding and session of a single audio channel.
type channel struct {
	index    int
	status   atomic.Int32
	buffers  *blockBuffers
	binding  *Binding
	session  Session
	failure  InferenceError
	lastErr  error
	failures atomic.Uint64
}

// Processor runs a recurrent model over blocks of non-interleaved audio.
//
// Prepare, Load, Release and Close are control calls. They must not be
// called concurrently with each other or with Process. Process is called
// from the audio thread; it doesn't allocate, lock or log.
type Processor struct {
	uid    string
	name   string
	schema schema.Schema

	log        Logger
	limiter    limiter.Limiter
	params     Parameters
	metrics    bool
	meter      *metric.Meter
	concurrent bool

	model  Model
	closed bool

	sampleRate float64
	blockSize  int
	channels   []*channel
	store      *stateStore
	snapshot   snapshot
	workers    *workers
	stats      stats
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// New creates a processor for the schema and applies provided options.
// Returned processor passes audio through until a model is loaded.
func New(s schema.Schema, options ...Option) (*Processor, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s = s.Clone()
	p := &Processor{
		uid:      newUID(),
		name:     s.Name,
		schema:   s,
		log:      defaultLogger,
		limiter:  limiter.Tanh{Threshold: s.Limit()},
		params:   zeros{},
		snapshot: newSnapshot(s.Conditioning()),
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	if p.metrics {
		p.meter = metric.New(p.name)
	}
	return p, nil
}

// Prepare allocates buffers and binds sessions for the configuration.
// State is zeroed only when the channel count changes. On error the
// previous configuration is left untouched.
func (p *Processor) Prepare(sampleRate float64, blockSize, channels int) error {
	if p.closed {
		return ErrClosed
	}
	if blockSize <= 0 {
		return &ConfigError{Op: "prepare", Field: "block size", Value: blockSize}
	}
	if channels <= 0 {
		return &ConfigError{Op: "prepare", Field: "channel count", Value: channels}
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return &ConfigError{Op: "prepare", Field: "sample rate", Value: int(sampleRate)}
	}
	if p.processing() {
		return ErrInvalidState
	}

	store := p.store
	if store == nil || store.channels() != channels {
		store = newStateStore(p.schema.States())
		store.init(channels)
	}
	states := p.schema.States()
	chans := make([]*channel, channels)
	bindings := make([]*Binding, channels)
	for c := range chans {
		ch := &channel{
			index:   c,
			buffers: newBlockBuffers(blockSize, len(p.snapshot.values), states),
		}
		ch.failure.Channel = c
		b, err := bind(&p.schema, blockSize, c, ch.buffers, store.vectors[c])
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		ch.binding = b
		chans[c] = ch
		bindings[c] = b
	}
	if p.model != nil {
		sessions, err := bindSessions(p.model, bindings)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		for c, s := range sessions {
			chans[c].session = s
		}
	}

	// replace previous configuration
	p.logFailures()
	p.stopWorkers()
	if err := closeSessions(p.channels); err != nil {
		p.log.Warn(fmt.Sprintf("%v: close previous sessions: %v", p, err))
	}
	reset := p.store != store
	p.sampleRate, p.blockSize, p.channels, p.store = sampleRate, blockSize, chans, store
	for _, ch := range chans {
		ch.status.Store(int32(Prepared))
	}
	if p.concurrent && channels > 1 {
		p.workers = startWorkers(p, chans)
	}
	p.meter.Reset(int(sampleRate), blockSize)
	p.log.Info(fmt.Sprintf("%v: prepared sample rate: %v block size: %d channels: %d model loaded: %t state reset: %t",
		p, sampleRate, blockSize, channels, p.model != nil, reset))
	return nil
}

// Load loads a model with the loader. If the processor is prepared,
// sessions are bound for every channel and state is zeroed. On error the
// previous model is kept.
func (p *Processor) Load(l Loader) error {
	if p.closed {
		return ErrClosed
	}
	if p.processing() {
		return ErrInvalidState
	}
	m, err := l.Load(p.schema.Clone())
	if err != nil {
		p.log.Warn(fmt.Sprintf("%v: load failed: %v", p, err))
		return fmt.Errorf("load: %w", err)
	}
	if m == nil {
		return errors.New("load: loader returned no model")
	}

	var sessions []Session
	if len(p.channels) > 0 {
		bindings := make([]*Binding, len(p.channels))
		for c, ch := range p.channels {
			bindings[c] = ch.binding
		}
		if sessions, err = bindSessions(m, bindings); err != nil {
			if cerr := m.Close(); cerr != nil {
				p.log.Warn(fmt.Sprintf("%v: close rejected model: %v", p, cerr))
			}
			return fmt.Errorf("load: %w", err)
		}
	}

	var errs closeErrors
	if err := closeSessions(p.channels); err != nil {
		errs = append(errs, err)
	}
	if p.model != nil {
		if err := p.model.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		p.log.Warn(fmt.Sprintf("%v: close previous model: %v", p, errs))
	}
	p.model = m
	for c, s := range sessions {
		p.channels[c].session = s
	}
	if p.store != nil {
		p.store.reset()
	}
	p.log.Info(fmt.Sprintf("%v: model loaded channels bound: %d", p, len(sessions)))
	return nil
}

// Process runs the model in place over a block of non-interleaved audio,
// one slice per channel. Channels that fail, aren't prepared or have
// unexpected length are left unchanged.
func (p *Processor) Process(block [][]float32) {
	p.stats.blocks.Add(1)
	p.meter.Block()
	n := len(block)
	if n > len(p.channels) {
		p.passthrough(n - len(p.channels))
		n = len(p.channels)
	}
	if n == 0 {
		return
	}
	if p.model == nil {
		p.passthrough(n)
		return
	}
	p.snapshot.sample(p.params)
	if p.workers != nil {
		p.workers.process(p, block[:n])
		return
	}
	for c := 0; c < n; c++ {
		p.processChannel(p.channels[c], block[c])
	}
}

func (p *Processor) processChannel(ch *channel, samples []float32) {
	if ch.session == nil || !ch.status.CompareAndSwap(int32(Prepared), int32(Processing)) {
		p.passthrough(1)
		return
	}
	defer ch.status.Store(int32(Prepared))
	if len(samples) != p.blockSize {
		p.stats.mismatches.Add(1)
		p.meter.Mismatch()
		p.passthrough(1)
		return
	}

	copy(ch.buffers.in, samples)
	broadcast(ch.buffers.cond, p.snapshot.values)
	var start time.Time
	if p.meter != nil {
		start = time.Now()
	}
	if err := ch.run(); err != nil {
		p.fail(ch, err)
		return
	}
	if !finite(ch.buffers.out) || !finiteState(ch.buffers.next) {
		p.fail(ch, ch.inferenceError(ErrNonFinite))
		return
	}
	if err := p.store.commit(ch.index, ch.buffers.next); err != nil {
		p.fail(ch, err)
		return
	}
	limiter.Apply(p.limiter, samples, ch.buffers.out)
	p.stats.processed.Add(1)
	if p.meter != nil {
		p.meter.Processed(time.Since(start))
	}
}

// run calls the session and converts any fault into inference error.
func (ch *channel) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ch.inferenceError(errPanic)
		}
	}()
	if err := ch.session.Run(); err != nil {
		if errors.Is(err, ErrInference) {
			return err
		}
		return ch.inferenceError(err)
	}
	return nil
}

func (ch *channel) inferenceError(err error) error {
	ch.failure.Err = err
	return &ch.failure
}

func (p *Processor) fail(ch *channel, err error) {
	ch.lastErr = err
	ch.failures.Add(1)
	p.stats.failures.Add(1)
	p.meter.Failure()
}

func (p *Processor) passthrough(n int) {
	p.stats.passthrough.Add(uint64(n))
	for i := 0; i < n; i++ {
		p.meter.Passthrough()
	}
}

func finiteState(vectors [][]float32) bool {
	for _, v := range vectors {
		if !finite(v) {
			return false
		}
	}
	return true
}

func finite(samples []float32) bool {
	for _, v := range samples {
		if v != v || v > math.MaxFloat32 || v < -math.MaxFloat32 {
			return false
		}
	}
	return true
}

// Release closes sessions, drops buffers and zeroes state. Model stays
// loaded and the processor can be prepared again.
func (p *Processor) Release() error {
	if p.processing() {
		return ErrInvalidState
	}
	p.logFailures()
	p.stopWorkers()
	err := closeSessions(p.channels)
	for _, ch := range p.channels {
		ch.status.Store(int32(Unloaded))
	}
	p.channels, p.store, p.blockSize = nil, nil, 0
	p.log.Debug(fmt.Sprintf("%v: released", p))
	return err
}

// Close releases the processor and closes the model. Closed processor
// passes audio through.
func (p *Processor) Close() error {
	if p.closed {
		return nil
	}
	var errs closeErrors
	if err := p.Release(); err != nil {
		if errors.Is(err, ErrInvalidState) {
			return err
		}
		errs = append(errs, err)
	}
	if p.model != nil {
		if err := p.model.Close(); err != nil {
			errs = append(errs, err)
		}
		p.model = nil
	}
	p.closed = true
	p.log.Debug(fmt.Sprintf("%v: closed", p))
	return errs.ret()
}

func (p *Processor) processing() bool {
	for _, ch := range p.channels {
		if Status(ch.status.Load()) == Processing {
			return true
		}
	}
	return false
}

func (p *Processor) stopWorkers() {
	if p.workers != nil {
		p.workers.stop()
		p.workers = nil
	}
}

// logFailures reports failures since the previous control call.
func (p *Processor) logFailures() {
	for _, ch := range p.channels {
		if n := ch.failures.Swap(0); n > 0 {
			p.log.Warn(fmt.Sprintf("%v: channel %d: %d failed blocks, last error: %v", p, ch.index, n, ch.lastErr))
		}
	}
}

// bindSessions creates sessions for all bindings concurrently. Either all
// sessions are returned or none.
func bindSessions(m Model, bindings []*Binding) ([]Session, error) {
	sessions := make([]Session, len(bindings))
	var g errgroup.Group
	for i := range bindings {
		i := i
		g.Go(func() error {
			s, err := m.Bind(bindings[i])
			if err != nil {
				return fmt.Errorf("bind channel %d: %w", bindings[i].Channel, err)
			}
			sessions[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range sessions {
			if s != nil {
				_ = s.Close()
			}
		}
		return nil, err
	}
	return sessions, nil
}

func closeSessions(chans []*channel) error {
	var errs closeErrors
	for _, ch := range chans {
		if ch.session == nil {
			continue
		}
		if err := ch.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", ch.index, err))
		}
		ch.session = nil
	}
	return errs.ret()
}

// Stats returns processor counters. It's safe to call at any time.
func (p *Processor) Stats() Stats {
	return Stats{
		Blocks:         p.stats.blocks.Load(),
		Processed:      p.stats.processed.Load(),
		Passthrough:    p.stats.passthrough.Load(),
		Failures:       p.stats.failures.Load(),
		SizeMismatches: p.stats.mismatches.Load(),
	}
}

// LastError returns the last inference error of the channel.
func (p *Processor) LastError(channel int) error {
	if channel < 0 || channel >= len(p.channels) {
		return nil
	}
	return p.channels[channel].lastErr
}

// State returns a copy of the channel state vectors in schema order.
func (p *Processor) State(channel int) [][]float32 {
	if p.store == nil || channel < 0 || channel >= p.store.channels() {
		return nil
	}
	result := make([][]float32, len(p.store.slots))
	for i := range result {
		result[i] = append([]float32(nil), p.store.vector(channel, i)...)
	}
	return result
}

// Status returns the lifecycle state of the channel.
func (p *Processor) Status(channel int) Status {
	if p.closed {
		return Closed
	}
	if channel < 0 || channel >= len(p.channels) {
		return Unloaded
	}
	return Status(p.channels[channel].status.Load())
}

// Loaded reports if a model was successfully loaded.
func (p *Processor) Loaded() bool {
	return p.model != nil
}

// Schema returns a copy of the processor schema.
func (p *Processor) Schema() schema.Schema {
	return p.schema.Clone()
}

// SampleRate returns prepared sample rate.
func (p *Processor) SampleRate() float64 {
	return p.sampleRate
}

// BlockSize returns prepared block size.
func (p *Processor) BlockSize() int {
	return p.blockSize
}

// Channels returns prepared number of channels.
func (p *Processor) Channels() int {
	return len(p.channels)
}

// ID returns unique processor id.
func (p *Processor) ID() string {
	return p.uid
}

func (p *Processor) String() string {
	return fmt.Sprintf("%s-%s", p.name, p.uid)
}

type silentLogger struct{}

func (silentLogger) Debug(args ...interface{}) {}

func (silentLogger) Info(args ...interface{}) {}

func (silentLogger) Warn(args ...interface{}) {}

var defaultLogger silentLogger
