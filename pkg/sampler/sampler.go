// Package sampler provides the background CPU and memory sampler behind the dashboard.
//
// A Sampler owns a single goroutine that reads the probe once per SamplePeriod
// and publishes an immutable types.Snapshot. Readers load the latest snapshot
// without locking, so they never block the sampling goroutine and always see
// every field from the same tick.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gravito-framework/sysdash/pkg/probes"
	"github.com/gravito-framework/sysdash/pkg/types"
)

const (
	// SamplePeriod is the fixed rate at which the probe is read
	SamplePeriod = 1 * time.Second

	// HistoryCapacity is the number of CPU load samples kept (one minute at SamplePeriod)
	HistoryCapacity = types.HistoryCapacity

	// StopGracePeriod bounds how long Stop waits for an in-flight tick
	StopGracePeriod = 2 * time.Second
)

var (
	// ErrInvalidStateTransition is returned by Start on a running or stopped sampler
	ErrInvalidStateTransition = errors.New("invalid sampler state transition")

	// ErrInvalidMemoryReading is returned for impossible memory totals.
	// It wraps probes.ErrProbeUnavailable because both are handled the same way.
	ErrInvalidMemoryReading = fmt.Errorf("invalid memory reading (%w)", probes.ErrProbeUnavailable)
)

// State is the sampler lifecycle state
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stats counts the outcome of sampling ticks
type Stats struct {
	Published uint64 // Ticks that published a snapshot
	Failures  uint64 // Ticks skipped because the probe failed
}

// Sampler periodically samples a Probe and publishes CPU and memory usage
type Sampler struct {
	probe  probes.Probe
	logger *slog.Logger
	period time.Duration
	grace  time.Duration

	published atomic.Pointer[types.Snapshot]

	// Lifecycle
	mu       sync.Mutex
	state    State
	stopChan chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc

	// pubMu orders publication against abandonment of a tick by Stop
	pubMu  sync.Mutex
	halted bool

	// Owned by the sampling goroutine
	prevTicks types.TickSnapshot

	subMu     sync.RWMutex
	subs      map[uint64]func(types.Snapshot)
	nextSubID uint64

	publishedCount atomic.Uint64
	failureCount   atomic.Uint64
}

// Option is a functional option for configuring the Sampler
type Option func(*Sampler)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPeriod overrides SamplePeriod. Intended for tests.
func WithPeriod(period time.Duration) Option {
	return func(s *Sampler) {
		if period > 0 {
			s.period = period
		}
	}
}

// WithGracePeriod overrides StopGracePeriod
func WithGracePeriod(grace time.Duration) Option {
	return func(s *Sampler) {
		if grace > 0 {
			s.grace = grace
		}
	}
}

// New creates a sampler in the NotStarted state with an all-zero history
func New(probe probes.Probe, opts ...Option) *Sampler {
	s := &Sampler{
		probe:    probe,
		logger:   slog.Default(),
		period:   SamplePeriod,
		grace:    StopGracePeriod,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		subs:     make(map[uint64]func(types.Snapshot)),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.published.Store(&types.Snapshot{})
	return s
}

// Start begins sampling in the background. The first tick runs immediately.
// Starting a sampler that is running or stopped changes nothing and
// returns ErrInvalidStateTransition.
func (s *Sampler) Start() error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		state := s.state
		s.mu.Unlock()
		s.logger.Warn("Sampler start ignored", "state", state.String())
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidStateTransition, state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.state = StateRunning
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("Sampler started", "period", s.period, "history", HistoryCapacity)

	go s.run(ctx)
	return nil
}

// Stop halts sampling. It waits up to the grace period for an in-flight
// tick, then cancels it; an abandoned tick never publishes. Published
// values remain readable. Stop is idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return
	case StateNotStarted:
		s.state = StateStopped
		close(s.stopChan)
		s.mu.Unlock()
		s.logger.Info("Sampler stopped before start")
		return
	}
	s.state = StateStopped
	close(s.stopChan)
	cancel := s.cancel
	s.mu.Unlock()

	defer cancel()

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
		s.pubMu.Lock()
		s.halted = true
		s.pubMu.Unlock()
		s.logger.Warn("Sampling tick still running after grace period, abandoning it", "grace", s.grace)
	}

	s.logger.Info("Sampler stopped", "published", s.publishedCount.Load(), "failures", s.failureCount.Load())
}

// State returns the current lifecycle state
func (s *Sampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns tick counters
func (s *Sampler) Stats() Stats {
	return Stats{
		Published: s.publishedCount.Load(),
		Failures:  s.failureCount.Load(),
	}
}

// CurrentCPULoad returns the most recently published CPU load (0-1)
func (s *Sampler) CurrentCPULoad() float64 {
	return s.published.Load().CPULoad
}

// MemoryUsage returns the most recently published memory usage ratio (0-1)
func (s *Sampler) MemoryUsage() float64 {
	return s.published.Load().MemoryUsage
}

// CPUHistorySnapshot returns a copy of the CPU load history, oldest first.
// The slice always holds HistoryCapacity samples.
func (s *Sampler) CPUHistorySnapshot() []float64 {
	return s.published.Load().History.Slice()
}

// Snapshot returns a copy of everything published by the latest tick
func (s *Sampler) Snapshot() types.Snapshot {
	return *s.published.Load()
}

// Subscribe registers fn to be called after every publication.
// fn runs on the sampling goroutine and must return quickly.
func (s *Sampler) Subscribe(fn func(types.Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)

	next := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-timer.C:
		}

		// Stop and the timer may fire together
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.sampleOnce(ctx)

		next = nextTick(next, time.Now(), s.period)
		timer.Reset(time.Until(next))
	}
}

// nextTick returns the next fixed-rate slot after prev. When the sampler
// has fallen behind, it returns the latest missed slot so exactly one
// catch-up tick runs immediately and the rest are dropped.
func nextTick(prev, now time.Time, period time.Duration) time.Time {
	next := prev.Add(period)
	if behind := now.Sub(next); behind > 0 {
		next = next.Add(behind / period * period)
	}
	return next
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.failureCount.Add(1)
			s.logger.Error("Probe panicked during sampling tick", "panic", r)
		}
	}()

	snap, ticks, err := s.collect(ctx)
	if err != nil {
		s.failureCount.Add(1)
		s.logger.Warn("Sampling tick skipped, keeping last values", "error", err)
		return
	}

	if !s.publish(snap) {
		s.logger.Debug("Discarded tick finished after stop", "sequence", snap.Sequence)
		return
	}
	s.prevTicks = ticks

	s.logger.Debug("Sample published",
		"sequence", snap.Sequence,
		"cpu", snap.CPULoad,
		"memory", snap.MemoryUsage,
	)

	s.notify(snap)
}

// collect reads the probe and builds the next snapshot without publishing it
func (s *Sampler) collect(ctx context.Context) (types.Snapshot, types.TickSnapshot, error) {
	ticks, err := s.probe.ReadCPUTicks(ctx)
	if err != nil {
		return types.Snapshot{}, nil, fmt.Errorf("failed to read cpu ticks: %w", err)
	}

	total, available, err := s.probe.ReadMemory(ctx)
	if err != nil {
		return types.Snapshot{}, nil, fmt.Errorf("failed to read memory: %w", err)
	}

	ratio, err := MemoryRatio(total, available)
	if err != nil {
		return types.Snapshot{}, nil, err
	}

	// First tick has nothing to diff against and seeds the history with 0
	load := 0.0
	if s.prevTicks != nil {
		load = CPULoad(s.prevTicks, ticks)
	}

	prev := s.published.Load()
	return types.Snapshot{
		Sequence:        prev.Sequence + 1,
		Timestamp:       time.Now(),
		CPULoad:         load,
		MemoryUsage:     ratio,
		MemoryTotal:     total,
		MemoryAvailable: available,
		History:         prev.History.Push(load),
	}, ticks.Clone(), nil
}

func (s *Sampler) publish(snap types.Snapshot) bool {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if s.halted {
		return false
	}
	s.published.Store(&snap)
	s.publishedCount.Add(1)
	return true
}

func (s *Sampler) notify(snap types.Snapshot) {
	s.subMu.RLock()
	fns := make([]func(types.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		s.deliver(fn, snap)
	}
}

func (s *Sampler) deliver(fn func(types.Snapshot), snap types.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Snapshot subscriber panicked", "panic", r)
		}
	}()
	fn(snap)
}
