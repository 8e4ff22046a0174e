package sampler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gravito-framework/sysdash/pkg/probes"
	"github.com/gravito-framework/sysdash/pkg/types"
)

// scriptedProbe advances its counters so that every read after the first
// yields the next load from loads (cycled). Memory readings are fixed
// unless memoryFor is set.
type scriptedProbe struct {
	mu    sync.Mutex
	ticks types.TickSnapshot
	loads []float64
	calls int

	total     uint64
	available uint64
	memoryFor func(call int) (uint64, uint64)

	cpuErr error
	memErr error
	panic  bool
	delay  time.Duration

	// started is signalled when ReadCPUTicks is entered. When release is
	// non-nil the read blocks until it is closed, ignoring ctx.
	started chan struct{}
	release chan struct{}
}

func newScriptedProbe(loads ...float64) *scriptedProbe {
	return &scriptedProbe{
		ticks: types.TickSnapshot{
			types.ModeIdle:   1000,
			types.ModeUser:   500,
			types.ModeSystem: 200,
			types.ModeIowait: 10,
		},
		loads:     loads,
		total:     8_000_000_000,
		available: 2_000_000_000,
	}
}

func (p *scriptedProbe) ReadCPUTicks(ctx context.Context) (types.TickSnapshot, error) {
	if p.started != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
	}
	if p.release != nil {
		<-p.release
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.panic {
		panic("probe exploded")
	}
	if p.cpuErr != nil {
		return nil, p.cpuErr
	}

	if p.calls > 0 && len(p.loads) > 0 {
		load := p.loads[(p.calls-1)%len(p.loads)]
		p.ticks[types.ModeUser] += load * 100
		p.ticks[types.ModeIdle] += (1 - load) * 100
	}
	p.calls++
	return p.ticks.Clone(), nil
}

func (p *scriptedProbe) ReadMemory(ctx context.Context) (uint64, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.memErr != nil {
		return 0, 0, p.memErr
	}
	if p.memoryFor != nil {
		total, available := p.memoryFor(p.calls - 1)
		return total, available, nil
	}
	return p.total, p.available, nil
}

func (p *scriptedProbe) set(fn func(p *scriptedProbe)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSampler(probe probes.Probe, opts ...Option) *Sampler {
	return New(probe, append([]Option{WithLogger(discardLogger())}, opts...)...)
}

var _ probes.Probe = (*scriptedProbe)(nil)
