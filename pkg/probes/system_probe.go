package probes

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/gravito-framework/sysdash/pkg/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// GoSystemProbe implements Probe using gopsutil
type GoSystemProbe struct{}

// NewGoSystemProbe creates a probe backed by the host's counters
func NewGoSystemProbe() *GoSystemProbe {
	return &GoSystemProbe{}
}

// ReadCPUTicks returns the aggregate CPU times across all cores
func (p *GoSystemProbe) ReadCPUTicks(ctx context.Context) (types.TickSnapshot, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%w: cpu times: %v", ErrProbeUnavailable, err)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: cpu times: no data", ErrProbeUnavailable)
	}
	return ticksFromTimes(times[0]), nil
}

// ReadMemory returns total and available physical memory
func (p *GoSystemProbe) ReadMemory(ctx context.Context) (uint64, uint64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: virtual memory: %v", ErrProbeUnavailable, err)
	}
	return v.Total, v.Available, nil
}

// ticksFromTimes maps gopsutil's CPU times onto the sampler's modes.
// Guest time is already included in user time, so it is left out.
func ticksFromTimes(t cpu.TimesStat) types.TickSnapshot {
	return types.TickSnapshot{
		types.ModeUser:    t.User,
		types.ModeNice:    t.Nice,
		types.ModeSystem:  t.System,
		types.ModeIdle:    t.Idle,
		types.ModeIowait:  t.Iowait,
		types.ModeIrq:     t.Irq,
		types.ModeSoftirq: t.Softirq,
		types.ModeSteal:   t.Steal,
	}
}

// ReadHostInfo collects static host facts for the dashboard header.
// Fields that cannot be read keep their fallback values.
func ReadHostInfo(ctx context.Context) *types.HostInfo {
	info := &types.HostInfo{
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		CPUModel:  "Unknown",
		Cores:     runtime.NumCPU(),
		GoVersion: runtime.Version(),
		PID:       os.Getpid(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if stats, err := cpu.InfoWithContext(ctx); err == nil && len(stats) > 0 && stats[0].ModelName != "" {
		info.CPUModel = stats[0].ModelName
	}

	if c, err := cpu.CountsWithContext(ctx, true); err == nil && c > 0 {
		info.Cores = c
	}

	info.ProcessRSS = processRSS(ctx)

	return info
}

// processRSS returns the resident memory of this process, falling back to
// the Go runtime's view when the OS does not report it
func processRSS(ctx context.Context) uint64 {
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil {
			return memInfo.RSS
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys
}

// Ensure GoSystemProbe implements Probe
var _ Probe = (*GoSystemProbe)(nil)
