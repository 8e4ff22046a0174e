package sampler

import (
	"fmt"
	"math"

	"github.com/gravito-framework/sysdash/pkg/types"
)

// CPULoad derives the fraction of non-idle CPU time between two tick
// snapshots. Modes missing from one side count as zero. A non-positive
// total delta (first sample, counter reset, clock anomaly) yields 0.
func CPULoad(prev, cur types.TickSnapshot) float64 {
	var totalDelta float64
	for mode, v := range cur {
		totalDelta += v - prev[mode]
	}
	for mode, v := range prev {
		if _, ok := cur[mode]; !ok {
			totalDelta -= v
		}
	}

	var idleDelta float64
	for _, mode := range types.IdleModes {
		idleDelta += cur[mode] - prev[mode]
	}

	if !(totalDelta > 0) || math.IsInf(totalDelta, 0) {
		return 0
	}

	load := 1 - idleDelta/totalDelta
	if math.IsNaN(load) {
		return 0
	}
	return clamp01(load)
}

// MemoryRatio returns (total - available) / total
func MemoryRatio(total, available uint64) (float64, error) {
	if total == 0 {
		return 0, fmt.Errorf("%w: total is zero", ErrInvalidMemoryReading)
	}
	if available > total {
		return 0, fmt.Errorf("%w: available %d exceeds total %d", ErrInvalidMemoryReading, available, total)
	}
	return float64(total-available) / float64(total), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
