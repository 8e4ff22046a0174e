package sampler

import (
	"errors"
	"math"
	"testing"

	"github.com/gravito-framework/sysdash/pkg/probes"
	"github.com/gravito-framework/sysdash/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPULoad(t *testing.T) {
	tests := []struct {
		name     string
		prev     types.TickSnapshot
		cur      types.TickSnapshot
		expected float64
	}{
		{
			name:     "half busy",
			prev:     types.TickSnapshot{types.ModeIdle: 100, types.ModeUser: 50},
			cur:      types.TickSnapshot{types.ModeIdle: 150, types.ModeUser: 100},
			expected: 0.5,
		},
		{
			name:     "identical snapshots",
			prev:     types.TickSnapshot{types.ModeIdle: 100, types.ModeUser: 50},
			cur:      types.TickSnapshot{types.ModeIdle: 100, types.ModeUser: 50},
			expected: 0,
		},
		{
			name:     "fully busy",
			prev:     types.TickSnapshot{types.ModeIdle: 100, types.ModeUser: 50, types.ModeSystem: 10},
			cur:      types.TickSnapshot{types.ModeIdle: 100, types.ModeUser: 90, types.ModeSystem: 70},
			expected: 1,
		},
		{
			name:     "fully idle",
			prev:     types.TickSnapshot{types.ModeIdle: 100, types.ModeUser: 50},
			cur:      types.TickSnapshot{types.ModeIdle: 200, types.ModeUser: 50},
			expected: 0,
		},
		{
			name:     "iowait counts as idle",
			prev:     types.TickSnapshot{types.ModeIdle: 0, types.ModeIowait: 0, types.ModeUser: 0},
			cur:      types.TickSnapshot{types.ModeIdle: 50, types.ModeIowait: 25, types.ModeUser: 25},
			expected: 0.25,
		},
		{
			name:     "counter reset",
			prev:     types.TickSnapshot{types.ModeIdle: 1000, types.ModeUser: 500},
			cur:      types.TickSnapshot{types.ModeIdle: 10, types.ModeUser: 5},
			expected: 0,
		},
		{
			name:     "empty previous snapshot",
			prev:     nil,
			cur:      types.TickSnapshot{types.ModeIdle: 75, types.ModeUser: 25},
			expected: 0.25,
		},
		{
			name:     "mode missing from current snapshot",
			prev:     types.TickSnapshot{types.ModeIdle: 100, types.ModeUser: 50, types.ModeSteal: 10},
			cur:      types.TickSnapshot{types.ModeIdle: 150, types.ModeUser: 110},
			expected: 0.5,
		},
		{
			name:     "idle moving backwards is clamped",
			prev:     types.TickSnapshot{types.ModeIdle: 100, types.ModeUser: 0},
			cur:      types.TickSnapshot{types.ModeIdle: 90, types.ModeUser: 20},
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CPULoad(tt.prev, tt.cur))
		})
	}
}

func TestCPULoadNonFinite(t *testing.T) {
	prev := types.TickSnapshot{types.ModeIdle: 0, types.ModeUser: 0}

	nan := CPULoad(prev, types.TickSnapshot{types.ModeIdle: math.NaN(), types.ModeUser: 10})
	assert.Equal(t, 0.0, nan)

	inf := CPULoad(prev, types.TickSnapshot{types.ModeIdle: 10, types.ModeUser: math.Inf(1)})
	assert.Equal(t, 0.0, inf)
}

func TestMemoryRatio(t *testing.T) {
	ratio, err := MemoryRatio(8_000_000_000, 2_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, 0.75, ratio)

	ratio, err = MemoryRatio(1024, 1024)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ratio)

	ratio, err = MemoryRatio(1024, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}

func TestMemoryRatioInvalid(t *testing.T) {
	tests := []struct {
		name      string
		total     uint64
		available uint64
	}{
		{"zero total", 0, 0},
		{"available exceeds total", 1024, 2048},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MemoryRatio(tt.total, tt.available)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidMemoryReading))
			assert.True(t, errors.Is(err, probes.ErrProbeUnavailable))
		})
	}
}
