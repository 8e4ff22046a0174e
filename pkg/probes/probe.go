// Package probes provides the hardware probe interface the sampler reads from.
package probes

import (
	"context"
	"errors"

	"github.com/gravito-framework/sysdash/pkg/types"
)

// ErrProbeUnavailable is returned (wrapped) when the host refuses or fails
// to report CPU ticks or memory totals.
var ErrProbeUnavailable = errors.New("probe unavailable")

// Probe reads raw counters from the host.
// Implementations must be cheap and side-effect free.
type Probe interface {
	// ReadCPUTicks returns cumulative per-mode CPU counters
	ReadCPUTicks(ctx context.Context) (types.TickSnapshot, error)

	// ReadMemory returns total and available physical memory in bytes
	ReadMemory(ctx context.Context) (total, available uint64, err error)
}
