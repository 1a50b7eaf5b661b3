// Package probe reports accelerator memory usage.
package probe

import (
	"context"
	"math"
	"sync/atomic"

	"asistan/pkg/types"
)

// Probe reports current accelerator memory usage in GB. Implementations never
// fail: when the monitoring source is unavailable they return 0.
type Probe interface {
	CurrentUsage(ctx context.Context) float64
}

// Informer is implemented by probes that can also report totals.
type Informer interface {
	Info(ctx context.Context) types.ProbeInfo
}

// Static always reports the same usage. Useful on CPU-only hosts.
type Static float64

func (s Static) CurrentUsage(context.Context) float64 { return float64(s) }

// Func adapts a function to Probe.
type Func func(ctx context.Context) float64

func (f Func) CurrentUsage(ctx context.Context) float64 { return f(ctx) }

// Info returns what a probe can tell about memory, falling back to a
// usage-only view when it does not implement Informer.
func Info(ctx context.Context, p Probe) types.ProbeInfo {
	if p == nil {
		return types.ProbeInfo{}
	}
	if in, ok := p.(Informer); ok {
		return in.Info(ctx)
	}
	return types.ProbeInfo{UsedGB: p.CurrentUsage(ctx)}
}

// Counter is a Probe whose usage is set explicitly. Safe for concurrent use.
type Counter struct {
	bits atomic.Uint64
}

func (c *Counter) Set(gb float64) { c.bits.Store(math.Float64bits(gb)) }

func (c *Counter) CurrentUsage(context.Context) float64 { return math.Float64frombits(c.bits.Load()) }
