package server

import (
	"github.com/gravito-framework/sysdash/pkg/sampler"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "sysdash"

// newRegistry exposes the sampler's published values. Every metric reads
// the source at scrape time, so nothing is updated on the sampling path.
func newRegistry(source Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "cpu_load_ratio",
			Help:      "Fraction of non-idle CPU time during the last sample period.",
		}, func() float64 {
			return source.Snapshot().CPULoad
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "memory_usage_ratio",
			Help:      "Fraction of physical memory in use.",
		}, func() float64 {
			return source.Snapshot().MemoryUsage
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "memory_total_bytes",
			Help:      "Total physical memory reported by the host.",
		}, func() float64 {
			return float64(source.Snapshot().MemoryTotal)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sampler_running",
			Help:      "1 while the sampler is running.",
		}, func() float64 {
			if source.State() == sampler.StateRunning {
				return 1
			}
			return 0
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "samples_published_total",
			Help:      "Sampling ticks that published a snapshot.",
		}, func() float64 {
			return float64(source.Stats().Published)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "probe_failures_total",
			Help:      "Sampling ticks skipped because the probe failed.",
		}, func() float64 {
			return float64(source.Stats().Failures)
		}),
	)

	return reg
}
