package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the kernel's Prometheus collectors.
type Metrics struct {
	Syscalls   *prometheus.CounterVec
	Faults     prometheus.Counter
	FreeFrames prometheus.Gauge
	EnvsLive   prometheus.Gauge
	IpcSends   *prometheus.CounterVec

	Registry *prometheus.Registry
}

// NewMetrics registers the kernel collectors on reg, or on a private
// registry if reg is nil so several kernels can coexist in one process.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Syscalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exocorn_syscalls_total",
				Help: "Syscalls handled, by name and result",
			},
			[]string{"syscall", "result"},
		),
		Faults: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "exocorn_user_faults_total",
				Help: "Environments killed for bad memory accesses",
			},
		),
		FreeFrames: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "exocorn_free_frames",
				Help: "Physical frames on the free list",
			},
		),
		EnvsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "exocorn_envs_live",
				Help: "Allocated environments",
			},
		),
		IpcSends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exocorn_ipc_sends_total",
				Help: "Completed ipc sends, by whether a page was transferred",
			},
			[]string{"page"},
		),
	}
}
