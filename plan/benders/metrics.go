package benders

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the driver's bound and cut series. Each driver registers them
// on its own registry, so concurrent sessions never share collectors.
type Metrics struct {
	registry   *prometheus.Registry
	lower      prometheus.Gauge
	upper      prometheus.Gauge
	gap        prometheus.Gauge
	iterations prometheus.Counter
	cuts       *prometheus.CounterVec
	solves     *prometheus.HistogramVec
}

func newMetrics(session string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := prometheus.Labels{"session": session}
	return &Metrics{
		registry: reg,
		lower: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridplan", Subsystem: "benders", Name: "lower_bound",
			Help: "Best lower bound on the total cost.", ConstLabels: labels,
		}),
		upper: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridplan", Subsystem: "benders", Name: "upper_bound",
			Help: "Best upper bound on the total cost.", ConstLabels: labels,
		}),
		gap: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridplan", Subsystem: "benders", Name: "gap",
			Help: "Upper minus lower bound.", ConstLabels: labels,
		}),
		iterations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gridplan", Subsystem: "benders", Name: "iterations_total",
			Help: "Completed decomposition iterations.", ConstLabels: labels,
		}),
		cuts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridplan", Subsystem: "benders", Name: "cuts_total",
			Help: "Cuts added to the master, by kind.", ConstLabels: labels,
		}, []string{"kind"}),
		solves: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gridplan", Subsystem: "benders", Name: "solve_seconds",
			Help:    "Wall time of solver calls, by problem scope.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), ConstLabels: labels,
		}, []string{"scope"}),
	}
}

// Registry returns the registry the driver's collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) bounds(lower, upper float64) {
	m.lower.Set(lower)
	m.upper.Set(upper)
	m.gap.Set(upper - lower)
}

func (m *Metrics) cut(k CutKind) { m.cuts.WithLabelValues(k.String()).Inc() }

func (m *Metrics) solve(scope string, d time.Duration) {
	m.solves.WithLabelValues(scope).Observe(d.Seconds())
}
