package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus metrics the pipeline exposes.
type Registry struct {
	TickDuration      prometheus.Histogram
	TicksTotal        prometheus.Counter
	TickErrors        prometheus.Counter
	UnitsProcessed    prometheus.Counter
	StageErrors       *prometheus.CounterVec
	StageTimeouts     *prometheus.CounterVec
	InsightsEmitted   *prometheus.CounterVec
	PersistFailures   prometheus.Counter
	ClustersPublished prometheus.Counter
	ActiveUnits       prometheus.Gauge
	SchedulerRunning  prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates and registers all pipeline metrics.
func NewRegistry() *Registry {
	r := &Registry{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verdant_tick_duration_seconds",
			Help:    "Duration of each monitoring tick in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdant_ticks_total",
			Help: "Completed monitoring ticks",
		}),
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdant_tick_errors_total",
			Help: "Errors recorded across all ticks",
		}),
		UnitsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdant_units_processed_total",
			Help: "Units evaluated across all ticks",
		}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verdant_stage_errors_total",
			Help: "Analysis stage failures by stage",
		}, []string{"stage"}),
		StageTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verdant_stage_timeouts_total",
			Help: "Analysis stage timeouts by stage",
		}, []string{"stage"}),
		InsightsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verdant_insights_emitted_total",
			Help: "Insights persisted by type",
		}, []string{"type"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdant_insight_persist_failures_total",
			Help: "Insight candidates that could not be written",
		}),
		ClustersPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdant_clusters_published_total",
			Help: "Alert clusters handed to the notification channel",
		}),
		ActiveUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verdant_active_units",
			Help: "Units in the most recent tick snapshot",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verdant_scheduler_running",
			Help: "1 while the monitoring loop is running",
		}),
		registry: prometheus.NewRegistry(),
	}

	r.registry.MustRegister(
		r.TickDuration, r.TicksTotal, r.TickErrors, r.UnitsProcessed,
		r.StageErrors, r.StageTimeouts, r.InsightsEmitted,
		r.PersistFailures, r.ClustersPublished, r.ActiveUnits,
		r.SchedulerRunning,
	)
	return r
}

// Handler serves the exposition endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
