// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/tendril/internal/simulation"
)

// Namespace prefixes every metric name.
const Namespace = "tendril"

// Collector holds the simulation metrics on its own registry so that several
// drivers (and tests) never collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	Ticks      *prometheus.CounterVec
	Phase      prometheus.Gauge
	Error      prometheus.Gauge
	Score      prometheus.Gauge
	IOSent     prometheus.Gauge
	MeanWeight prometheus.Gauge
	Moved      prometheus.Counter
	Flipped    prometheus.Counter
	StepTime   prometheus.Histogram
	Reloads    *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "ticks_total",
				Help:      "Total number of ticks completed, by phase",
			},
			[]string{"phase"},
		),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "phase",
			Help:      "Phase of the last completed tick (0 predict, 1 slope, 2 learn, 3 repredict, 4 reset)",
		}),
		Error: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "output_error",
			Help:      "Mean squared output error of the last corrected tick",
		}),
		Score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "amplifier_score",
			Help:      "Amplifier score of the last corrected tick",
		}),
		IOSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "io_sent",
			Help:      "Weight redistributed onto the outputs by the last correction",
		}),
		MeanWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "mean_weight",
			Help:      "Mean flow weight after the last tick",
		}),
		Moved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "moved_total",
			Help:      "Total magnitude moved by transfers",
		}),
		Flipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "flows_flipped_total",
			Help:      "Total number of flow reversals",
		}),
		StepTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of one tick",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		Reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "program_reloads_total",
				Help:      "Total number of program reloads",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		c.Ticks,
		c.Phase,
		c.Error,
		c.Score,
		c.IOSent,
		c.MeanWeight,
		c.Moved,
		c.Flipped,
		c.StepTime,
		c.Reloads,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveTick records one tick report. Error gauges only move on ticks that
// ran the output correction. A nil collector ignores the call.
func (c *Collector) ObserveTick(r simulation.TickReport, seconds float64) {
	if c == nil {
		return
	}
	c.Ticks.WithLabelValues(r.Phase.String()).Inc()
	c.Phase.Set(float64(r.Phase))
	c.MeanWeight.Set(r.MeanWeight)
	c.Moved.Add(r.Moved)
	c.Flipped.Add(float64(r.Flipped))
	c.StepTime.Observe(seconds)
	if r.Outputs != nil {
		c.Error.Set(r.Error)
		c.Score.Set(r.Score)
		c.IOSent.Set(r.IOSent)
	}
}

// ObserveReload counts a program reload attempt.
func (c *Collector) ObserveReload(err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Reloads.WithLabelValues(status).Inc()
}
