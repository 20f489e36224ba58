// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "datenorm"

// Metrics is a self-contained registry so tests can build as many as they
// like without clashing on the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	decodeTime   *prometheus.HistogramVec
	decodeSteps  prometheus.Histogram
	inputChars   prometheus.Histogram
	reloads      *prometheus.CounterVec
	modelLoadsAt prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		decodeTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decode_duration_seconds",
				Help:      "Wall time of one encode plus greedy decode.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"stop_reason"},
		),
		decodeSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_steps",
			Help:      "Decoder steps per request.",
			Buckets:   prometheus.LinearBuckets(1, 1, 16),
		}),
		inputChars: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "input_chars",
			Help:      "Characters per input expression.",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 8),
		}),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_reloads_total",
				Help:      "Model reload attempts by result.",
			},
			[]string{"result"},
		),
		modelLoadsAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded_timestamp_seconds",
			Help:      "Unix time the serving model was loaded.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.decodeTime,
		m.decodeSteps,
		m.inputChars,
		m.reloads,
		m.modelLoadsAt,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(route string, code int) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) ObserveDecode(stopReason string, steps, inputChars int, d time.Duration) {
	m.decodeTime.WithLabelValues(stopReason).Observe(d.Seconds())
	m.decodeSteps.Observe(float64(steps))
	m.inputChars.Observe(float64(inputChars))
}

func (m *Metrics) ObserveReload(err error, loadedAt time.Time) {
	if err != nil {
		m.reloads.WithLabelValues("error").Inc()
		return
	}
	m.reloads.WithLabelValues("ok").Inc()
	m.SetLoaded(loadedAt)
}

func (m *Metrics) SetLoaded(t time.Time) {
	m.modelLoadsAt.Set(float64(t.Unix()))
}
