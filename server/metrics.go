package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	faults     *prometheus.GaugeVec
	stressRuns prometheus.Histogram
	handler    http.Handler
}

// Each Server owns its registry so that several can live in one test binary.
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "canary",
			Name:      "http_requests_total",
			Help:      "Completed requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "canary",
			Name:      "http_request_duration_seconds",
			Help:      "Time spent handling completed requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		faults: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "canary",
			Name:      "faults_active",
			Help:      "Fault injections currently running, by kind.",
		}, []string{"kind"}),
		stressRuns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "canary",
			Name:      "stress_test_seconds",
			Help:      "Duration of completed bounded stress runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.faults,
		m.stressRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

func (m *metrics) observe(route, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
