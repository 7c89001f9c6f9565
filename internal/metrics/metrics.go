// Package metrics exposes Prometheus counters for the HTTP surface, the
// validation gate and post mutations. A nil *Collector is a valid no-op.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	gateRejections    *prometheus.CounterVec
	postMutations     *prometheus.CounterVec
	sagaCompensations *prometheus.CounterVec
}

// New builds a collector on its own registry so that several instances can
// coexist in one process, e.g. in tests.
func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		gateRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_rejections_total",
				Help:      "Requests rejected by a validation check",
			},
			[]string{"check", "status"},
		),
		postMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "post_mutations_total",
				Help:      "Post create, update and delete operations",
			},
			[]string{"operation", "result"},
		),
		sagaCompensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saga_compensations_total",
				Help:      "Post mutations rolled back after a failed step",
			},
			[]string{"saga"},
		),
	}

	registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.gateRejections,
		c.postMutations,
		c.sagaCompensations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) GateRejected(check string, status int) {
	if c == nil {
		return
	}
	c.gateRejections.WithLabelValues(check, strconv.Itoa(status)).Inc()
}

func (c *Collector) PostMutation(operation string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.postMutations.WithLabelValues(operation, result).Inc()
}

func (c *Collector) SagaCompensated(saga string) {
	if c == nil {
		return
	}
	c.sagaCompensations.WithLabelValues(saga).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
