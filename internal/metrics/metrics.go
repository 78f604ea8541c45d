// Package metrics exposes Prometheus collectors for calculations and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskengine"

// Calculation outcomes
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Registry owns the collectors on a private prometheus registry
type Registry struct {
	reg *prometheus.Registry

	calculations   *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	simulatedPaths prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	historyLookups *prometheus.CounterVec
	violations     prometheus.Counter
}

// NewRegistry creates the collectors. Process and Go runtime collectors are included.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		calculations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Risk and optimization calculations by operation, method and outcome",
		}, []string{"operation", "method", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "Duration of risk and optimization calculations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "method"}),
		simulatedPaths: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_paths_total",
			Help:      "Monte Carlo paths simulated",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		historyLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_lookups_total",
			Help:      "Return history lookups by source and result",
		}, []string{"source", "result"}),
		violations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtest_violations_total",
			Help:      "VaR violations observed by backtests",
		}),
	}
}

// ObserveCalculation records one calculation outcome
func (r *Registry) ObserveCalculation(operation, method string, d time.Duration, err error) {
	if r == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	r.calculations.WithLabelValues(operation, method, status).Inc()
	r.duration.WithLabelValues(operation, method).Observe(d.Seconds())
}

// AddSimulatedPaths counts Monte Carlo paths
func (r *Registry) AddSimulatedPaths(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.simulatedPaths.Add(float64(n))
}

// AddViolations counts backtest violations
func (r *Registry) AddViolations(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.violations.Add(float64(n))
}

// ObserveHistory records a history lookup, e.g. source "cache" with result "hit"
func (r *Registry) ObserveHistory(source, result string) {
	if r == nil {
		return
	}
	r.historyLookups.WithLabelValues(source, result).Inc()
}

// Middleware records request counts and latency per matched route
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
