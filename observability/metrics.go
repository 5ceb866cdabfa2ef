package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	gateMetricsOnce sync.Once
	gateRegistry    *GateMetrics
)

// RPC returns the lazily-initialised registry recording JSON-RPC activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qugate",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qugate",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "qugate",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qugate",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter or auth checks.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records a finished request. code is the JSON-RPC error code, or
// zero on success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit" or "unauthorized".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// GateMetrics tracks gate engine outcomes and registry occupancy.
type GateMetrics struct {
	procedures *prometheus.CounterVec
	burned     *prometheus.CounterVec
	forwarded  prometheus.Counter
	expired    prometheus.Counter
	active     prometheus.Gauge
	epoch      prometheus.Gauge
}

// Gates returns the singleton gate metrics registry.
func Gates() *GateMetrics {
	gateMetricsOnce.Do(func() {
		gateRegistry = &GateMetrics{
			procedures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qugate",
				Subsystem: "gates",
				Name:      "procedures_total",
				Help:      "Gate procedures segmented by operation and resulting status.",
			}, []string{"operation", "status"}),
			burned: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "qugate",
				Subsystem: "gates",
				Name:      "burned_total",
				Help:      "Value destroyed segmented by cause (fee or dust).",
			}, []string{"cause"}),
			forwarded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "qugate",
				Subsystem: "gates",
				Name:      "forwarded_total",
				Help:      "Value forwarded from gates to recipients.",
			}),
			expired: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "qugate",
				Subsystem: "gates",
				Name:      "expired_total",
				Help:      "Gates closed by epoch expiry.",
			}),
			active: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "qugate",
				Subsystem: "gates",
				Name:      "active",
				Help:      "Number of active gates.",
			}),
			epoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "qugate",
				Subsystem: "gates",
				Name:      "epoch",
				Help:      "Current epoch as seen by the gate engine.",
			}),
		}
		prometheus.MustRegister(
			gateRegistry.procedures,
			gateRegistry.burned,
			gateRegistry.forwarded,
			gateRegistry.expired,
			gateRegistry.active,
			gateRegistry.epoch,
		)
	})
	return gateRegistry
}

// RecordProcedure counts one engine invocation.
func (m *GateMetrics) RecordProcedure(operation, status string) {
	if m == nil {
		return
	}
	m.procedures.WithLabelValues(operation, status).Inc()
}

// RecordBurn adds to the burned total for cause.
func (m *GateMetrics) RecordBurn(cause string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.burned.WithLabelValues(cause).Add(float64(amount))
}

// RecordForward adds value forwarded to recipients.
func (m *GateMetrics) RecordForward(amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.forwarded.Add(float64(amount))
}

// RecordExpired counts gates closed by expiry.
func (m *GateMetrics) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

// SetState publishes the active gate count and current epoch.
func (m *GateMetrics) SetState(active uint64, epoch uint16) {
	if m == nil {
		return
	}
	m.active.Set(float64(active))
	m.epoch.Set(float64(epoch))
}
