package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the Prometheus observability primitives for the licensing
// back office.
type Metrics struct {
	registry        *prometheus.Registry
	apiRequests     *prometheus.CounterVec
	licensesIssued  *prometheus.CounterVec
	licenseFailures *prometheus.CounterVec
}

// NewMetrics registers and returns the application metrics. The metrics own
// their registry so the /metrics handler serves exactly these series plus
// the process and Go collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "licentia_api_requests_total",
		Help: "Counts API requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	licensesIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "licentia_licenses_issued_total",
		Help: "Licenses issued by product prefix.",
	}, []string{"prefix"})

	licenseFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "licentia_license_issuance_failures_total",
		Help: "Failed issuance attempts by error kind.",
	}, []string{"kind"})

	registry.MustRegister(
		apiRequests,
		licensesIssued,
		licenseFailures,
	)

	return &Metrics{
		registry:        registry,
		apiRequests:     apiRequests,
		licensesIssued:  licensesIssued,
		licenseFailures: licenseFailures,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAPIRequest records one handled request.
func (m *Metrics) ObserveAPIRequest(method, route string, status string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(sanitizeLabel(method), sanitizeLabel(route), status).Inc()
}

// ObserveLicenseIssued records a committed issuance.
func (m *Metrics) ObserveLicenseIssued(prefix string) {
	if m == nil {
		return
	}
	m.licensesIssued.WithLabelValues(sanitizeLabel(prefix)).Inc()
}

// ObserveLicenseFailure records a rejected or failed issuance by error kind.
func (m *Metrics) ObserveLicenseFailure(kind string) {
	if m == nil {
		return
	}
	m.licenseFailures.WithLabelValues(sanitizeLabel(kind)).Inc()
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
