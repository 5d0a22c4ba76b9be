// Package observability collects Prometheus metrics for the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus registry and application metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	syncRuns           *prometheus.CounterVec
	warehousesReplaced prometheus.Counter
	exportDestinations *prometheus.CounterVec
	exportedRows       prometheus.Counter
}

// NewMetrics initializes the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "boxtariffs_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boxtariffs_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "boxtariffs_sync_runs_total",
		Help: "Tariff sync runs by result.",
	}, []string{"result"})
	warehouses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boxtariffs_warehouses_replaced_total",
		Help: "Warehouse rows written by the atomic per-date replace.",
	})
	destinations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "boxtariffs_export_destinations_total",
		Help: "Per-destination export outcomes.",
	}, []string{"status"})
	exportedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "boxtariffs_exported_rows_total",
		Help: "Rows handed to the spreadsheet exporter.",
	})
	registry.MustRegister(requests, duration, syncRuns, warehouses, destinations, exportedRows)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		syncRuns:           syncRuns,
		warehousesReplaced: warehouses,
		exportDestinations: destinations,
		exportedRows:       exportedRows,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveSyncRun records one sync run outcome.
func (m *Metrics) ObserveSyncRun(result string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result).Inc()
}

// AddWarehousesReplaced records warehouse rows written during a sync.
func (m *Metrics) AddWarehousesReplaced(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.warehousesReplaced.Add(float64(count))
}

// ObserveExport records the per-destination outcomes and row volume of an
// export run.
func (m *Metrics) ObserveExport(exported, failed, rows int) {
	if m == nil {
		return
	}
	if exported > 0 {
		m.exportDestinations.WithLabelValues("ok").Add(float64(exported))
	}
	if failed > 0 {
		m.exportDestinations.WithLabelValues("failed").Add(float64(failed))
	}
	if rows > 0 {
		m.exportedRows.Add(float64(rows))
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
