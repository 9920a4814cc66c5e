package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	engineDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
	bodySizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576}
	rowCountBuckets       = []float64{0, 1, 5, 10, 25, 50, 100}
)

// Form submission outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeReplayed = "replayed"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metric instruments of the dashboard.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Table engine
	TableQueriesTotal  *prometheus.CounterVec
	TableQueryDuration *prometheus.HistogramVec
	TableRowsMatched   *prometheus.HistogramVec
	RowActionsTotal    *prometheus.CounterVec

	// Form engine
	DialogsOpenedTotal     *prometheus.CounterVec
	FormSubmissionsTotal   *prometheus.CounterVec
	FormValidationFailures *prometheus.CounterVec

	// Sessions
	LoginsTotal    *prometheus.CounterVec
	ActiveSessions prometheus.Gauge

	// Stores and definitions
	StoreRecords      *prometheus.GaugeVec
	DefinitionsLoaded prometheus.Gauge

	// Cache
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter

	// Search
	SearchDuration         prometheus.Histogram
	SearchSectionsTotal    *prometheus.CounterVec
	SearchSectionsDuration *prometheus.HistogramVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repairdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repairdesk_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		TableQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_table_queries_total",
			Help: "Table views derived, by interaction that triggered them.",
		}, []string{"section", "interaction"}),
		TableQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repairdesk_table_query_duration_seconds",
			Help:    "Time to search, filter, sort and paginate a section.",
			Buckets: engineDurationBuckets,
		}, []string{"section"}),
		TableRowsMatched: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repairdesk_table_rows_matched",
			Help:    "Rows left after search and filters.",
			Buckets: rowCountBuckets,
		}, []string{"section"}),
		RowActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_row_actions_total",
			Help: "Row clicks and row or toolbar actions dispatched.",
		}, []string{"section", "action", "status"}),

		DialogsOpenedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_dialogs_opened_total",
			Help: "Record dialogs opened.",
		}, []string{"section", "mode"}),
		FormSubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_form_submissions_total",
			Help: "Form submissions by outcome.",
		}, []string{"section", "mode", "outcome"}),
		FormValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_form_validation_failures_total",
			Help: "Field errors reported by rejected submissions.",
		}, []string{"section", "field", "code"}),

		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "repairdesk_active_sessions",
			Help: "Sessions with a live workspace.",
		}),

		StoreRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "repairdesk_store_records",
			Help: "Records held by each section store.",
		}, []string{"section"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "repairdesk_definitions_loaded",
			Help: "Number of loaded section definitions.",
		}),

		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repairdesk_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repairdesk_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repairdesk_search_duration_seconds",
			Help:    "Global search duration in seconds.",
			Buckets: engineDurationBuckets,
		}),
		SearchSectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repairdesk_search_sections_total",
			Help: "Per-section searches by status.",
		}, []string{"section", "status"}),
		SearchSectionsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repairdesk_search_section_duration_seconds",
			Help:    "Per-section search duration in seconds.",
			Buckets: engineDurationBuckets,
		}, []string{"section"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		m.TableQueriesTotal,
		m.TableQueryDuration,
		m.TableRowsMatched,
		m.RowActionsTotal,
		m.DialogsOpenedTotal,
		m.FormSubmissionsTotal,
		m.FormValidationFailures,
		m.LoginsTotal,
		m.ActiveSessions,
		m.StoreRecords,
		m.DefinitionsLoaded,
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		m.SearchDuration,
		m.SearchSectionsTotal,
		m.SearchSectionsDuration,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordTableQuery records one derived table page.
func (m *Metrics) RecordTableQuery(section, interaction string, matched int, duration time.Duration) {
	m.TableQueriesTotal.WithLabelValues(section, interaction).Inc()
	m.TableQueryDuration.WithLabelValues(section).Observe(duration.Seconds())
	m.TableRowsMatched.WithLabelValues(section).Observe(float64(matched))
}

// RecordRowAction records a dispatched row or toolbar action.
func (m *Metrics) RecordRowAction(section, action string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RowActionsTotal.WithLabelValues(section, action, status).Inc()
}

// RecordDialogOpened records an opened record dialog.
func (m *Metrics) RecordDialogOpened(section, mode string) {
	m.DialogsOpenedTotal.WithLabelValues(section, mode).Inc()
}

// RecordFormSubmission records a submission outcome.
func (m *Metrics) RecordFormSubmission(section, mode, outcome string) {
	m.FormSubmissionsTotal.WithLabelValues(section, mode, outcome).Inc()
}

// RecordValidationFailure records one field error of a rejected submission.
func (m *Metrics) RecordValidationFailure(section, field, code string) {
	m.FormValidationFailures.WithLabelValues(section, field, code).Inc()
}

// RecordLogin records a login attempt.
func (m *Metrics) RecordLogin(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// SetActiveSessions sets the number of live sessions.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// SetStoreRecords sets the record count of a section store.
func (m *Metrics) SetStoreRecords(section string, n int) {
	m.StoreRecords.WithLabelValues(section).Set(float64(n))
}

// SetDefinitionsLoaded sets the number of loaded definitions.
func (m *Metrics) SetDefinitionsLoaded(count int) {
	m.DefinitionsLoaded.Set(float64(count))
}

// RecordCapabilityCache records a capability cache lookup.
func (m *Metrics) RecordCapabilityCache(hit bool) {
	if hit {
		m.CapabilityCacheHitsTotal.Inc()
		return
	}
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordSearch records a whole global search.
func (m *Metrics) RecordSearch(duration time.Duration) {
	m.SearchDuration.Observe(duration.Seconds())
}

// RecordSearchSection records the search of one section. Its signature
// matches search.Observer.
func (m *Metrics) RecordSearchSection(section, status string, duration time.Duration) {
	m.SearchSectionsTotal.WithLabelValues(section, status).Inc()
	m.SearchSectionsDuration.WithLabelValues(section).Observe(duration.Seconds())
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), statusOf(ww), time.Since(start), ww.BytesWritten())
	})
}

// Handler returns the Prometheus HTTP handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}
