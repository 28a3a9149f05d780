package observability

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for studiokit
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestSize      *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Filter metrics
	filterValidationsTotal *prometheus.CounterVec
	filterNormalizeTotal   *prometheus.CounterVec

	// SQL metrics
	sqlParsesTotal        *prometheus.CounterVec
	sqlIdentifiersTotal   prometheus.Counter
	sqlQuotingIssuesTotal prometheus.Counter

	// Sanitizer metrics
	sanitizeRequestsTotal prometheus.Counter
	sanitizeRedactions    prometheus.Counter
	sanitizeTruncations   prometheus.Counter
	sanitizeCircular      prometheus.Counter

	// Database metrics
	dbQueriesTotal     *prometheus.CounterVec
	dbQueryDuration    *prometheus.HistogramVec
	dbConnections      prometheus.Gauge
	dbConnectionsIdle  prometheus.Gauge
	dbConnectionsMax   prometheus.Gauge
	schemaRefreshTotal *prometheus.CounterVec
	schemaCachedTables prometheus.Gauge

	// Rate limiting metrics
	rateLimitHitsTotal *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		gatherer: reg,

		// HTTP metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiokit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studiokit_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studiokit_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "studiokit_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Filter metrics
		filterValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiokit_filter_validations_total",
				Help: "Total number of filter group validations",
			},
			[]string{"result"},
		),
		filterNormalizeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiokit_filter_normalizations_total",
				Help: "Total number of filter group normalizations",
			},
			[]string{"kind", "result"},
		),

		// SQL metrics
		sqlParsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiokit_sql_parses_total",
				Help: "Total number of SQL statements parsed",
			},
			[]string{"result"},
		),
		sqlIdentifiersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studiokit_sql_identifiers_total",
				Help: "Total number of identifiers extracted from parsed SQL",
			},
		),
		sqlQuotingIssuesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studiokit_sql_quoting_issues_total",
				Help: "Total number of unquoted identifiers reported",
			},
		),

		// Sanitizer metrics
		sanitizeRequestsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studiokit_sanitize_requests_total",
				Help: "Total number of sanitize calls",
			},
		),
		sanitizeRedactions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studiokit_sanitize_redactions_total",
				Help: "Total number of values redacted",
			},
		),
		sanitizeTruncations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studiokit_sanitize_truncations_total",
				Help: "Total number of containers replaced by the truncation notice",
			},
		),
		sanitizeCircular: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studiokit_sanitize_circular_total",
				Help: "Total number of repeated references replaced by the circular marker",
			},
		),

		// Database metrics
		dbQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiokit_db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "status"},
		),
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studiokit_db_query_duration_seconds",
				Help:    "Database query latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		dbConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "studiokit_db_connections",
				Help: "Current number of database connections",
			},
		),
		dbConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "studiokit_db_connections_idle",
				Help: "Current number of idle database connections",
			},
		),
		dbConnectionsMax: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "studiokit_db_connections_max",
				Help: "Maximum number of database connections",
			},
		),
		schemaRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiokit_schema_cache_refresh_total",
				Help: "Total number of schema cache refreshes",
			},
			[]string{"result"},
		),
		schemaCachedTables: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "studiokit_schema_cache_tables",
				Help: "Number of tables held in the schema cache",
			},
		),

		// Rate limiting metrics
		rateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiokit_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limiter_type"},
		),

		// System metrics
		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "studiokit_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}

	return m
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		requestSize := len(c.Body())
		method := c.Method()

		err := c.Next()

		// Route path is only known after routing
		path := normalizePath(c.Route().Path)
		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		m.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))

		return err
	}
}

// RecordFilterValidation records the outcome of a filter group validation
func (m *Metrics) RecordFilterValidation(valid bool) {
	m.filterValidationsTotal.WithLabelValues(resultLabel(valid)).Inc()
}

// RecordFilterNormalize records a rewrite of the given kind
// ("enforce_and", "generated" or "edit")
func (m *Metrics) RecordFilterNormalize(kind string, err error) {
	m.filterNormalizeTotal.WithLabelValues(kind, resultLabel(err == nil)).Inc()
}

// RecordSQLParse records a parse attempt and the number of identifiers found
func (m *Metrics) RecordSQLParse(identifiers int, err error) {
	m.sqlParsesTotal.WithLabelValues(resultLabel(err == nil)).Inc()
	if err == nil {
		m.sqlIdentifiersTotal.Add(float64(identifiers))
	}
}

// RecordQuotingIssues records unquoted identifiers reported by a quoting check
func (m *Metrics) RecordQuotingIssues(n int) {
	m.sqlQuotingIssuesTotal.Add(float64(n))
}

// RecordSanitize records one sanitize call with its redaction counters
func (m *Metrics) RecordSanitize(redactions, truncations, circular int) {
	m.sanitizeRequestsTotal.Inc()
	m.sanitizeRedactions.Add(float64(redactions))
	m.sanitizeTruncations.Add(float64(truncations))
	m.sanitizeCircular.Add(float64(circular))
}

// RecordDBQuery records database query metrics
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration, err error) {
	m.dbQueriesTotal.WithLabelValues(operation, resultLabel(err == nil)).Inc()
	m.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBStats updates database connection pool stats
func (m *Metrics) UpdateDBStats(total, idle, max int32) {
	m.dbConnections.Set(float64(total))
	m.dbConnectionsIdle.Set(float64(idle))
	m.dbConnectionsMax.Set(float64(max))
}

// RecordSchemaRefresh records a schema cache refresh and the resulting size
func (m *Metrics) RecordSchemaRefresh(tables int, err error) {
	m.schemaRefreshTotal.WithLabelValues(resultLabel(err == nil)).Inc()
	if err == nil {
		m.schemaCachedTables.Set(float64(tables))
	}
}

// RecordRateLimitHit records a rate limit hit
func (m *Metrics) RecordRateLimitHit(limiterType string) {
	m.rateLimitHitsTotal.WithLabelValues(limiterType).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// normalizePath keeps label cardinality bounded
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	if len(path) > 80 {
		return "long_path"
	}
	if len(path) > 1 {
		return strings.TrimSuffix(path, "/")
	}
	return path
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
