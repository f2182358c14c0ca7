package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Installation metrics
	InstallsTotal        *prometheus.CounterVec
	InstallDuration      prometheus.Histogram
	ConnectorsRegistered *prometheus.GaugeVec
	NLPApplicationsTotal *prometheus.CounterVec

	// Dispatch metrics
	DispatchTotal           *prometheus.CounterVec
	DispatchDurationSeconds *prometheus.HistogramVec
	ContractViolationsTotal *prometheus.CounterVec

	// NLP metrics
	NLPParseTotal    *prometheus.CounterVec
	NLPParseDuration *prometheus.HistogramVec

	// Admin talk metrics
	TalkRequestsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec

	// Singleflight metrics
	SingleflightDedupTotal *prometheus.CounterVec

	// Snapshot metrics
	SnapshotJobsTotal *prometheus.CounterVec
	SnapshotDuration  prometheus.Histogram
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		InstallsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_installs_total",
				Help: "Total number of (bot, connector) installations by connector type and status",
			},
			[]string{"connector_type", "status"}, // status: created, updated, preserved, error
		),

		InstallDuration: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "convobot_install_duration_seconds",
				Help:    "Duration of a full installAll pass",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),

		ConnectorsRegistered: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "convobot_connectors_registered",
				Help: "Number of connectors bound to the routing surface by type",
			},
			[]string{"connector_type"},
		),

		NLPApplicationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_nlp_applications_total",
				Help: "NLP application create-or-verify calls during installation by status",
			},
			[]string{"status"}, // status: success, error
		),

		DispatchTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_dispatch_total",
				Help: "Total number of dispatched events by connector type and status",
			},
			[]string{"connector_type", "status"}, // status: success, error, rate_limited
		),

		DispatchDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "convobot_dispatch_duration_seconds",
				Help:    "Event processing duration in seconds by connector type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"connector_type"},
		),

		ContractViolationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_story_contract_violations_total",
				Help: "Dispatches that finished without a terminal action, by bot and story",
			},
			[]string{"bot", "story"},
		),

		NLPParseTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_nlp_parse_total",
				Help: "Intent parses by resolution source and status",
			},
			[]string{"source", "status"}, // source: sentence, classifier, fallback
		),

		NLPParseDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "convobot_nlp_parse_duration_seconds",
				Help:    "Intent parse duration in seconds by resolution source",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"source"},
		),

		TalkRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_talk_requests_total",
				Help: "Admin talk requests by status",
			},
			[]string{"status"}, // status: success, degraded
		),

		HTTPErrorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"}, // error_type: invalid_signature, bad_request, not_ready, etc.
		),

		RateLimiterDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: user
		),

		SingleflightDedupTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"},
		),

		SnapshotJobsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "convobot_snapshot_jobs_total",
				Help: "Snapshot uploads and restores by operation and status",
			},
			[]string{"operation", "status"}, // operation: upload, restore
		),

		SnapshotDuration: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "convobot_snapshot_duration_seconds",
				Help:    "Snapshot upload duration",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
	}

	return m
}

// RecordInstall records one (bot, connector) installation outcome
func (m *Metrics) RecordInstall(connectorType, status string) {
	m.InstallsTotal.WithLabelValues(connectorType, status).Inc()
}

// RecordInstallDuration records the duration of a full installation pass
func (m *Metrics) RecordInstallDuration(duration float64) {
	m.InstallDuration.Observe(duration)
}

// RecordConnectorRegistered increments the registered connector gauge
func (m *Metrics) RecordConnectorRegistered(connectorType string) {
	m.ConnectorsRegistered.WithLabelValues(connectorType).Inc()
}

// RecordNLPApplication records a create-or-verify call for an NLP application
func (m *Metrics) RecordNLPApplication(status string) {
	m.NLPApplicationsTotal.WithLabelValues(status).Inc()
}

// RecordDispatch records a dispatched event
func (m *Metrics) RecordDispatch(connectorType, status string, duration float64) {
	m.DispatchTotal.WithLabelValues(connectorType, status).Inc()
	m.DispatchDurationSeconds.WithLabelValues(connectorType).Observe(duration)
}

// RecordContractViolation records a dispatch that ended without a terminal action
func (m *Metrics) RecordContractViolation(bot, story string) {
	m.ContractViolationsTotal.WithLabelValues(bot, story).Inc()
}

// RecordNLPParse records an intent parse
func (m *Metrics) RecordNLPParse(source, status string, duration float64) {
	m.NLPParseTotal.WithLabelValues(source, status).Inc()
	m.NLPParseDuration.WithLabelValues(source).Observe(duration)
}

// RecordTalk records an admin talk request
func (m *Metrics) RecordTalk(status string) {
	m.TalkRequestsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(module string) {
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordSnapshot records a snapshot job
func (m *Metrics) RecordSnapshot(operation, status string, duration float64) {
	m.SnapshotJobsTotal.WithLabelValues(operation, status).Inc()
	if operation == "upload" {
		m.SnapshotDuration.Observe(duration)
	}
}
