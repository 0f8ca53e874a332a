package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the sync service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Notification sync metrics
	snapshotsApplied        *prometheus.CounterVec
	notificationsIngested   *prometheus.CounterVec
	notificationsSuppressed *prometheus.CounterVec
	unreadCount             prometheus.Gauge

	// Settings metrics
	settingsMigrationsTotal *prometheus.CounterVec
	settingsCacheHits       prometheus.Counter
	settingsCacheMisses     prometheus.Counter

	// Push metrics
	pushSendsTotal  *prometheus.CounterVec
	tokensPersisted prometheus.Counter

	// Session metrics
	activeSessions prometheus.Gauge
}

// NewMetrics creates and registers all metrics on a dedicated registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being served",
			ConstLabels: labels,
		}),
		snapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "notification_snapshots_applied_total",
			Help:        "Total number of remote snapshots applied to local state",
			ConstLabels: labels,
		}, []string{"collection"}),
		notificationsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "notifications_ingested_total",
			Help:        "Total number of inbound notifications surfaced to local state",
			ConstLabels: labels,
		}, []string{"type"}),
		notificationsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "notifications_suppressed_total",
			Help:        "Total number of inbound notifications dropped by preference evaluation",
			ConstLabels: labels,
		}, []string{"type"}),
		unreadCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "notification_unread_count",
			Help:        "Unread notification count of the most recently synced session",
			ConstLabels: labels,
		}),
		settingsMigrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "settings_migrations_total",
			Help:        "Total number of settings schema migrations",
			ConstLabels: labels,
		}, []string{"outcome"}),
		settingsCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "settings_cache_hits_total",
			Help:        "Total number of settings cache hits",
			ConstLabels: labels,
		}),
		settingsCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "settings_cache_misses_total",
			Help:        "Total number of settings cache misses",
			ConstLabels: labels,
		}),
		pushSendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "push_sends_total",
			Help:        "Total number of push notification sends",
			ConstLabels: labels,
		}, []string{"result"}),
		tokensPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "device_tokens_persisted_total",
			Help:        "Total number of device token writes",
			ConstLabels: labels,
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "active_sessions",
			Help:        "Number of user sessions with live remote subscriptions",
			ConstLabels: labels,
		}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.snapshotsApplied,
		m.notificationsIngested,
		m.notificationsSuppressed,
		m.unreadCount,
		m.settingsMigrationsTotal,
		m.settingsCacheHits,
		m.settingsCacheMisses,
		m.pushSendsTotal,
		m.tokensPersisted,
		m.activeSessions,
	)

	return m
}

// GetRegistry returns the underlying Prometheus registry
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight request gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// RecordSnapshotApplied records a remote snapshot replacing local state
func (m *Metrics) RecordSnapshotApplied(collection string) {
	m.snapshotsApplied.WithLabelValues(collection).Inc()
}

// RecordNotificationIngested records an inbound notification surfaced locally
func (m *Metrics) RecordNotificationIngested(notificationType string) {
	m.notificationsIngested.WithLabelValues(notificationType).Inc()
}

// RecordNotificationSuppressed records an inbound notification dropped by preferences
func (m *Metrics) RecordNotificationSuppressed(notificationType string) {
	m.notificationsSuppressed.WithLabelValues(notificationType).Inc()
}

// SetUnreadCount updates the unread count gauge
func (m *Metrics) SetUnreadCount(count int) {
	m.unreadCount.Set(float64(count))
}

// RecordSettingsMigration records a migration attempt outcome ("applied", "noop", "failed")
func (m *Metrics) RecordSettingsMigration(outcome string) {
	m.settingsMigrationsTotal.WithLabelValues(outcome).Inc()
}

// RecordSettingsCacheHit records a settings cache hit
func (m *Metrics) RecordSettingsCacheHit() {
	m.settingsCacheHits.Inc()
}

// RecordSettingsCacheMiss records a settings cache miss
func (m *Metrics) RecordSettingsCacheMiss() {
	m.settingsCacheMisses.Inc()
}

// RecordPushSend records a push send outcome ("success", "failure")
func (m *Metrics) RecordPushSend(result string) {
	m.pushSendsTotal.WithLabelValues(result).Inc()
}

// RecordTokenPersisted records a device token write
func (m *Metrics) RecordTokenPersisted() {
	m.tokensPersisted.Inc()
}

// SetActiveSessions updates the live session gauge
func (m *Metrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}
