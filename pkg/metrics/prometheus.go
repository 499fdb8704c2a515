// Package metrics provides Prometheus metrics for the encore bid engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Ledger metrics
	creditsApplied   *prometheus.CounterVec
	debitsApplied    prometheus.Counter
	tokensCredited   prometheus.Counter
	tokensSpent      prometheus.Counter
	ledgerOpLatency  *prometheus.HistogramVec
	ledgerOpErrors   *prometheus.CounterVec
	frozenAccounts   prometheus.Gauge
	reconcileFailues prometheus.Counter

	// Bid resolution metrics
	bidsPlaced        prometheus.Counter
	bidsRejected      *prometheus.CounterVec
	bidsDuplicate     prometheus.Counter
	bidCompensations  prometheus.Counter
	bidLatency        prometheus.Histogram
	aggregatesTracked prometheus.Gauge

	// Notifier metrics
	notifySubscribers prometheus.Gauge
	notifyPublished   prometheus.Counter
	notifyDelivered   prometheus.Counter
	notifyDropped     prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// defaultManager is the package-level manager used by the helper functions.
var defaultManager *Manager

func init() { //nolint:gochecknoinits // global metrics setup mirrors process lifetime
	defaultManager = NewManager()
}

// NewManager creates a metrics manager and registers all collectors on its
// own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "encore",
		subsystem:        "engine",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.creditsApplied = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "credits_applied_total",
		Help: "Balance credits applied, by reason code.",
	}, []string{"reason"})

	m.debitsApplied = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "debits_applied_total",
		Help: "Balance debits applied.",
	})

	m.tokensCredited = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "tokens_credited_total",
		Help: "Total tokens credited across all accounts.",
	})

	m.tokensSpent = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "tokens_spent_total",
		Help: "Total tokens debited across all accounts.",
	})

	m.ledgerOpLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "store_op_latency_ms",
		Help:    "Latency of store operations in milliseconds.",
		Buckets: m.histogramBuckets,
	}, []string{"op"})

	m.ledgerOpErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "store_op_errors_total",
		Help: "Store operation failures, by operation.",
	}, []string{"op"})

	m.frozenAccounts = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "frozen_accounts",
		Help: "Accounts currently blocked from writes pending manual reconciliation.",
	})

	m.reconcileFailues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "reconciliation_failures_total",
		Help: "Ledger reconciliation checks that found a balance/log mismatch.",
	})

	m.bidsPlaced = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "bids_placed_total",
		Help: "Bids resolved successfully.",
	})

	m.bidsRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "bids_rejected_total",
		Help: "Bids rejected, by cause.",
	}, []string{"cause"})

	m.bidsDuplicate = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "bids_duplicate_total",
		Help: "Bid submissions suppressed by request-id deduplication.",
	})

	m.bidCompensations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "bid_compensations_total",
		Help: "Compensating credits issued after a post-debit failure.",
	})

	m.bidLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "bid_resolution_latency_ms",
		Help:    "End-to-end PlaceBid latency in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.aggregatesTracked = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "song_aggregates",
		Help: "Song aggregates currently tracked.",
	})

	m.notifySubscribers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "notify_subscribers",
		Help: "Active leaderboard subscribers across all events.",
	})

	m.notifyPublished = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "notify_published_total",
		Help: "Leaderboard deltas published.",
	})

	m.notifyDelivered = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "notify_delivered_total",
		Help: "Delta deliveries to individual subscribers.",
	})

	m.notifyDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "notify_dropped_total",
		Help: "Delta deliveries dropped because a subscriber buffer was full.",
	})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "http",
		Name: "requests_total",
		Help: "HTTP requests, by endpoint, method and status code.",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "http",
		Name:    "request_duration_ms",
		Help:    "HTTP request duration in milliseconds.",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
}

// Package-level helpers delegating to the default manager.

func RecordCredit(reason string, amount int64) {
	defaultManager.creditsApplied.WithLabelValues(reason).Inc()
	defaultManager.tokensCredited.Add(float64(amount))
}

func RecordDebit(amount int64) {
	defaultManager.debitsApplied.Inc()
	defaultManager.tokensSpent.Add(float64(amount))
}

func RecordStoreOpLatency(op string, latencyMs float64) {
	defaultManager.ledgerOpLatency.WithLabelValues(op).Observe(latencyMs)
}

func RecordStoreOpError(op string) {
	defaultManager.ledgerOpErrors.WithLabelValues(op).Inc()
}

func UpdateFrozenAccounts(count int) {
	defaultManager.frozenAccounts.Set(float64(count))
}

func RecordReconciliationFailure() {
	defaultManager.reconcileFailues.Inc()
}

func RecordBidPlaced() {
	defaultManager.bidsPlaced.Inc()
}

func RecordBidRejected(cause string) {
	defaultManager.bidsRejected.WithLabelValues(cause).Inc()
}

func RecordBidDuplicate() {
	defaultManager.bidsDuplicate.Inc()
}

func RecordBidCompensation() {
	defaultManager.bidCompensations.Inc()
}

func RecordBidLatency(latencyMs float64) {
	defaultManager.bidLatency.Observe(latencyMs)
}

func UpdateSongAggregates(count int) {
	defaultManager.aggregatesTracked.Set(float64(count))
}

func UpdateNotifySubscribers(count int) {
	defaultManager.notifySubscribers.Set(float64(count))
}

func RecordNotifyPublished() {
	defaultManager.notifyPublished.Inc()
}

func RecordNotifyDelivered(n int) {
	defaultManager.notifyDelivered.Add(float64(n))
}

func RecordNotifyDropped(n int) {
	defaultManager.notifyDropped.Add(float64(n))
}

func RecordHTTPRequest(endpoint, method, status string) {
	defaultManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, status string, durationMs float64) {
	defaultManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}

// GetRegistry returns the default manager's registry for serving /healthz.
func GetRegistry() *prometheus.Registry {
	return defaultManager.registry
}
