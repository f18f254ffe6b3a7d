// Package metrics provides Prometheus metrics for authentication operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for authentication operations.
type Metrics struct {
	enabled bool

	// Token lifecycle metrics
	exchangesTotal *prometheus.CounterVec
	refreshesTotal *prometheus.CounterVec

	// Authorization metrics
	authzDecisionsTotal *prometheus.CounterVec
	authzCheckDuration  prometheus.Histogram

	// Feature flag metrics
	flagEvaluationsTotal *prometheus.CounterVec

	// Token store metrics
	storeChannelFailures *prometheus.CounterVec

	// Cache metrics
	cacheHitsTotal *prometheus.CounterVec
	cacheMissTotal *prometheus.CounterVec
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	m.exchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_token_exchanges_total",
		Help: "Total authorization code exchanges",
	}, []string{"result"})

	m.refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_token_refreshes_total",
		Help: "Total session refresh attempts",
	}, []string{"result"})

	m.authzDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_authz_decisions_total",
		Help: "Total authorization decisions",
	}, []string{"result", "reason"})

	m.authzCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "authkit_authz_check_duration_seconds",
		Help:    "Authorization check duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.flagEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_flag_evaluations_total",
		Help: "Total feature flag evaluations",
	}, []string{"reason"})

	m.storeChannelFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_store_channel_failures_total",
		Help: "Total token store channel failures",
	}, []string{"channel"})

	m.cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_cache_hits_total",
		Help: "Total cache hits",
	}, []string{"cache_type"})

	m.cacheMissTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authkit_cache_misses_total",
		Help: "Total cache misses",
	}, []string{"cache_type"})

	return m
}

// RecordExchange records a code exchange outcome ("success", "invalid_code",
// "rate_limited", "timeout", "error").
func (m *Metrics) RecordExchange(result string) {
	if !m.enabled {
		return
	}
	m.exchangesTotal.WithLabelValues(result).Inc()
}

// RecordRefresh records a session refresh outcome ("success", "failure").
func (m *Metrics) RecordRefresh(result string) {
	if !m.enabled {
		return
	}
	m.refreshesTotal.WithLabelValues(result).Inc()
}

// RecordAuthzDecision records an authorization decision.
func (m *Metrics) RecordAuthzDecision(allowed bool, reason string, durationSeconds float64) {
	if !m.enabled {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
		reason = ""
	}
	m.authzDecisionsTotal.WithLabelValues(result, reason).Inc()
	m.authzCheckDuration.Observe(durationSeconds)
}

// RecordFlagEvaluation records a feature flag evaluation by reason.
func (m *Metrics) RecordFlagEvaluation(reason string) {
	if !m.enabled {
		return
	}
	m.flagEvaluationsTotal.WithLabelValues(reason).Inc()
}

// RecordChannelFailure records a token store channel failure.
func (m *Metrics) RecordChannelFailure(channel string) {
	if !m.enabled {
		return
	}
	m.storeChannelFailures.WithLabelValues(channel).Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	if !m.enabled {
		return
	}
	m.cacheHitsTotal.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if !m.enabled {
		return
	}
	m.cacheMissTotal.WithLabelValues(cacheType).Inc()
}
