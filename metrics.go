package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint8

const (
	// MetricRegisterSuccess counts successful registrations.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterDuplicate counts duplicate-email registrations.
	MetricRegisterDuplicate
	// MetricEmailVerified counts completed email verifications.
	MetricEmailVerified
	// MetricLoginSuccess counts fully authenticated logins.
	MetricLoginSuccess
	// MetricLoginFailure counts failed credential checks.
	MetricLoginFailure
	// MetricLoginLocked counts logins rejected by lockout.
	MetricLoginLocked
	// MetricMFAChallengeIssued counts MFA step-up challenges issued.
	MetricMFAChallengeIssued
	// MetricMFASuccess counts completed MFA verifications.
	MetricMFASuccess
	// MetricMFAFailure counts rejected MFA codes or challenges.
	MetricMFAFailure
	// MetricRefreshSuccess counts successful rotations.
	MetricRefreshSuccess
	// MetricRefreshReplayed counts benign grace-window replays.
	MetricRefreshReplayed
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricReuseDetected counts reuse attacks and their teardowns.
	MetricReuseDetected
	// MetricSessionCreated counts new session chains.
	MetricSessionCreated
	// MetricSessionRevoked counts explicit logouts and revocations.
	MetricSessionRevoked
	// MetricPasswordChanged counts authenticated password changes.
	MetricPasswordChanged
	// MetricPasswordResetRequested counts reset-token requests.
	MetricPasswordResetRequested
	// MetricPasswordReset counts completed password resets.
	MetricPasswordReset

	metricIDCount
)

// Metrics holds the engine's in-process atomic counters.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a Metrics instance. When disabled, all operations
// are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: map[MetricID]uint64{}}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
