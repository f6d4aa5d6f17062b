package goWarden

import "sync/atomic"

// MetricID indexes an engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLockedOut
	MetricLoginSystemLocked
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricLogoutAll
	MetricAuthorizeAllowed
	MetricAuthorizeDenied
	MetricAuthorizeRateLimited
	MetricTokenValidationFailure
	MetricKeyRotations
	MetricCleanupDeletedTokens
	MetricAuditEventsDropped
	metricIDCount
)

// metricNames maps counters to stable snake_case names for exporters.
var metricNames = [metricIDCount]string{
	MetricLoginSuccess:           "login_success",
	MetricLoginFailure:           "login_failure",
	MetricLoginLockedOut:         "login_locked_out",
	MetricLoginSystemLocked:      "login_system_locked",
	MetricRefreshSuccess:         "refresh_success",
	MetricRefreshFailure:         "refresh_failure",
	MetricLogout:                 "logout",
	MetricLogoutAll:              "logout_all",
	MetricAuthorizeAllowed:       "authorize_allowed",
	MetricAuthorizeDenied:        "authorize_denied",
	MetricAuthorizeRateLimited:   "authorize_rate_limited",
	MetricTokenValidationFailure: "token_validation_failure",
	MetricKeyRotations:           "key_rotations",
	MetricCleanupDeletedTokens:   "cleanup_deleted_tokens",
	MetricAuditEventsDropped:     "audit_events_dropped",
}

// Name returns the exporter-facing name of the counter, or "" for an
// unknown id.
func (id MetricID) Name() string {
	if id >= metricIDCount {
		return ""
	}
	return metricNames[id]
}

const cacheLineSize = 64

type paddedCounter struct {
	value atomic.Uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed table of padded atomic counters. A nil *Metrics is a
// valid no-op receiver, so disabled metrics cost one branch.
type Metrics struct {
	counters [metricIDCount]paddedCounter
}

func newMetrics(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	return &Metrics{}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds delta to the counter.
func (m *Metrics) Add(id MetricID, delta uint64) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.counters[id].value.Add(delta)
}

// Get returns the current value of the counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[string]uint64
}

// Snapshot copies all counters. Counters are read individually, so the
// snapshot is consistent per counter, not across counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[string]uint64, int(metricIDCount))}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[metricNames[id]] = m.counters[id].value.Load()
	}
	return snap
}
