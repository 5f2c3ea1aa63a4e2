package internaldefs

import (
	"github.com/penwell/authguard"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   authguard.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   authguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authguard.MetricLoginSuccess, Name: "authguard_login_success_total", Help: "Sessions issued by Login."},
	{ID: authguard.MetricLoginFailure, Name: "authguard_login_failure_total", Help: "Login calls that did not issue a session."},
	{ID: authguard.MetricSessionRenewed, Name: "authguard_session_renewed_total", Help: "Logins that replaced a previous session."},
	{ID: authguard.MetricIdentityResolved, Name: "authguard_identity_resolved_total", Help: "Cookies resolved to an identity."},
	{ID: authguard.MetricIdentityMissing, Name: "authguard_identity_missing_total", Help: "Identity lookups without a valid session."},
	{ID: authguard.MetricLogout, Name: "authguard_logout_total", Help: "Single-session logouts."},
	{ID: authguard.MetricLogoutAll, Name: "authguard_logout_all_total", Help: "Logout-all operations."},
	{ID: authguard.MetricUserPurged, Name: "authguard_user_purged_total", Help: "Users whose sessions and counters were purged."},
	{ID: authguard.MetricSessionAcknowledged, Name: "authguard_session_acknowledged_total", Help: "Sessions acknowledged by their owner."},
	{ID: authguard.MetricAcknowledgeNotFound, Name: "authguard_acknowledge_not_found_total", Help: "Acknowledge calls for missing or foreign sessions."},
	{ID: authguard.MetricResourceLimitHit, Name: "authguard_resource_limit_hit_total", Help: "Resource checks denied by a daily cap."},
	{ID: authguard.MetricResourceIncrementFailure, Name: "authguard_resource_increment_failure_total", Help: "Resource counter increments that failed."},
	{ID: authguard.MetricLockFailureRecorded, Name: "authguard_lock_failure_recorded_total", Help: "Failures recorded against resource locks."},
	{ID: authguard.MetricResourceLocked, Name: "authguard_resource_locked_total", Help: "Failures that left a resource locked."},
	{ID: authguard.MetricStoreUnavailable, Name: "authguard_store_unavailable_total", Help: "Operations that failed because Redis was unreachable."},
}

// HistogramDefs lists every exported engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: authguard.MetricIdentityLatency, Name: "authguard_identity_latency_seconds", Help: "Identity resolution latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName is exported alongside the engine counters.
const (
	AuditDroppedName = "authguard_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// NormalizeBuckets pads or truncates raw to the engine's 8 buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into le-style running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
