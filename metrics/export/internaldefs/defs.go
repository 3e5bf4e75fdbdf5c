package internaldefs

import (
	"context"
	"time"

	"github.com/MrEthical07/labkit"
)

// Source is what the exporters read. [labkit.Engine] satisfies it.
type Source interface {
	MetricsSnapshot() labkit.MetricsSnapshot
	AuditDropped() uint64
	AuditDelivered() uint64
}

// SessionCounter is implemented by sources that can count live sessions.
// The gauge is omitted for sources without it.
type SessionCounter interface {
	ActiveSessions(ctx context.Context) (int, error)
}

// Kind is the exposition type of a family.
type Kind int

const (
	Counter Kind = iota
	Gauge
)

// Label is one name/value pair on a point.
type Label struct {
	Key, Value string
}

// Point is one labelled value of a family.
type Point struct {
	Labels []Label
	Value  uint64
}

// Family describes one exported metric name.
type Family struct {
	Name string
	Help string
	Kind Kind
}

var (
	SessionsCreated       = Family{Name: "labkit_sessions_created_total", Help: "Sessions issued.", Kind: Counter}
	SessionsRevoked       = Family{Name: "labkit_sessions_revoked_total", Help: "Sessions revoked singly or per user.", Kind: Counter}
	SessionsActive        = Family{Name: "labkit_sessions_active", Help: "Sessions currently held by the store.", Kind: Gauge}
	SessionLookupMisses   = Family{Name: "labkit_session_lookup_misses_total", Help: "Lookups of unknown or expired tokens.", Kind: Counter}
	AuthenticationFailed  = Family{Name: "labkit_authentication_failures_total", Help: "Gate calls without a usable session.", Kind: Counter}
	AuthenticationLimited = Family{Name: "labkit_authentication_throttled_total", Help: "Gate calls refused after too many failures from one address.", Kind: Counter}
	Decisions             = Family{Name: "labkit_authorization_decisions_total", Help: "Gate decisions by gate and result.", Kind: Counter}
	BackendErrors         = Family{Name: "labkit_session_backend_errors_total", Help: "Session store failures.", Kind: Counter}
	AuditEvents           = Family{Name: "labkit_audit_events_total", Help: "Audit events by outcome.", Kind: Counter}
)

// Families lists every family in output order.
var Families = []Family{
	SessionsCreated,
	SessionsRevoked,
	SessionsActive,
	SessionLookupMisses,
	AuthenticationFailed,
	AuthenticationLimited,
	Decisions,
	BackendErrors,
	AuditEvents,
}

// Gate latency histogram.
const (
	LatencyName = "labkit_authorize_latency_seconds"
	LatencyHelp = "Time spent in Authorize and AuthorizeRole."
)

// HistogramBounds are the Prometheus "le" labels of the eight buckets.
var HistogramBounds = [8]string{
	"0.00005",
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"0.005",
	"0.025",
	"+Inf",
}

// Latency is the cumulative gate latency histogram.
type Latency struct {
	Cumulative [8]uint64
	Sum        time.Duration
}

// Count is the total number of observations.
func (l Latency) Count() uint64 { return l.Cumulative[len(l.Cumulative)-1] }

// Sample is one read of a Source.
type Sample struct {
	Points map[string][]Point // keyed by Family.Name
	// Latency is nil when latency histograms are off.
	Latency *Latency
}

// Empty reports whether the source had metrics disabled and no audit traffic.
func (s Sample) Empty() bool {
	return len(s.Points) == 0 && s.Latency == nil
}

// Collect reads src once.
func Collect(ctx context.Context, src Source) Sample {
	snap := src.MetricsSnapshot()
	delivered, dropped := src.AuditDelivered(), src.AuditDropped()

	out := Sample{Points: make(map[string][]Point, len(Families))}
	if len(snap.Counters) > 0 {
		c := snap.Counters
		single := func(f Family, id labkit.MetricID) {
			out.Points[f.Name] = []Point{{Value: c[id]}}
		}
		single(SessionsCreated, labkit.MetricSessionCreated)
		single(SessionsRevoked, labkit.MetricSessionRevoked)
		single(SessionLookupMisses, labkit.MetricSessionLookupMiss)
		single(AuthenticationFailed, labkit.MetricAuthenticationFailure)
		single(AuthenticationLimited, labkit.MetricAuthenticationThrottled)
		single(BackendErrors, labkit.MetricBackendError)
		out.Points[Decisions.Name] = []Point{
			decision("permission", "granted", c[labkit.MetricPermissionGranted]),
			decision("permission", "denied", c[labkit.MetricPermissionDenied]),
			decision("role", "granted", c[labkit.MetricRoleGranted]),
			decision("role", "denied", c[labkit.MetricRoleDenied]),
		}

		if sc, ok := src.(SessionCounter); ok {
			if n, err := sc.ActiveSessions(ctx); err == nil && n >= 0 {
				out.Points[SessionsActive.Name] = []Point{{Value: uint64(n)}}
			}
		}
	}

	if delivered > 0 || dropped > 0 || len(snap.Counters) > 0 {
		out.Points[AuditEvents.Name] = []Point{
			{Labels: []Label{{"outcome", "delivered"}}, Value: delivered},
			{Labels: []Label{{"outcome", "dropped"}}, Value: dropped},
		}
	}
	if len(out.Points) == 0 {
		out.Points = nil
	}

	if raw, ok := snap.Histograms[labkit.MetricAuthorizeLatency]; ok {
		lat := Latency{Sum: snap.LatencySum}
		var running uint64
		for i := range lat.Cumulative {
			if i < len(raw) {
				running += raw[i]
			}
			lat.Cumulative[i] = running
		}
		out.Latency = &lat
	}
	return out
}

func decision(gate, result string, v uint64) Point {
	return Point{Labels: []Label{{"gate", gate}, {"result", result}}, Value: v}
}
