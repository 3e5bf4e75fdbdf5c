package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/labkit"
)

type fakeSource struct {
	snapshot  labkit.MetricsSnapshot
	dropped   uint64
	delivered uint64
}

func (f fakeSource) MetricsSnapshot() labkit.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }
func (f fakeSource) AuditDelivered() uint64                  { return f.delivered }

func emptySnapshot() labkit.MetricsSnapshot {
	return labkit.MetricsSnapshot{
		Counters:   map[labkit.MetricID]uint64{},
		Histograms: map[labkit.MetricID][]uint64{},
	}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{snapshot: emptySnapshot()})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderAuditOnlyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{snapshot: emptySnapshot(), delivered: 4, dropped: 1})

	out := exp.Render()
	for _, want := range []string{
		`labkit_audit_events_total{outcome="delivered"} 4`,
		`labkit_audit_events_total{outcome="dropped"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "labkit_sessions_created_total") {
		t.Fatalf("counters must be absent while metrics are off:\n%s", out)
	}
}

func TestRenderLabelsDecisionsByGate(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: labkit.MetricsSnapshot{
			Counters: map[labkit.MetricID]uint64{
				labkit.MetricSessionCreated:          7,
				labkit.MetricPermissionDenied:        3,
				labkit.MetricRoleGranted:             2,
				labkit.MetricAuthenticationThrottled: 5,
			},
			Histograms: map[labkit.MetricID][]uint64{
				labkit.MetricAuthorizeLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			LatencySum: 1500 * time.Millisecond,
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"labkit_sessions_created_total 7",
		`labkit_authorization_decisions_total{gate="permission",result="denied"} 3`,
		`labkit_authorization_decisions_total{gate="permission",result="granted"} 0`,
		`labkit_authorization_decisions_total{gate="role",result="granted"} 2`,
		"labkit_authentication_throttled_total 5",
		"# TYPE labkit_authorize_latency_seconds histogram",
		`labkit_authorize_latency_seconds_bucket{le="0.00005"} 1`,
		`labkit_authorize_latency_seconds_bucket{le="+Inf"} 36`,
		"labkit_authorize_latency_seconds_count 36",
		"labkit_authorize_latency_seconds_sum 1.5",
		`labkit_audit_events_total{outcome="dropped"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "labkit_sessions_active") {
		t.Fatalf("source without a session count must not export the gauge:\n%s", out)
	}
}

func TestRenderWithEngineIncludesActiveSessions(t *testing.T) {
	engine, err := labkit.New().WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	for _, user := range []string{"alice", "bob"} {
		if _, err := engine.CreateSession(t.Context(), user, labkit.RoleViewer); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	out := NewPrometheusExporter(engine).Render()
	for _, want := range []string{
		"labkit_sessions_created_total 2",
		"# TYPE labkit_sessions_active gauge",
		"labkit_sessions_active 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: labkit.MetricsSnapshot{
			Counters:   map[labkit.MetricID]uint64{labkit.MetricSessionCreated: 1},
			Histograms: map[labkit.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "labkit_sessions_created_total 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}
}

func TestEscaping(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("escapeHelp = %q", got)
	}
	if got := escapeLabel(`say "hi"`); got != `say \"hi\"` {
		t.Fatalf("escapeLabel = %q", got)
	}
}
