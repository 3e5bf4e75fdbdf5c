package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/labkit"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu        sync.RWMutex
	snapshot  labkit.MetricsSnapshot
	dropped   uint64
	delivered uint64
}

func (f *fakeSource) MetricsSnapshot() labkit.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := labkit.MetricsSnapshot{
		Counters:   make(map[labkit.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[labkit.MetricID][]uint64, len(f.snapshot.Histograms)),
		LatencySum: f.snapshot.LatencySum,
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) AuditDelivered() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.delivered
}

func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, provider
}

// findInt64 returns the point of name whose attributes include every pair in
// attrs.
func findInt64(rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) (int64, bool) {
	match := func(set attribute.Set) bool {
		for _, kv := range attrs {
			v, ok := set.Value(kv.Key)
			if !ok || v.Emit() != kv.Value.Emit() {
				return false
			}
		}
		return true
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			}
		}
	}
	return 0, false
}

func findFloat64(rm metricdata.ResourceMetrics, name string) (float64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[float64]); ok && m.Name == name && len(data.DataPoints) > 0 {
				return data.DataPoints[0].Value, true
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("labkit-test")

	src := &fakeSource{
		snapshot: labkit.MetricsSnapshot{
			Counters: map[labkit.MetricID]uint64{
				labkit.MetricSessionCreated: 3,
				labkit.MetricRoleDenied:     4,
			},
			Histograms: map[labkit.MetricID][]uint64{
				labkit.MetricAuthorizeLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			LatencySum: 2 * time.Second,
		},
		dropped:   1,
		delivered: 9,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if v, ok := findInt64(rm, "labkit_sessions_created_total"); !ok || v != 3 {
		t.Fatalf("sessions_created = %d,%v want 3", v, ok)
	}
	roleDenied := []attribute.KeyValue{attribute.String("gate", "role"), attribute.String("result", "denied")}
	if v, ok := findInt64(rm, "labkit_authorization_decisions_total", roleDenied...); !ok || v != 4 {
		t.Fatalf("role denied = %d,%v want 4", v, ok)
	}
	if v, ok := findInt64(rm, "labkit_authorize_latency_seconds_bucket", attribute.String("le", "+Inf")); !ok || v != 8 {
		t.Fatalf("+Inf bucket = %d,%v want 8", v, ok)
	}
	if v, ok := findFloat64(rm, "labkit_authorize_latency_seconds_sum"); !ok || v != 2 {
		t.Fatalf("latency sum = %v,%v want 2", v, ok)
	}
	if v, ok := findInt64(rm, "labkit_audit_events_total", attribute.String("outcome", "dropped")); !ok || v != 1 {
		t.Fatalf("audit dropped = %d,%v want 1", v, ok)
	}
	if v, ok := findInt64(rm, "labkit_audit_events_total", attribute.String("outcome", "delivered")); !ok || v != 9 {
		t.Fatalf("audit delivered = %d,%v want 9", v, ok)
	}
}

func TestExporterReadsEngineSessions(t *testing.T) {
	reader, provider := newTestMeter()

	engine, err := labkit.New().WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()
	if _, err := engine.CreateSession(context.Background(), "alice", labkit.RoleAdmin); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	exp, err := NewOTelExporter(provider.Meter("labkit-test"), engine)
	if err != nil {
		t.Fatalf("NewOTelExporter failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if v, ok := findInt64(rm, "labkit_sessions_active"); !ok || v != 1 {
		t.Fatalf("sessions_active = %d,%v want 1", v, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newTestMeter()
	meter := provider.Meter("labkit-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("labkit-test")

	src := &fakeSource{
		snapshot: labkit.MetricsSnapshot{
			Counters: map[labkit.MetricID]uint64{
				labkit.MetricPermissionGranted: 1,
			},
			Histograms: map[labkit.MetricID][]uint64{
				labkit.MetricAuthorizeLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[labkit.MetricPermissionGranted] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
