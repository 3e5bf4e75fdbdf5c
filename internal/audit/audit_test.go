package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}
	// Methods on a nil dispatcher are no-ops.
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "x"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("delivered %d events, want 50", got)
	}
	if d.Delivered() != 50 {
		t.Fatalf("Delivered() = %d want 50", d.Delivered())
	}

	// Emit after close is ignored.
	d.Emit(context.Background(), Event{EventType: "late"})
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("event delivered after close")
	}
}

func TestDispatcherShedsOnlySuccessfulEvents(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The worker takes one event and blocks on the gate; the buffer holds one more.
	d.Emit(context.Background(), Event{Success: true})
	deadline := time.Now().Add(time.Second)
	for len(d.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), Event{Success: true})
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Success: true})
	}
	if d.Dropped() != 10 {
		t.Fatalf("dropped = %d want 10", d.Dropped())
	}

	// A failure waits for room instead of being shed.
	queued := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "authorization_denied"})
		close(queued)
	}()
	select {
	case <-queued:
		t.Fatal("failure event returned while the buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	<-queued
	d.Close()

	if d.Dropped() != 10 {
		t.Fatalf("dropped = %d want 10 after close", d.Dropped())
	}
	if d.Delivered() != 3 {
		t.Fatalf("delivered = %d want 3", d.Delivered())
	}
}

func TestDispatcherFailureGivesUpWithContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	d.Emit(context.Background(), Event{Success: true})
	deadline := time.Now().Add(time.Second)
	for len(d.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), Event{Success: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "authentication_failure"})

	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d want 1", d.Dropped())
	}

	close(sink.gate)
	d.Close()
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{ID: "1", EventType: "session_created", Success: true})
	sink.Emit(context.Background(), Event{ID: "2", EventType: "authorization_denied", Error: "permission_denied"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.ID != "2" || ev.Error != "permission_denied" || ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: "authorization_granted", Success: true, Operation: "clean_column_names"})
	sink.Emit(context.Background(), Event{EventType: "authorization_denied", Error: "permission_denied"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "authorization_granted" {
		t.Fatalf("unexpected first entry %+v", entries[0].Entry)
	}
	if entries[0].ContextMap()["operation"] != "clean_column_names" {
		t.Fatalf("operation field missing: %v", entries[0].ContextMap())
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("failed event logged at %v", entries[1].Level)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatal("event not delivered to every sink")
	}
}
