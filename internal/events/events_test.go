package events_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/events"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/internal/workflow"
	"github.com/JaimeStill/attest/pkg/routes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type noopServices struct{}

func (noopServices) Send(_ context.Context, files []orchestration.UploadFile) ([]documents.Outcome, error) {
	out := make([]documents.Outcome, len(files))
	for i := range out {
		out[i] = documents.OK()
	}
	return out, nil
}

func (noopServices) Setup(context.Context, string) error { return nil }

func (noopServices) Process(context.Context) error { return nil }

func (noopServices) Analyze(context.Context, string) error { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSystem(t *testing.T) orchestration.System {
	t.Helper()
	svc := noopServices{}
	sys, err := orchestration.New(orchestration.DefaultConfig(), orchestration.Services{
		Upload:     svc,
		Ingestion:  svc,
		Processing: svc,
		Analysis:   svc,
	}, nil, discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sys.Close)
	return sys
}

func newBus(t *testing.T) *events.Bus {
	t.Helper()
	bus := events.NewBus(events.Config{Buffer: 16}, discard())
	t.Cleanup(func() { bus.Close() })
	return bus
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func TestToCloudEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &orchestration.State{Version: 7, UpdatedAt: now}

	ce, err := events.ToCloudEvent("/attest", orchestration.Event{
		Type:       orchestration.EventAnalysisCompleted,
		Version:    7,
		Stage:      workflow.Analysis,
		Regulation: "GDPR",
		Time:       now,
		State:      st,
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if ce.Type() != "io.attest.analysis.completed" || ce.ID() != "7-analysis.completed" {
		t.Errorf("attributes: type %s id %s", ce.Type(), ce.ID())
	}
	if ce.Source() != "/attest" || ce.Subject() != "analysis" || !ce.Time().Equal(now) {
		t.Errorf("attributes: source %s subject %s time %s", ce.Source(), ce.Subject(), ce.Time())
	}
	if v, ok := events.VersionOf(ce); !ok || v != 7 {
		t.Errorf("version: got %d %v", v, ok)
	}

	var payload events.Payload
	if err := ce.DataAs(&payload); err != nil {
		t.Fatalf("data: %v", err)
	}
	if payload.Regulation != "GDPR" || payload.State.Version != 7 {
		t.Errorf("payload: got %+v", payload)
	}
}

func TestForward(t *testing.T) {
	sys := newSystem(t)
	bus := newBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	stop := events.Forward(sys, bus)
	defer stop()

	if err := sys.Configure("Acme"); err != nil {
		t.Fatal(err)
	}

	ce := receive(t, stream)
	if ce.Type() != "io.attest.workflow.changed" {
		t.Errorf("type: got %s", ce.Type())
	}
	if v, _ := events.VersionOf(ce); v != 1 {
		t.Errorf("version: got %d, want 1", v)
	}

	var payload events.Payload
	if err := ce.DataAs(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.State.Configuration.Draft != "Acme" {
		t.Errorf("draft: got %q", payload.State.Configuration.Draft)
	}
}

func TestSubscribeEndsWithContext(t *testing.T) {
	bus := newBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-stream:
		if ok {
			t.Error("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
}

type sseEvent struct {
	id, typ, data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.typ != "" {
				return ev
			}
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.typ = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStream(t *testing.T) {
	sys := newSystem(t)
	bus := newBus(t)
	stop := events.Forward(sys, bus)
	defer stop()

	mux := http.NewServeMux()
	routes.Register(mux, events.NewHandler(bus, sys, discard()).Routes())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: got %s", ct)
	}

	r := bufio.NewReader(resp.Body)

	initial := readEvent(t, r)
	if initial.typ != "io.attest.workflow.changed" || initial.id != "0-workflow.changed" {
		t.Errorf("initial event: got %+v", initial)
	}

	if err := sys.Configure("Acme"); err != nil {
		t.Fatal(err)
	}

	next := readEvent(t, r)
	if next.id != "1-workflow.changed" {
		t.Errorf("next event id: got %s", next.id)
	}

	var envelope struct {
		SpecVersion string         `json:"specversion"`
		Data        events.Payload `json:"data"`
	}
	if err := json.Unmarshal([]byte(next.data), &envelope); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if envelope.SpecVersion != "1.0" || envelope.Data.State.Configuration.Draft != "Acme" {
		t.Errorf("event: got %+v", envelope)
	}
}

func TestStreamOrdersStateChangesOnly(t *testing.T) {
	sys := newSystem(t)
	bus := newBus(t)

	mux := http.NewServeMux()
	routes.Register(mux, events.NewHandler(bus, sys, discard()).Routes())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readEvent(t, r)

	st := sys.State()
	for _, ev := range []orchestration.Event{
		{Type: orchestration.EventWorkflowChanged, Version: 3, State: st},
		{Type: orchestration.EventAnalysisCompleted, Version: 2, Stage: workflow.Analysis, Regulation: "GDPR", State: st},
		{Type: orchestration.EventWorkflowChanged, Version: 2, State: st},
		{Type: orchestration.EventWorkflowChanged, Version: 4, State: st},
	} {
		ce, err := events.ToCloudEvent(bus.Source(), ev)
		if err != nil {
			t.Fatal(err)
		}
		if err := bus.Publish(ce); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	for range 3 {
		got = append(got, readEvent(t, r).id)
	}

	want := []string{"3-workflow.changed", "2-analysis.completed", "4-workflow.changed"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}
