// Package orchestration couples the document registry and the workflow
// engine. It is the only component that calls external services and the only
// one with mutation rights into either, applying each operation as one step.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/workflow"
	"github.com/JaimeStill/attest/pkg/lifecycle"
	"github.com/JaimeStill/attest/pkg/pagination"
)

// System is the run/observe surface of the compliance workflow.
//
// Mutating operations are applied atomically: readers observe the combined
// State before or after an operation, never part of one. Run operations block
// until the external call resolves; different stages may run concurrently
// when gating permits.
type System interface {
	// Handler returns the HTTP handler for documents and workflow endpoints.
	Handler(pagination pagination.Config, maxUploadSize int64) *Handler

	// Start registers a shutdown hook that cancels in-flight runs.
	Start(lc *lifecycle.Coordinator) error

	// Upload registers files, rejects invalid ones, and sends the rest through
	// the UploadService. Per-file failures are reported, not returned.
	Upload(ctx context.Context, files []FileUpload) (*UploadReport, error)

	// Configure stores a draft company description.
	Configure(description string) error

	RunIngestion(ctx context.Context, description string) error
	RunProcessing(ctx context.Context) error
	RunAnalysis(ctx context.Context, regulation string) error

	// Cancel fails a running stage with reason and discards its pending result.
	Cancel(stage workflow.Stage, reason string) error

	// Reset returns stage and its downstream stages to pending so they can
	// run again. Documents that went through processing since the last
	// reset return to uploaded. Resetting ingestion unlocks the
	// configuration and, when a SessionService is configured, restarts the
	// backend session first: the files it held are gone, so those documents
	// are marked failed and must be uploaded again.
	Reset(ctx context.Context, stage workflow.Stage) error

	Remove(id uuid.UUID) error

	State() *State
	Snapshot() []workflow.StageState
	ListByStatus(status documents.Status) []documents.Document
	List() []documents.Document
	Find(id uuid.UUID) (documents.Document, error)
	Regulations() []string

	// Subscribe registers fn for every event. Events are delivered in
	// version order outside the facade lock; fn must not call mutating
	// operations synchronously.
	Subscribe(fn func(Event)) (unsubscribe func())

	// Close cancels every in-flight run.
	Close()
}

type facade struct {
	cfg      Config
	services Services
	docs     documents.System
	stages   workflow.System
	tracer   trace.Tracer
	logger   *slog.Logger

	mu        sync.Mutex
	config    Configuration
	runs      map[workflow.Stage]*run
	processed []uuid.UUID // entered processing since the last reset
	version   uint64
	pending   []Event
	state     atomic.Pointer[State]

	deliverMu sync.Mutex
	subMu     sync.RWMutex
	subs      map[uint64]func(Event)
	nextSub   uint64
}

// New creates the facade with an empty registry and pending stages.
// A nil tracer disables tracing.
func New(cfg Config, services Services, tracer trace.Tracer, logger *slog.Logger) (System, error) {
	if services.Upload == nil || services.Ingestion == nil ||
		services.Processing == nil || services.Analysis == nil {
		return nil, errors.New("orchestration: all external services are required")
	}

	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("orchestration")
	}

	f := &facade{
		cfg:      cfg.normalized(),
		services: services,
		docs:     documents.New(logger),
		stages:   workflow.New(logger),
		tracer:   tracer,
		logger:   logger.With("system", "orchestration"),
		runs:     make(map[workflow.Stage]*run),
		subs:     make(map[uint64]func(Event)),
	}

	f.state.Store(&State{
		Documents: []documents.Document{},
		Stages:    f.stages.Snapshot(),
		UpdatedAt: time.Now().UTC(),
	})

	return f, nil
}

func (f *facade) Handler(pagination pagination.Config, maxUploadSize int64) *Handler {
	return NewHandler(f, f.logger, pagination, maxUploadSize)
}

func (f *facade) Start(lc *lifecycle.Coordinator) error {
	f.logger.Info("starting orchestration system")

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		f.Close()
	})

	return nil
}

func (f *facade) Configure(description string) error {
	desc, err := cleanDescription(description)
	if err != nil {
		return err
	}

	return f.step(func() error {
		if f.config.Locked {
			return ErrConfigurationLocked
		}
		f.config.Draft = desc
		return nil
	})
}

func (f *facade) Reset(ctx context.Context, stage workflow.Stage) error {
	session := stage == workflow.Ingestion && f.services.Session != nil
	if session {
		if err := f.stages.CanReset(stage); err != nil {
			return err
		}
		if err := f.services.Session.ResetSession(ctx); err != nil {
			f.logger.Error("backend session reset failed", "error", err)
			return &ServiceError{Stage: stage, Reason: err.Error(), Err: err}
		}
	}

	return f.step(func() error {
		if err := f.stages.Reset(stage); err != nil {
			return err
		}

		if stage == workflow.Ingestion {
			f.config.Locked = false
			f.config.LockedAt = nil
			f.config.CompanyDescription = ""
		}
		f.config.Regulation = ""

		if stage != workflow.Analysis {
			f.revert(session)
		}

		f.logger.Info("workflow reset", "stage", stage, "session", session)
		return nil
	})
}

// revert undoes the document side of processing. After a session restart
// the backend no longer holds any uploaded file, so every document it held
// fails; otherwise processed documents become eligible again.
func (f *facade) revert(session bool) {
	ids, outcome := f.processed, documents.OK()
	if session {
		outcome = documents.Fail("backend session reset; upload again")
		for _, d := range f.docs.ListByStatus(documents.StatusUploaded) {
			if !slices.Contains(ids, d.ID) {
				ids = append(ids, d.ID)
			}
		}
	}
	f.processed = nil

	if len(ids) == 0 {
		return
	}
	for _, e := range f.docs.Revert(ids, outcome) {
		f.logger.Warn("document not reverted", "id", e.ID, "error", e.Err)
	}
}

func (f *facade) Remove(id uuid.UUID) error {
	return f.step(func() error {
		return f.docs.Remove(id)
	})
}

func (f *facade) State() *State {
	return f.state.Load()
}

func (f *facade) Snapshot() []workflow.StageState {
	return slices.Clone(f.state.Load().Stages)
}

func (f *facade) ListByStatus(status documents.Status) []documents.Document {
	var out []documents.Document
	for _, d := range f.state.Load().Documents {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out
}

func (f *facade) List() []documents.Document {
	return slices.Clone(f.state.Load().Documents)
}

func (f *facade) Find(id uuid.UUID) (documents.Document, error) {
	for _, d := range f.state.Load().Documents {
		if d.ID == id {
			return d, nil
		}
	}
	return documents.Document{}, fmt.Errorf("%w: %s", documents.ErrNotFound, id)
}

func (f *facade) Regulations() []string {
	return slices.Clone(f.cfg.Regulations)
}

func (f *facade) Subscribe(fn func(Event)) func() {
	f.subMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.subMu.Lock()
			delete(f.subs, id)
			f.subMu.Unlock()
		})
	}
}

// step runs fn under the facade lock. When fn succeeds, the combined state is
// published and events are delivered after the lock is released. fn must not
// change published state before returning an error.
func (f *facade) step(fn func() error) error {
	f.mu.Lock()

	if err := fn(); err != nil {
		f.pending = nil
		f.mu.Unlock()
		return err
	}

	st := f.publish()
	events := make([]Event, 0, len(f.pending)+1)
	events = append(events, Event{
		Type:    EventWorkflowChanged,
		Version: st.Version,
		Time:    st.UpdatedAt,
		State:   st,
	})
	for _, ev := range f.pending {
		ev.Version = st.Version
		ev.Time = st.UpdatedAt
		ev.State = st
		events = append(events, ev)
	}
	f.pending = nil

	f.deliverMu.Lock()
	f.mu.Unlock()
	defer f.deliverMu.Unlock()

	f.deliver(events)
	return nil
}

// emit queues an event for delivery after the current step publishes.
func (f *facade) emit(ev Event) {
	f.pending = append(f.pending, ev)
}

func (f *facade) publish() *State {
	f.version++

	docs := f.docs.List()
	if docs == nil {
		docs = []documents.Document{}
	}

	st := &State{
		Version:       f.version,
		Documents:     docs,
		Stages:        f.stages.Snapshot(),
		Configuration: f.config,
		UpdatedAt:     time.Now().UTC(),
	}
	f.state.Store(st)
	return st
}

func (f *facade) deliver(events []Event) {
	f.subMu.RLock()
	subs := slices.Collect(maps.Values(f.subs))
	f.subMu.RUnlock()

	for _, ev := range events {
		for _, fn := range subs {
			f.notify(fn, ev)
		}
	}
}

func (f *facade) notify(fn func(Event), ev Event) {
	defer func() {
		if rv := recover(); rv != nil {
			f.logger.Error("subscriber panic", "event", ev.Type, "version", ev.Version, "panic", rv)
		}
	}()
	fn(ev)
}
