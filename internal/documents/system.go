package documents

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// System defines the public contract for the document registry.
//
// Writers are serialized; readers never block and observe either the state
// before or after a whole mutation, never part of one.
type System interface {
	// Add registers entries in uploading status, preserving order.
	// Duplicate names are allowed.
	Add(entries []Entry) []uuid.UUID

	// MarkUploadResult moves each id from uploading to uploaded or failed.
	MarkUploadResult(ids []uuid.UUID, outcome Outcome) []ItemError

	// MarkUploadResults applies a distinct upload outcome per id.
	MarkUploadResults(results []Result) []ItemError

	// MarkProcessingStarted moves uploaded ids to processing. Ids in any
	// other status, or unknown, are skipped and reported.
	MarkProcessingStarted(ids []uuid.UUID) (started []uuid.UUID, skipped []ItemError)

	// MarkProcessingResult moves each id from processing to processed or failed.
	MarkProcessingResult(ids []uuid.UUID, outcome Outcome) []ItemError

	// Revert takes settled documents (uploaded, processed or failed) back
	// after a stage reset: a successful outcome returns them to uploaded, a
	// failed one marks them failed with the reason. Uploading and processing
	// documents are skipped and reported.
	Revert(ids []uuid.UUID, outcome Outcome) []ItemError

	// ListByStatus returns documents in the given status in insertion order.
	ListByStatus(status Status) []Document

	// List returns every document in insertion order.
	List() []Document

	// Find returns the document with id or ErrNotFound.
	Find(id uuid.UUID) (Document, error)

	// Remove deletes a document regardless of status.
	Remove(id uuid.UUID) error
}

type view struct {
	docs  []Document
	index map[uuid.UUID]int
}

func (v *view) clone() *view {
	return &view{
		docs:  slices.Clone(v.docs),
		index: maps.Clone(v.index),
	}
}

type registry struct {
	mu     sync.Mutex
	state  atomic.Pointer[view]
	logger *slog.Logger
}

// New creates an empty in-memory document registry.
func New(logger *slog.Logger) System {
	r := &registry{
		logger: logger.With("system", "documents"),
	}
	r.state.Store(&view{index: map[uuid.UUID]int{}})
	return r
}

func (r *registry) Add(entries []Entry) []uuid.UUID {
	if len(entries) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Load().clone()
	now := time.Now().UTC()
	ids := make([]uuid.UUID, 0, len(entries))

	for _, e := range entries {
		id := uuid.New()
		next.index[id] = len(next.docs)
		next.docs = append(next.docs, Document{
			ID:          id,
			Name:        e.Name,
			SizeBytes:   max(e.SizeBytes, 0),
			ContentType: e.ContentType,
			PageCount:   e.PageCount,
			Status:      StatusUploading,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		ids = append(ids, id)
	}

	r.state.Store(next)
	r.logger.Debug("documents added", "count", len(ids))
	return ids
}

func (r *registry) MarkUploadResult(ids []uuid.UUID, outcome Outcome) []ItemError {
	results := make([]Result, len(ids))
	for i, id := range ids {
		results[i] = Result{ID: id, Outcome: outcome}
	}
	return r.MarkUploadResults(results)
}

func (r *registry) MarkUploadResults(results []Result) []ItemError {
	return r.mutate(func(next *view, now time.Time) []ItemError {
		var errs []ItemError
		for _, res := range results {
			target := StatusUploaded
			if res.Failed {
				target = StatusFailed
			}
			if err := r.transition(next, res.ID, StatusUploading, target, res.Outcome, now); err != nil {
				errs = append(errs, *err)
			}
		}
		return errs
	})
}

func (r *registry) MarkProcessingStarted(ids []uuid.UUID) ([]uuid.UUID, []ItemError) {
	var started []uuid.UUID
	skipped := r.mutate(func(next *view, now time.Time) []ItemError {
		var errs []ItemError
		for _, id := range ids {
			if err := r.transition(next, id, StatusUploaded, StatusProcessing, OK(), now); err != nil {
				errs = append(errs, *err)
				continue
			}
			started = append(started, id)
		}
		return errs
	})
	return started, skipped
}

func (r *registry) MarkProcessingResult(ids []uuid.UUID, outcome Outcome) []ItemError {
	target := StatusProcessed
	if outcome.Failed {
		target = StatusFailed
	}

	return r.mutate(func(next *view, now time.Time) []ItemError {
		var errs []ItemError
		for _, id := range ids {
			if err := r.transition(next, id, StatusProcessing, target, outcome, now); err != nil {
				errs = append(errs, *err)
			}
		}
		return errs
	})
}

func (r *registry) Revert(ids []uuid.UUID, outcome Outcome) []ItemError {
	target := StatusUploaded
	if outcome.Failed {
		target = StatusFailed
	}

	var reverted int
	errs := r.mutate(func(next *view, now time.Time) []ItemError {
		var errs []ItemError
		for _, id := range ids {
			i, ok := next.index[id]
			if !ok {
				r.logger.Warn("unknown document id", "id", id, "target", target)
				errs = append(errs, ItemError{ID: id, Err: ErrNotFound})
				continue
			}

			doc := &next.docs[i]
			if !doc.Status.Settled() {
				errs = append(errs, ItemError{ID: id, Status: doc.Status, Err: ErrInvalidTransition})
				continue
			}

			doc.Status = target
			doc.Error = outcome.Reason
			doc.UpdatedAt = now
			reverted++
		}
		return errs
	})

	r.logger.Info("documents reverted", "count", reverted, "target", target, "skipped", len(errs))
	return errs
}

func (r *registry) ListByStatus(status Status) []Document {
	var out []Document
	for _, d := range r.state.Load().docs {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out
}

func (r *registry) List() []Document {
	return slices.Clone(r.state.Load().docs)
}

func (r *registry) Find(id uuid.UUID) (Document, error) {
	v := r.state.Load()
	i, ok := v.index[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return v.docs[i], nil
}

func (r *registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	i, ok := cur.index[id]
	if !ok {
		return ErrNotFound
	}

	docs := slices.Delete(slices.Clone(cur.docs), i, i+1)
	index := make(map[uuid.UUID]int, len(docs))
	for j, d := range docs {
		index[d.ID] = j
	}

	r.state.Store(&view{docs: docs, index: index})
	r.logger.Info("document removed", "id", id, "name", cur.docs[i].Name)
	return nil
}

// mutate applies fn to a private copy of the current view and publishes it.
// Status changes never add or remove ids, so the index is shared.
func (r *registry) mutate(fn func(next *view, now time.Time) []ItemError) []ItemError {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	next := &view{docs: slices.Clone(cur.docs), index: cur.index}

	errs := fn(next, time.Now().UTC())
	r.state.Store(next)
	return errs
}

func (r *registry) transition(next *view, id uuid.UUID, from, to Status, outcome Outcome, now time.Time) *ItemError {
	i, ok := next.index[id]
	if !ok {
		r.logger.Warn("unknown document id", "id", id, "target", to)
		return &ItemError{ID: id, Err: ErrNotFound}
	}

	doc := &next.docs[i]
	if doc.Status != from || !from.CanTransition(to) {
		r.logger.Warn(
			"document transition rejected",
			"id", id,
			"status", doc.Status,
			"target", to,
		)
		return &ItemError{ID: id, Status: doc.Status, Err: ErrInvalidTransition}
	}

	doc.Status = to
	doc.Error = ""
	if outcome.Failed {
		doc.Error = outcome.Reason
	}
	doc.UpdatedAt = now
	return nil
}
