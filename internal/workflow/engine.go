package workflow

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// System is the stage state machine.
//
//	pending --Start--> running --Complete--> completed
//	                   running --Fail-----> error --Start--> running
//
// Completed is terminal; Reset is the only way back to pending.
// Snapshot and Get never block on writers.
type System interface {
	// Start moves a pending or errored stage to running. It returns
	// ErrNotReady when the predecessor has not completed or the stage is
	// already running, and ErrAlreadyCompleted for a completed stage.
	Start(stage Stage) error

	// Complete moves a running stage to completed.
	Complete(stage Stage) error

	// Fail moves a running stage to error, recording reason.
	Fail(stage Stage, reason string) error

	// CanStart reports the error Start would return, without mutating.
	CanStart(stage Stage) error

	// Get returns the state of one stage.
	Get(stage Stage) (StageState, error)

	// Snapshot returns all three stages in dependency order.
	Snapshot() []StageState

	// Reset returns stage and every downstream stage to pending. It fails
	// with ErrInvalidTransition if any of them is running.
	Reset(stage Stage) error

	// CanReset reports the error Reset would return, without mutating.
	CanReset(stage Stage) error
}

type states [len(Stages)]StageState

type engine struct {
	mu     sync.Mutex
	state  atomic.Pointer[states]
	logger *slog.Logger
}

// New creates an engine with every stage pending.
func New(logger *slog.Logger) System {
	e := &engine{logger: logger.With("system", "workflow")}

	var initial states
	for i, s := range Stages {
		initial[i] = pending(s)
	}
	e.state.Store(&initial)
	return e
}

func (e *engine) Start(stage Stage) error {
	return e.update(stage, func(cur *states, st *StageState, now time.Time) error {
		if err := canStart(cur, stage); err != nil {
			return err
		}

		st.Status = StatusRunning
		st.Attempts++
		st.StartedAt = &now
		st.FinishedAt = nil

		e.logger.Info("stage started", "stage", stage, "attempt", st.Attempts)
		return nil
	})
}

func (e *engine) Complete(stage Stage) error {
	return e.update(stage, func(_ *states, st *StageState, now time.Time) error {
		if st.Status != StatusRunning {
			return fmt.Errorf("%w: complete %s from %s", ErrInvalidTransition, stage, st.Status)
		}

		st.Status = StatusCompleted
		st.LastError = ""
		st.FinishedAt = &now

		e.logger.Info("stage completed", "stage", stage, "attempt", st.Attempts)
		return nil
	})
}

func (e *engine) Fail(stage Stage, reason string) error {
	return e.update(stage, func(_ *states, st *StageState, now time.Time) error {
		if st.Status != StatusRunning {
			return fmt.Errorf("%w: fail %s from %s", ErrInvalidTransition, stage, st.Status)
		}

		st.Status = StatusError
		st.LastError = reason
		st.FinishedAt = &now

		e.logger.Warn("stage failed", "stage", stage, "attempt", st.Attempts, "reason", reason)
		return nil
	})
}

func (e *engine) CanStart(stage Stage) error {
	if stage.index() < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	return canStart(e.state.Load(), stage)
}

func (e *engine) Get(stage Stage) (StageState, error) {
	i := stage.index()
	if i < 0 {
		return StageState{}, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	return e.state.Load()[i], nil
}

func (e *engine) Snapshot() []StageState {
	out := *e.state.Load()
	return out[:]
}

func (e *engine) CanReset(stage Stage) error {
	from := stage.index()
	if from < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	return canReset(e.state.Load(), from)
}

func (e *engine) Reset(stage Stage) error {
	from := stage.index()
	if from < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := *e.state.Load()
	if err := canReset(&next, from); err != nil {
		return err
	}

	for i := from; i < len(next); i++ {
		next[i] = pending(next[i].Stage)
	}

	e.state.Store(&next)
	e.logger.Info("stages reset", "from", stage)
	return nil
}

// update applies fn to a copy of the stage's state and publishes the result
// only when fn succeeds.
func (e *engine) update(stage Stage, fn func(cur *states, st *StageState, now time.Time) error) error {
	i := stage.index()
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.state.Load()
	next := *cur

	if err := fn(cur, &next[i], time.Now().UTC()); err != nil {
		return err
	}

	e.state.Store(&next)
	return nil
}

func canReset(cur *states, from int) error {
	for _, st := range cur[from:] {
		if st.Status == StatusRunning {
			return fmt.Errorf("%w: %s is running", ErrInvalidTransition, st.Stage)
		}
	}
	return nil
}

func canStart(cur *states, stage Stage) error {
	st := cur[stage.index()]

	switch st.Status {
	case StatusCompleted:
		return fmt.Errorf("%w: %s", ErrAlreadyCompleted, stage)
	case StatusRunning:
		return fmt.Errorf("%w: %s is already running", ErrNotReady, stage)
	}

	if pred, ok := stage.Predecessor(); ok {
		if p := cur[pred.index()]; p.Status != StatusCompleted {
			return fmt.Errorf("%w: %s requires %s to be completed (currently %s)", ErrNotReady, stage, pred, p.Status)
		}
	}
	return nil
}
