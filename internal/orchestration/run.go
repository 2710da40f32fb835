package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/workflow"
	"github.com/JaimeStill/attest/pkg/tracing"
)

// run is one attempt of a stage. It is current while it is the entry for its
// stage in facade.runs; results from a run that is no longer current are
// discarded.
type run struct {
	stage   workflow.Stage
	attempt int
	input   string
	ids     []uuid.UUID

	ctx    context.Context
	cancel context.CancelCauseFunc

	abandoned bool
	reason    string
	timer     *time.Timer
}

var errNoop = errors.New("no change")

func (f *facade) RunIngestion(ctx context.Context, description string) error {
	desc, err := cleanDescription(description)
	if err != nil {
		return err
	}

	var r *run
	err = f.step(func() error {
		if f.config.Locked {
			return ErrConfigurationLocked
		}
		if err := f.stages.Start(workflow.Ingestion); err != nil {
			return err
		}

		f.config.Draft = desc
		r = f.begin(ctx, workflow.Ingestion, desc, nil)
		return nil
	})
	if err != nil {
		return err
	}

	return f.execute(ctx, r, func(ctx context.Context) error {
		return f.services.Ingestion.Setup(ctx, desc)
	})
}

func (f *facade) RunProcessing(ctx context.Context) error {
	var r *run
	err := f.step(func() error {
		if err := f.stages.CanStart(workflow.Processing); err != nil {
			return err
		}

		eligible := f.docs.ListByStatus(documents.StatusUploaded)
		if len(eligible) == 0 {
			return ErrNoEligibleFiles
		}

		if err := f.stages.Start(workflow.Processing); err != nil {
			return err
		}

		ids := make([]uuid.UUID, len(eligible))
		for i, d := range eligible {
			ids[i] = d.ID
		}

		started, skipped := f.docs.MarkProcessingStarted(ids)
		for _, s := range skipped {
			f.logger.Warn("document skipped for processing", "id", s.ID, "error", s.Err)
		}
		f.processed = append(f.processed, started...)

		r = f.begin(ctx, workflow.Processing, "", started)
		return nil
	})
	if err != nil {
		return err
	}

	return f.execute(ctx, r, f.services.Processing.Process)
}

func (f *facade) RunAnalysis(ctx context.Context, regulation string) error {
	reg, ok := f.cfg.regulation(regulation)
	if !ok {
		return fmt.Errorf(
			"%w: %q (supported: %s)",
			ErrUnsupportedRegulation, regulation, strings.Join(f.cfg.Regulations, ", "),
		)
	}

	var r *run
	err := f.step(func() error {
		if err := f.stages.Start(workflow.Analysis); err != nil {
			return err
		}
		r = f.begin(ctx, workflow.Analysis, reg, nil)
		return nil
	})
	if err != nil {
		return err
	}

	return f.execute(ctx, r, func(ctx context.Context) error {
		return f.services.Analysis.Analyze(ctx, reg)
	})
}

func (f *facade) Cancel(stage workflow.Stage, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled by user"
	}

	return f.step(func() error {
		r, ok := f.runs[stage]
		if !ok {
			if _, err := f.stages.Get(stage); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s is not running", workflow.ErrInvalidTransition, stage)
		}

		f.terminate(r, reason)
		f.logger.Warn(
			"stage cancelled",
			"stage", stage,
			"attempt", r.attempt,
			"abandoned", r.abandoned,
			"reason", reason,
		)
		return nil
	})
}

func (f *facade) Close() {
	_ = f.step(func() error {
		if len(f.runs) == 0 {
			return errNoop
		}
		for _, r := range f.runs {
			f.terminate(r, "service shutting down")
		}
		return nil
	})
}

// begin records a new current run for a stage the engine has just started.
// Must be called under f.mu.
func (f *facade) begin(ctx context.Context, stage workflow.Stage, input string, ids []uuid.UUID) *run {
	st, _ := f.stages.Get(stage)

	r := &run{
		stage:   stage,
		attempt: st.Attempts,
		input:   input,
		ids:     ids,
	}
	r.ctx, r.cancel = context.WithCancelCause(ctx)

	f.runs[stage] = r
	return r
}

// execute awaits fn under the stage timeout and applies its result. The
// caller returns as soon as its context ends, the deadline passes, or the run
// is cancelled, even if fn has not returned; a result produced afterwards is
// discarded.
func (f *facade) execute(ctx context.Context, r *run, fn func(context.Context) error) error {
	callCtx, stop := context.WithTimeoutCause(r.ctx, f.cfg.StageTimeout, ErrStageTimeout)
	defer stop()
	defer r.cancel(nil)

	done := make(chan error, 1)
	go func() {
		spanCtx, span := tracing.StartSpan(
			callCtx,
			f.tracer,
			"orchestration."+string(r.stage),
			attribute.String(tracing.StageKey, string(r.stage)),
			attribute.Int(tracing.AttemptKey, r.attempt),
			attribute.Int(tracing.DocumentCountKey, len(r.ids)),
		)
		defer span.End()

		err := fn(spanCtx)
		if err != nil {
			tracing.SetError(span, err)
		}
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = context.Cause(callCtx)
	}

	return f.finish(ctx, callCtx, r, err)
}

func (f *facade) finish(ctx, callCtx context.Context, r *run, err error) error {
	var result error

	stepErr := f.step(func() error {
		if f.runs[r.stage] != r {
			f.logger.Warn(
				"discarding stale stage result",
				"stage", r.stage,
				"attempt", r.attempt,
				"reason", r.reason,
			)
			return fmt.Errorf("%w: %s: %s", ErrCancelled, r.stage, r.reason)
		}

		if err != nil && ctx.Err() != nil {
			f.abandon(r)
			return fmt.Errorf("%w: %s: %w", ErrAbandoned, r.stage, context.Cause(ctx))
		}

		if err == nil {
			f.settle(r, documents.OK())
			return nil
		}

		svcErr := &ServiceError{Stage: r.stage, Reason: err.Error(), Err: err}
		if errors.Is(context.Cause(callCtx), ErrStageTimeout) {
			svcErr = &ServiceError{
				Stage:  r.stage,
				Reason: fmt.Sprintf("timed out after %s", f.cfg.StageTimeout),
				Err:    ErrStageTimeout,
			}
		}

		f.settle(r, documents.Fail(svcErr.Reason))
		result = svcErr
		return nil
	})
	if stepErr != nil {
		return stepErr
	}
	return result
}

// abandon leaves the stage running and arms a timer that fails the same
// attempt if nothing else resolves it first. Must be called under f.mu.
func (f *facade) abandon(r *run) {
	r.abandoned = true
	r.timer = time.AfterFunc(f.cfg.AbandonTimeout, func() {
		_ = f.step(func() error {
			if f.runs[r.stage] != r {
				return errNoop
			}
			f.terminate(r, "run abandoned")
			return nil
		})
	})

	f.logger.Warn(
		"stage run abandoned by caller",
		"stage", r.stage,
		"attempt", r.attempt,
		"expires_in", f.cfg.AbandonTimeout,
	)
}

// terminate fails a current run with reason and cancels its external call.
// Must be called under f.mu.
func (f *facade) terminate(r *run, reason string) {
	r.reason = reason
	f.settle(r, documents.Fail(reason))
	r.cancel(fmt.Errorf("%w: %s", ErrCancelled, reason))
}

// settle applies the outcome of the current run to documents, the stage,
// and configuration, and retires the run. Must be called under f.mu.
func (f *facade) settle(r *run, outcome documents.Outcome) {
	delete(f.runs, r.stage)
	if r.timer != nil {
		r.timer.Stop()
	}

	if len(r.ids) > 0 {
		for _, e := range f.docs.MarkProcessingResult(r.ids, outcome) {
			f.logger.Warn("processing result not applied", "id", e.ID, "error", e.Err)
		}
	}

	if outcome.Failed {
		if err := f.stages.Fail(r.stage, outcome.Reason); err != nil {
			f.logger.Error("stage fail rejected", "stage", r.stage, "error", err)
		}
		return
	}

	if err := f.stages.Complete(r.stage); err != nil {
		f.logger.Error("stage complete rejected", "stage", r.stage, "error", err)
		return
	}

	switch r.stage {
	case workflow.Ingestion:
		now := time.Now().UTC()
		f.config.CompanyDescription = r.input
		f.config.Locked = true
		f.config.LockedAt = &now
	case workflow.Analysis:
		f.config.Regulation = r.input
		f.emit(Event{
			Type:       EventAnalysisCompleted,
			Stage:      workflow.Analysis,
			Regulation: r.input,
		})
	}
}

func cleanDescription(description string) (string, error) {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return "", ErrEmptyDescription
	}
	return desc, nil
}
