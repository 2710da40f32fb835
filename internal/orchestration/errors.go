package orchestration

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/workflow"
)

// Validation errors. Nothing is mutated and no external call is made.
var (
	ErrNoFiles               = errors.New("no files submitted")
	ErrEmptyDescription      = errors.New("company description must not be empty")
	ErrNoEligibleFiles       = errors.New("no uploaded files are eligible for processing")
	ErrUnsupportedRegulation = errors.New("unsupported regulation")
)

// Gate errors beyond those returned by the workflow engine.
var ErrConfigurationLocked = errors.New("configuration is locked after ingestion completed")

// External and run-termination errors.
var (
	ErrExternalService = errors.New("external service failed")
	ErrStageTimeout    = errors.New("stage timed out")
	ErrAbandoned       = errors.New("run abandoned by caller")
	ErrCancelled       = errors.New("run cancelled")
)

// ServiceError is returned when an external stage call fails or times out.
// It matches ErrExternalService and the underlying cause with errors.Is.
type ServiceError struct {
	Stage  workflow.Stage
	Reason string
	Err    error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Reason)
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalService}
	}
	return []error{ErrExternalService, e.Err}
}

// Kind classifies an error returned by the facade.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindGate
	KindExternal
	KindUnknownID
	KindAbandoned
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindGate:
		return "gate"
	case KindExternal:
		return "external"
	case KindUnknownID:
		return "unknown_id"
	case KindAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Abandonment is checked first so a cancelled
// external call is not reported as a service failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAbandoned), errors.Is(err, ErrCancelled):
		return KindAbandoned
	case errors.Is(err, ErrExternalService), errors.Is(err, ErrStageTimeout):
		return KindExternal
	case errors.Is(err, ErrNoFiles),
		errors.Is(err, ErrEmptyDescription),
		errors.Is(err, ErrNoEligibleFiles),
		errors.Is(err, ErrUnsupportedRegulation),
		errors.Is(err, workflow.ErrUnknownStage),
		errors.Is(err, documents.ErrInvalidStatus):
		return KindValidation
	case errors.Is(err, ErrConfigurationLocked),
		errors.Is(err, workflow.ErrNotReady),
		errors.Is(err, workflow.ErrAlreadyCompleted),
		errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, documents.ErrInvalidTransition):
		return KindGate
	case errors.Is(err, documents.ErrNotFound):
		return KindUnknownID
	default:
		return KindUnknown
	}
}

// MapHTTPStatus maps facade errors to HTTP status codes by kind.
func MapHTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindGate:
		return http.StatusConflict
	case KindUnknownID:
		return http.StatusNotFound
	case KindExternal:
		return http.StatusBadGateway
	case KindAbandoned:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
