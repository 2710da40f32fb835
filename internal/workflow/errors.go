package workflow

import (
	"errors"
	"net/http"
)

// Gate and transition errors returned by the engine.
var (
	ErrNotReady          = errors.New("stage not ready")
	ErrAlreadyCompleted  = errors.New("stage already completed")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrUnknownStage      = errors.New("unknown stage")
)

// MapHTTPStatus maps workflow errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownStage):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
