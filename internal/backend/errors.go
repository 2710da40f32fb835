package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRequestFailed indicates the backend could not be reached or returned a
// non-2xx status.
var ErrRequestFailed = errors.New("backend request failed")

// ErrRejected indicates the backend answered with success=false.
var ErrRejected = errors.New("backend rejected request")

// RejectedError carries the backend's own error message. Its text is the
// message alone so it can be shown as a stage failure reason.
type RejectedError struct {
	Op      string
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, body)
}

func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}
