// Package documents tracks the lifecycle of uploaded documents from
// submission through processing. The registry holds no file content.
package documents

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle position of a document.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusUploading,
	StatusUploaded,
	StatusProcessing,
	StatusProcessed,
	StatusFailed,
}

var transitions = map[Status][]Status{
	StatusUploading:  {StatusUploaded, StatusFailed},
	StatusUploaded:   {StatusProcessing},
	StatusProcessing: {StatusProcessed, StatusFailed},
}

// CanTransition reports whether a document may move from s to next.
// Processed and failed are terminal for the upload and processing steps;
// only a stage reset (System.Revert) moves them again.
func (s Status) CanTransition(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// Settled reports whether no upload or processing step is in flight for a
// document in status s.
func (s Status) Settled() bool {
	return s == StatusUploaded || s == StatusProcessed || s == StatusFailed
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	for _, status := range Statuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Document is a tracked upload. It is a value; registry reads return copies.
type Document struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type,omitempty"`
	PageCount   *int      `json:"page_count,omitempty"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Entry describes a document being submitted for upload.
type Entry struct {
	Name        string
	SizeBytes   int64
	ContentType string
	PageCount   *int
}

// Outcome is the result of an upload or processing step for a document.
type Outcome struct {
	Failed bool   `json:"failed"`
	Reason string `json:"reason,omitempty"`
}

// OK returns a successful outcome.
func OK() Outcome {
	return Outcome{}
}

// Fail returns a failed outcome carrying reason.
func Fail(reason string) Outcome {
	if reason == "" {
		reason = "unspecified failure"
	}
	return Outcome{Failed: true, Reason: reason}
}

// Result pairs a document id with its outcome.
type Result struct {
	ID uuid.UUID `json:"id"`
	Outcome
}

// ItemError reports why a single id in a batch operation was not applied.
// The rest of the batch is unaffected.
type ItemError struct {
	ID     uuid.UUID
	Status Status
	Err    error
}

func (e ItemError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("document %s: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("document %s (%s): %v", e.ID, e.Status, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error as {"id", "status", "error"}.
func (e ItemError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID     uuid.UUID `json:"id"`
		Status Status    `json:"status,omitempty"`
		Error  string    `json:"error"`
	}{e.ID, e.Status, e.Err.Error()})
}
