package orchestration

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/attest/internal/documents"
)

// UploadFile is a validated file handed to the UploadService.
type UploadFile struct {
	ID          uuid.UUID
	Name        string
	ContentType string
	Data        []byte
}

// UploadService transfers file content to where later stages can read it.
// It returns one outcome per file, in order. A non-nil error fails every file.
type UploadService interface {
	Send(ctx context.Context, files []UploadFile) ([]documents.Outcome, error)
}

// IngestionService prepares the analysis backend for a company.
type IngestionService interface {
	Setup(ctx context.Context, description string) error
}

// ProcessingService processes every uploaded file held by the backend.
type ProcessingService interface {
	Process(ctx context.Context) error
}

// AnalysisService runs a regulatory analysis over processed files.
type AnalysisService interface {
	Analyze(ctx context.Context, regulation string) error
}

// SessionService restarts the backend analysis session, discarding the
// company context and every file it received through the UploadService.
type SessionService interface {
	ResetSession(ctx context.Context) error
}

// Services bundles the external collaborators of the facade. Session is
// optional; without it a reset only affects local state.
type Services struct {
	Upload     UploadService
	Ingestion  IngestionService
	Processing ProcessingService
	Analysis   AnalysisService
	Session    SessionService
}
