package orchestration

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/workflow"
)

// Configuration is the user-entered input to the pipeline.
type Configuration struct {
	// CompanyDescription is the description ingestion completed with.
	CompanyDescription string `json:"company_description,omitempty"`
	// Draft is the last description accepted by Configure or RunIngestion.
	Draft    string     `json:"draft,omitempty"`
	Locked   bool       `json:"locked"`
	LockedAt *time.Time `json:"locked_at,omitempty"`
	// Regulation is the last regulation analyzed successfully.
	Regulation string `json:"regulation,omitempty"`
}

// State is an immutable view of documents, stages, and configuration
// published after each facade step. Version increases by one per step.
type State struct {
	Version       uint64                `json:"version"`
	Documents     []documents.Document  `json:"documents"`
	Stages        []workflow.StageState `json:"stages"`
	Configuration Configuration         `json:"configuration"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Stage returns the state of one stage.
func (s *State) Stage(stage workflow.Stage) workflow.StageState {
	for _, st := range s.Stages {
		if st.Stage == stage {
			return st
		}
	}
	return workflow.StageState{}
}

// FileUpload is one file submitted to Upload.
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
	PageCount   *int
}

// StatusRemoved is reported for an upload item whose document was removed
// before its result was recorded.
const StatusRemoved documents.Status = "removed"

// UploadItem is the outcome for one submitted file.
type UploadItem struct {
	ID     uuid.UUID        `json:"id"`
	Name   string           `json:"name"`
	Status documents.Status `json:"status"`
	Error  string           `json:"error,omitempty"`
}

// UploadReport enumerates per-file outcomes of an upload batch.
type UploadReport struct {
	Items    []UploadItem `json:"items"`
	Uploaded int          `json:"uploaded"`
	Failed   int          `json:"failed"`
}

// EventType names a notification emitted by the facade.
type EventType string

const (
	// EventWorkflowChanged is emitted after every published state change.
	EventWorkflowChanged EventType = "workflow.changed"
	// EventAnalysisCompleted is emitted once per successful analysis run.
	EventAnalysisCompleted EventType = "analysis.completed"
)

// Event is delivered to subscribers after the state it describes is published.
type Event struct {
	Type       EventType      `json:"type"`
	Version    uint64         `json:"version"`
	Stage      workflow.Stage `json:"stage,omitempty"`
	Regulation string         `json:"regulation,omitempty"`
	Time       time.Time      `json:"time"`
	State      *State         `json:"state"`
}
