// Package workflow implements the three-stage, dependency-gated pipeline that
// moves uploaded documents to an analyzed state. Each stage is a small state
// machine; a stage may only start once its predecessor has completed.
package workflow

import (
	"fmt"
	"strings"
	"time"
)

// Stage identifies one of the three ordered pipeline stages.
type Stage string

const (
	Ingestion  Stage = "ingestion"
	Processing Stage = "processing"
	Analysis   Stage = "analysis"
)

// Stages lists the stages in dependency order.
var Stages = [...]Stage{Ingestion, Processing, Analysis}

var names = map[Stage]string{
	Ingestion:  "Setup Ingestion",
	Processing: "Process Files",
	Analysis:   "Analyze Compliance",
}

// Name returns the display name of the stage.
func (s Stage) Name() string {
	return names[s]
}

// Predecessor returns the stage that must complete before s may start.
// Ingestion has none.
func (s Stage) Predecessor() (Stage, bool) {
	i := s.index()
	if i <= 0 {
		return "", false
	}
	return Stages[i-1], true
}

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStage resolves a stage by identifier, case-insensitively.
func ParseStage(s string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(s)))
	if stage.index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
	return stage, nil
}

// Status is the execution state of a stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// StageState is a read-only view of one stage.
type StageState struct {
	Stage      Stage      `json:"stage"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	LastError  string     `json:"last_error,omitempty"`
	Attempts   int        `json:"attempts"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func pending(s Stage) StageState {
	return StageState{Stage: s, Name: s.Name(), Status: StatusPending}
}
