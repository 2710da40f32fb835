package api

import (
	"fmt"

	"github.com/JaimeStill/attest/internal/backend"
	"github.com/JaimeStill/attest/internal/config"
	"github.com/JaimeStill/attest/internal/events"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/internal/uploads"
	"github.com/JaimeStill/attest/pkg/lifecycle"
)

// Domain holds all domain systems that comprise the API.
// Uploads is nil unless files are stored in blob storage.
type Domain struct {
	Backend       *backend.Client
	Uploads       *uploads.Store
	Orchestration orchestration.System
}

// NewDomain creates all domain systems from the API runtime. The backend
// client serves every stage; uploads go to the backend or to blob storage
// depending on upload.target. The backend session only holds files for the
// backend target, so only that target resets it with ingestion.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	client, err := backend.New(
		cfg.Backend.BaseURL,
		cfg.Backend.TimeoutDuration(),
		runtime.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("backend init failed: %w", err)
	}

	d := &Domain{Backend: client}

	services := orchestration.Services{
		Upload:     client,
		Ingestion:  client,
		Processing: client,
		Analysis:   client,
		Session:    client,
	}

	if cfg.Upload.Target == config.UploadTargetStorage {
		if runtime.Storage == nil {
			return nil, fmt.Errorf("upload target %q requires storage", cfg.Upload.Target)
		}
		d.Uploads = uploads.New(runtime.Storage, cfg.Upload.Concurrency, runtime.Logger)
		services.Upload = d.Uploads
		services.Session = nil
	}

	sys, err := orchestration.New(
		cfg.Orchestration(),
		services,
		runtime.Tracing.Tracer(),
		runtime.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("orchestration init failed: %w", err)
	}
	d.Orchestration = sys

	return d, nil
}

// Start registers domain systems with the lifecycle coordinator and forwards
// workflow events onto the bus until shutdown.
func (d *Domain) Start(lc *lifecycle.Coordinator, bus *events.Bus) error {
	if err := d.Backend.Start(lc); err != nil {
		return fmt.Errorf("backend start failed: %w", err)
	}
	if err := d.Orchestration.Start(lc); err != nil {
		return fmt.Errorf("orchestration start failed: %w", err)
	}

	stop := events.Forward(d.Orchestration, bus)
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		stop()
	})

	return nil
}
