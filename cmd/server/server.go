package main

import (
	"context"

	"github.com/JaimeStill/attest/internal/api"
	"github.com/JaimeStill/attest/internal/config"
	"github.com/JaimeStill/attest/internal/infrastructure"
)

// Server owns the shared infrastructure and the HTTP listener for one
// process lifetime.
type Server struct {
	cfg   *config.Config
	infra *infrastructure.Infrastructure
	http  *httpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, err
	}

	router := newRouter(infra.Lifecycle)
	router.Mount(apiModule)

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"modules", router.Prefixes(),
		"version", cfg.Version,
		"env", cfg.Env(),
		"upload_target", cfg.Upload.Target,
		"backend", cfg.Backend.BaseURL,
	)

	return &Server{
		cfg:   cfg,
		infra: infra,
		http:  newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

// Run starts every subsystem, blocks until ctx is done, then drains the
// lifecycle within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	logger := s.infra.Logger
	logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}
	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		s.infra.Lifecycle.Shutdown(s.cfg.ShutdownTimeoutDuration())
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		logger.Info("all subsystems ready")
	}()

	<-ctx.Done()
	logger.Info("initiating shutdown", "cause", context.Cause(ctx))

	if err := s.infra.Lifecycle.Shutdown(s.cfg.ShutdownTimeoutDuration()); err != nil {
		return err
	}
	logger.Info("attest stopped")
	return nil
}
