package main

import (
	"time"

	"github.com/JaimeStill/geoassign/internal/config"
	"github.com/JaimeStill/geoassign/internal/infrastructure"
)

// Server owns the infrastructure, the mounted modules and the HTTP listener.
type Server struct {
	infra   *infrastructure.Infrastructure
	modules *Modules
	http    *httpServer
}

// NewServer builds every system without starting any of them.
func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, err
	}

	router := buildRouter(infra)
	modules.Mount(router)

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"env", cfg.Env(),
		"api", modules.API.Prefix(),
	)

	return &Server{
		infra:   infra,
		modules: modules,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	began := time.Now()
	go func() {
		lc := s.infra.Lifecycle
		lc.WaitForStartup()
		if !lc.Ready() {
			s.infra.Logger.Warn("startup complete with subsystems not ready", "elapsed", time.Since(began))
			return
		}
		s.infra.Logger.Info("all subsystems ready", "elapsed", time.Since(began))
	}()

	return nil
}

// Shutdown cancels background inference work, drains HTTP requests and
// closes the database within timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown", "timeout", timeout)
	if err := s.infra.Lifecycle.Shutdown(timeout); err != nil {
		s.infra.Logger.Error("shutdown incomplete", "error", err)
		return err
	}
	s.infra.Logger.Info("shutdown complete")
	return nil
}
