// Package api assembles the API module: domain systems, their routes and the
// module middleware.
package api

import (
	"net/http"

	"github.com/JaimeStill/geoassign/internal/config"
	"github.com/JaimeStill/geoassign/internal/infrastructure"
	"github.com/JaimeStill/geoassign/pkg/middleware"
	"github.com/JaimeStill/geoassign/pkg/module"
	"github.com/JaimeStill/geoassign/pkg/routes"
)

// NewModule creates the API module mounted at cfg.API.BasePath. Requests
// pass through CORS, then request logging, then panic recovery.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime, cfg)

	mux := http.NewServeMux()
	routes.Register(mux, domain.Groups()...)

	m, err := module.New(cfg.API.BasePath, mux)
	if err != nil {
		return nil, err
	}
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))
	m.Use(middleware.Recover(runtime.Logger))

	runtime.Logger.Info("api module ready", "prefix", m.Prefix())
	return m, nil
}
