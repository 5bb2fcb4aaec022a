package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/repochain/repochain/internal/appid"
	"github.com/repochain/repochain/internal/observability"
	"github.com/repochain/repochain/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	health := s.opts.Health
	if health == nil {
		health = handlers.NewHealthManager("dev")
	}
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", s.metricsHandler)

	if api := s.opts.API; api != nil {
		s.router.Route("/v1", func(r chi.Router) {
			r.Get("/resolve", api.Resolve)
			r.Post("/resolve", api.ResolveBatch)
			r.Get("/repositories", api.ListRepositories)
		})
	}

	if s.opts.Pprof {
		s.router.Mount("/debug", middleware.Profiler())
	}

	s.registerAdminEndpoint()
}

func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	tokenVar := appid.EnvPrefix + "ADMIN_TOKEN"

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + tokenVar + " set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
