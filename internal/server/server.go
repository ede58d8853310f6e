package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/brokerline/brokerline/internal/config"
	"github.com/brokerline/brokerline/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	logger *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db and cache may be nil in development environments.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          routes.ErrorHandler,
		DisableStartupMessage: true,
	})

	if err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, logger: logger}, nil
}

// App exposes the underlying fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	s.logger.Info("http server listening", slog.String("addr", s.cfg.Address()), slog.String("env", s.cfg.Env))
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
