package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ussd/internal/routes"
	"github.com/congo-pay/congo_ussd/internal/session"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app     *fiber.App
	deps    routes.Deps
	runtime routes.Runtime
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(d routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      d.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	runtime, err := routes.Setup(app, d)
	if err != nil {
		return nil, err
	}

	return &Server{app: app, deps: d, runtime: runtime}, nil
}

// Sessions returns the session manager the routes were wired with.
func (s *Server) Sessions() *session.Manager {
	return s.runtime.Sessions
}

// App exposes the underlying Fiber application, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.deps.Cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
