package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"

	"github.com/samsonhttp/samson/config"
	"github.com/samsonhttp/samson/core"
	"github.com/samsonhttp/samson/core/middleware"
	"github.com/samsonhttp/samson/core/static"
)

// App wires a configured server to the process lifecycle
type App struct {
	cfg    *config.Config
	server *core.Server
	logger *log.Logger
}

// New creates an application instance with a server configured from cfg
func New(cfg *config.Config) *App {
	return NewWithServer(cfg, core.NewServer())
}

// NewWithServer applies cfg to a pre-built server
func NewWithServer(cfg *config.Config, server *core.Server) *App {
	a := &App{
		cfg:    cfg,
		server: server,
		logger: log.Default(),
	}

	server.SetNumThreads(cfg.Workers)
	server.SetReadTimeout(cfg.ReadTimeout)
	server.SetWriteTimeout(cfg.WriteTimeout)
	server.SetMaxConnections(cfg.MaxConns)
	server.SetNotFoundPage(a.notFoundPage())

	server.Use(middleware.RequestID())
	if !cfg.IsProduction() {
		server.Use(middleware.Logger(a.logger))
	}
	return a
}

// Server returns the underlying server for route registration
func (a *App) Server() *core.Server {
	return a.server
}

func (a *App) notFoundPage() static.Page {
	if a.cfg.NotFoundPage == "" {
		return static.DefaultNotFound
	}

	page := static.NewFilePage(a.cfg.NotFoundPage)
	if _, err := page.Load(); err != nil {
		a.logger.Printf("Not-found page unavailable, using built-in page: %v", err)
		return static.DefaultNotFound
	}
	return page
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	return a.RunContext(ctx)
}

// RunContext serves until ctx is done. Startup failures such as an invalid
// worker count or a port in use are returned immediately.
func (a *App) RunContext(ctx context.Context) error {
	a.logger.Printf("Samson HTTP server starting on port %d [%s] with %d workers",
		a.cfg.Port, a.cfg.Env, a.cfg.Workers)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAddr(fmt.Sprintf(":%d", a.cfg.Port))
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, core.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server startup failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Printf("Shutting down...")
	if err := a.server.Close(); err != nil {
		a.logger.Printf("Close: %v", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, core.ErrServerClosed) {
		return err
	}
	a.logger.Printf("Server stopped")
	return nil
}
