// Package ui exposes the report pipeline over HTTP: run triggering, status
// and document retrieval, the worker callback, the progress event stream,
// and the widget compile check used by plugin authors.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/veristat-labs/veristat/internal/compiler"
	"github.com/veristat-labs/veristat/internal/engine"
	"github.com/veristat-labs/veristat/internal/notifier"
	"github.com/veristat-labs/veristat/internal/registry"
)

// Server is the pipeline's HTTP server.
type Server struct {
	engine   *engine.Engine
	compiler *compiler.Compiler
	registry registry.Registry
	notifier *notifier.Notifier
	port     int
	logger   *slog.Logger
}

// Config holds configuration for the HTTP server.
type Config struct {
	Engine   *engine.Engine
	Compiler *compiler.Compiler
	Registry registry.Registry
	Notifier *notifier.Notifier
	Port     int
	Logger   *slog.Logger
}

// NewServer creates a new server instance. A nil logger discards output.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine:   cfg.Engine,
		compiler: cfg.Compiler,
		registry: cfg.Registry,
		notifier: cfg.Notifier,
		port:     cfg.Port,
		logger:   logger,
	}
}

// Router builds the route tree. Split from Serve so tests can mount it on
// httptest servers.
func (s *Server) Router() chi.Router {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Route("/api", func(r chi.Router) {
		r.Route("/projects/{projectID}/reports", func(r chi.Router) {
			r.Post("/", s.handleStartRun)
			r.Delete("/", s.handleDeleteReport)
			r.Get("/status", s.handleReportStatus)
			r.Get("/document", s.handleReportDocument)
			r.Get("/logs", s.handleReportLogs)
		})
		r.Get("/reports/progress", s.handleProgress)
		r.Post("/worker/tasks/{taskID}", s.handleTaskUpdate)
		r.Post("/widgets/{pluginID}/{widgetID}/compile", s.handleCompileCheck)
	})

	return r
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
