// Package web serves the OneTrueAddress REST API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/onetrueaddress/internal/config"
	"github.com/onetrueaddress/internal/web/handlers"
	"github.com/onetrueaddress/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *config.Config
	service    handlers.Service
	httpServer *http.Server
	router     *mux.Router
	logger     *zap.Logger
	onShutdown []func() error
}

// NewServer creates a new web server instance
func NewServer(cfg *config.Config, service handlers.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  cfg,
		service: service,
		logger:  logger,
	}
	s.setupRoutes()

	// a match may spend most of the oracle timeout before writing
	writeTimeout := cfg.Oracle.Timeout.Duration + 15*time.Second

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router exposes the configured routes, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// OnShutdown registers cleanup run after the listener stops.
func (s *Server) OnShutdown(fn func() error) {
	s.onShutdown = append(s.onShutdown, fn)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	apiHandler := &handlers.APIHandler{Service: s.service, Logger: s.logger}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", apiHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/match", apiHandler.Match).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/consolidate", apiHandler.Consolidate).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/push_updates", apiHandler.PushUpdates).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/write_to_internal", apiHandler.WriteToInternal).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/time_saved", apiHandler.TimeSaved).Methods(http.MethodGet)

	s.router.Use(middleware.CORS(s.config.Web.AllowedOrigins))
	s.router.Use(middleware.RequestLogging(s.logger))
	api.Use(middleware.Authentication(s.config.Web.APIKey, s.logger))
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "web: listen")
		}
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server shutdown error", zap.Error(err))
	}
	for _, fn := range s.onShutdown {
		if err := fn(); err != nil {
			s.logger.Error("shutdown hook failed", zap.Error(err))
		}
	}

	s.logger.Info("server stopped")
	return nil
}
