// Package api provides the HTTP server for RoutineTimer.
//
// It exposes RESTful endpoints for managing routines and their steps and for driving
// a user's active routine session. The API sits on top of the store and session modules.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/RoutineTimer/internal/session"
	"github.com/BTreeMap/RoutineTimer/internal/store"
)

// Default server configuration
const (
	// DefaultAddr is the listen address used when none is configured
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout guards against slow clients
	DefaultReadHeaderTimeout = 5 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Option defines a functional option for configuring the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithShutdownTimeout sets how long Run waits for in-flight requests on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ShutdownTimeout = d
	}
}

// Server serves the routine API.
type Server struct {
	store    store.RoutineStore
	sessions *session.Manager
	router   *mux.Router
	opts     Opts
}

// NewServer wires the routes over st and sessions.
func NewServer(st store.RoutineStore, sessions *session.Manager, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		store:    st,
		sessions: sessions,
		router:   mux.NewRouter(),
		opts:     cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)

	u := r.PathPrefix("/users/{user}").Subrouter()
	u.HandleFunc("/routines", s.listRoutinesHandler).Methods(http.MethodGet)
	u.HandleFunc("/routines", s.createRoutineHandler).Methods(http.MethodPost)
	u.HandleFunc("/routines/{routine}", s.deleteRoutineHandler).Methods(http.MethodDelete)
	u.HandleFunc("/routines/{routine}/steps", s.listStepsHandler).Methods(http.MethodGet)
	u.HandleFunc("/routines/{routine}/steps/{step}", s.editStepHandler).Methods(http.MethodPut)

	u.HandleFunc("/session", s.sessionStateHandler).Methods(http.MethodGet)
	u.HandleFunc("/session/select", s.sessionSelectHandler).Methods(http.MethodPost)
	u.HandleFunc("/session/{action:deselect|restart|start|stop|reset|complete|advance}", s.sessionActionHandler).Methods(http.MethodPost)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		slog.Warn("Server: method not allowed", "method", req.Method, "path", req.URL.Path)
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	r.Use(loggingMiddleware)
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("RoutineTimer API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down API server", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server shutdown failed", "error", err)
		return err
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
