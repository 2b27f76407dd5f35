package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/autoload/internal/binding"
	"github.com/roach88/autoload/internal/engine"
	"github.com/roach88/autoload/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// StateReader exposes the loader state.
type StateReader interface {
	State() store.State
}

// EngineInfo exposes the engine's live work.
type EngineInfo interface {
	Snapshot() engine.Snapshot
}

// Deps are the server's collaborators.
type Deps struct {
	Store      StateReader
	Engine     EngineInfo
	Binder     *binding.Binder
	Collection *binding.Collection

	// Registry serves /metrics and receives the HTTP collectors.
	// A nil Registry gets a fresh one.
	Registry *prometheus.Registry
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router     *chi.Mux
	store      StateReader
	engine     EngineInfo
	binder     *binding.Binder
	collection *binding.Collection
	logger     *slog.Logger
	addr       string

	mu          sync.Mutex
	definitions map[string]*binding.Autoloader
	instances   map[string]*binding.Instance
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	srv := &Server{
		router:      chi.NewRouter(),
		store:       deps.Store,
		engine:      deps.Engine,
		binder:      deps.Binder,
		collection:  deps.Collection,
		logger:      logger,
		addr:        addr,
		definitions: make(map[string]*binding.Autoloader),
		instances:   make(map[string]*binding.Instance),
	}

	metrics := newHTTPMetrics(reg)

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metrics.middleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.router.Get("/healthz", srv.handleHealthz)
	srv.router.Handle("/metrics", metricsHandler(reg))
	srv.routes()

	return srv
}

// routes registers the loader routes on the router.
func (s *Server) routes() {
	s.router.Route("/v1/loaders", func(r chi.Router) {
		r.Get("/", s.handleListLoaders)
		r.Post("/", s.handleMountLoader)
		r.Get("/{name}", s.handleGetLoader)
		r.Delete("/{name}", s.handleUnmountLoader)
		r.Post("/{name}/load", s.handleLoad)
		r.Post("/{name}/refresh/start", s.handleStartRefresh)
		r.Post("/{name}/refresh/stop", s.handleStopRefresh)
	})
	s.router.Post("/v1/collection/refresh", s.handleRefreshCollection)
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Define registers a loader definition that POST /v1/loaders can mount.
// The definition is addressed by name, which for templated loaders is the
// template itself.
func (s *Server) Define(name string, a *binding.Autoloader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[name] = a
}

// ErrAlreadyMounted is returned when a loader name is already mounted.
var ErrAlreadyMounted = errors.New("loader already mounted")

// Mount mounts a with props and tracks the instance by its resolved name.
func (s *Server) Mount(a *binding.Autoloader, props binding.Props) (*binding.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := a.ResolveName(props)
	if err != nil {
		return nil, err
	}
	if _, exists := s.instances[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMounted, name)
	}

	inst, err := s.binder.Mount(a, props)
	if err != nil {
		return nil, err
	}
	s.instances[inst.Name()] = inst
	return inst, nil
}

// UnmountAll unmounts every tracked instance.
func (s *Server) UnmountAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, inst := range s.instances {
		inst.Unmount()
		delete(s.instances, name)
	}
}

func (s *Server) instance(name string) (*binding.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[name]
	return inst, ok
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
