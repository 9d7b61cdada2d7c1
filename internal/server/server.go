package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/voxpath/pkg/config"
	"github.com/sanonone/voxpath/pkg/engine"
	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/hpa"
)

// Server holds the HTTP interface over a running Engine.
type Server struct {
	Engine *engine.Engine
	Graph  *hpa.Graph

	world          engine.BlockWriter
	params         grid.Params
	prefetchRadius int

	httpServer  *http.Server
	taskManager *TaskManager
	authToken   string

	// baseCtx outlives requests; async tasks run under it.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewServer builds the HTTP server over an opened Engine. w receives block
// updates; it may be nil for a read-only service.
// Note: the Engine must be opened before and closed after the server.
func NewServer(eng *engine.Engine, w engine.BlockWriter, cfg config.Config) (*Server, error) {
	params, err := cfg.Search.Params()
	if err != nil {
		return nil, fmt.Errorf("search params: %w", err)
	}
	graph, err := eng.NewGraph(params.Chain)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Engine:         eng,
		Graph:          graph,
		world:          w,
		params:         params,
		prefetchRadius: cfg.Search.PrefetchRadius,
		taskManager:    NewTaskManager(cfg.Server.TaskTTL.Std()),
		authToken:      cfg.Server.AuthToken,
		baseCtx:        ctx,
		baseCancel:     cancel,
	}

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Recovery -> Logging -> Auth -> Mux. Recovery must be outer-most to catch everything.
	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)

	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", s.handleHealthz)
	rootMux.Handle("GET /metrics", promhttp.Handler())
	rootMux.Handle("/", handler)
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      rootMux,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	if ttl := cfg.Server.TaskTTL.Std(); ttl > 0 {
		s.wg.Add(1)
		go s.sweepTasks(ttl)
	}
	return s, nil
}

// Handler returns the root handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Tasks returns the async task registry.
func (s *Server) Tasks() *TaskManager { return s.taskManager }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("[Server] HTTP listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and cancels running async tasks.
// It does NOT close the Engine.
func (s *Server) Shutdown() {
	slog.Info("[Server] graceful shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("[Server] HTTP shutdown error", "error", err)
	}
	s.baseCancel()
	s.wg.Wait()
}

func (s *Server) sweepTasks(ttl time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(max(ttl/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case now := <-ticker.C:
			if n := s.taskManager.Sweep(now); n > 0 {
				slog.Debug("[Server] expired tasks removed", "count", n)
			}
		}
	}
}
