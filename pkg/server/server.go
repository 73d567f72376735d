package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0xmhha/filewatch/pkg/logger"
	"github.com/0xmhha/filewatch/pkg/notify"
)

// Server serves the REST and websocket routes.
type Server struct {
	config Config
	deps   Deps
	logger logger.Logger

	handler http.Handler

	// Open websocket connections, closed on shutdown since the HTTP
	// server does not track hijacked connections.
	mu       sync.Mutex
	sessions map[string]*notify.WSSubscriber
	nextConn atomic.Uint64
}

// New creates a Server. Zero config fields take defaults.
func New(cfg Config, deps Deps, log logger.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		config:   cfg,
		deps:     deps,
		logger:   logger.Component(log, "server"),
		sessions: make(map[string]*notify.WSSubscriber),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	api := func(h apiHandler) http.HandlerFunc {
		return jsonErrorMiddleware(s.logger, h)
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /proposals", api(s.handleProposals))
	mux.HandleFunc("GET /{proposal}/{fileType}/current", api(s.handleCurrent))
	mux.HandleFunc("GET /{proposal}/{fileType}/watcher/start", api(s.handleStart))
	mux.HandleFunc("GET /{proposal}/{fileType}/watcher/stop", api(s.handleStop))
	mux.HandleFunc("GET /{proposal}/{fileType}/watcher/status", api(s.handleStatus))
	mux.HandleFunc("GET /{proposal}/{fileType}/watcher/changed", api(s.handleChanged))
	mux.HandleFunc("GET /{proposal}/{fileType}/history", api(s.handleHistory))
	mux.HandleFunc("GET /ws", s.handleWS)

	return corsMiddleware(s.config.AllowedOrigins, loggingMiddleware(s.logger, mux))
}

// Run listens on Addr until ctx is cancelled, then shuts down gracefully
// and closes open websocket connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", "addr", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		closed := s.closeSessions()
		err := srv.Shutdown(shutdownCtx)
		s.logger.Info("http server stopped", "websockets_closed", closed)
		if err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) addSession(sub *notify.WSSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sub.ID()] = sub
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) closeSessions() int {
	s.mu.Lock()
	subs := make([]*notify.WSSubscriber, 0, len(s.sessions))
	for _, sub := range s.sessions {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			s.logger.Debug("failed to close websocket", "conn_id", sub.ID(), "error", err)
		}
	}
	return len(subs)
}
