package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/eventlog"
	"github.com/hookline/hookline/internal/fanout"
	"github.com/hookline/hookline/internal/watch"
	"github.com/hookline/hookline/internal/web/handler"
	"github.com/hookline/hookline/internal/web/middleware"
)

// Server is the hookline telemetry server: ingest, historical reads, stats,
// and the live event stream.
type Server struct {
	cfg  *config.Config
	port int
	srv  *http.Server
}

// NewServer creates a new server.
func NewServer(cfg *config.Config, port int) *Server {
	return &Server{
		cfg:  cfg,
		port: port,
	}
}

// ListenAndServe starts the server and blocks until the context is
// cancelled. Shutdown closes all client sessions without draining the
// fan-out queue.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.EnsureDirs(); err != nil {
		return err
	}
	logPath, err := s.cfg.LogPath()
	if err != nil {
		return fmt.Errorf("get log path: %w", err)
	}

	// Touch the log so the watcher starts immediately instead of polling
	// for the first producer append.
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create log: %w", err)
	}
	f.Close()

	elog := eventlog.New(logPath)

	queue := fanout.NewQueue()
	defer queue.Close()

	watcher := watch.New(logPath, queue)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	h := handler.New(elog, queue, watcher)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/event", h.Ingest)
	mux.HandleFunc("GET /api/events", h.Events)
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /ws", h.Stream)

	s.srv = &http.Server{
		Addr: fmt.Sprintf(":%d", s.port),
		Handler: middleware.Chain(mux,
			middleware.CORS(),
			middleware.RateLimit(ctx, middleware.DefaultRateLimitConfig()),
		),
		ReadTimeout: 5 * time.Second,
		// WriteTimeout is deliberately unset (0 = no timeout): /ws
		// connections are long-lived, and a server-wide write timeout
		// would sever every stream client on a quiet feed. Stuck sockets
		// are handled by the per-write deadline in the stream handler.
		IdleTimeout: 120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("listening", "addr", fmt.Sprintf("http://localhost:%d", s.port), "log", logPath)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return g.Wait()
}
