package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/skygraph/internal/core/observability/log"
)

// Config holds server configuration
type Config struct {
	ListenAddr string
	FeedPath   string
	// MetricsPath is empty when metrics are not served.
	MetricsPath string

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// Token guards the feed; empty means open.
	Token string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:        "127.0.0.1:8080",
		FeedPath:          "/feed",
		MetricsPath:       "/metrics",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// HealthFunc reports whether the process can serve; nil means healthy.
type HealthFunc func() error

type Option func(*Server)

func WithLogger(l log.Log) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics serves h on Config.MetricsPath.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func WithHealth(fn HealthFunc) Option {
	return func(s *Server) { s.health = fn }
}

// Server exposes the renderer feed, metrics and health over HTTP.
type Server struct {
	config  Config
	logger  log.Log
	feed    http.Handler
	metrics http.Handler
	health  HealthFunc
	auth    *TokenAuth

	mu         sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
	serveDone  chan struct{}

	running int32 // atomic bool
	closed  int32 // atomic bool
}

// NewServer wires the routes; feed is usually a *stream.Hub.
func NewServer(config Config, feed http.Handler, opts ...Option) (*Server, error) {
	if config.ListenAddr == "" || feed == nil {
		return nil, ErrInvalidConfig
	}
	if config.FeedPath == "" {
		config.FeedPath = "/feed"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}

	s := &Server{
		config: config,
		logger: log.NewNop(),
		feed:   feed,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.String("component", "server"))
	s.auth = NewTokenAuth(config.Token, s.logger)

	s.logger.Info("Server created",
		log.String("listen_addr", config.ListenAddr),
		log.String("feed_path", config.FeedPath),
		log.Bool("auth", config.Token != ""))
	return s, nil
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.config.FeedPath, s.auth.Wrap(s.feed))
	if s.metrics != nil && s.config.MetricsPath != "" {
		mux.Handle(s.config.MetricsPath, s.metrics)
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, code := "ok", http.StatusOK
	if s.health != nil {
		if err := s.health(); err != nil {
			status, code = err.Error(), http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// Start listens and serves in the background.
func (s *Server) Start(_ context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	serveDone := make(chan struct{})

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.serveDone = serveDone
	s.mu.Unlock()

	go func() {
		defer close(serveDone)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed", log.Error(err))
		}
	}()

	s.logger.Info("Server listening", log.String("addr", listener.Addr().String()))
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down, waiting at most the configured shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	s.mu.RLock()
	httpServer, serveDone := s.httpServer, s.serveDone
	s.mu.RUnlock()

	err := httpServer.Shutdown(ctx)
	<-serveDone

	s.logger.Info("Server stopped")
	return err
}

// Run starts the server and stops it when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop(context.Background())
}

// Close closes the server and releases all resources
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil // Already closed
	}
	if atomic.LoadInt32(&s.running) == 1 {
		return s.Stop(context.Background())
	}
	return nil
}
