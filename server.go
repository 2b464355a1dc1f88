// Package worklogmcp wires the Worklog MCP server together: configuration,
// session registry, transport gate, and capability directory, under a
// lifecycle controller that owns the listening socket and the ordered
// shutdown sequence.
package worklogmcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/worklog-dev/worklog-mcp-go/internal/config"
	"github.com/worklog-dev/worklog-mcp-go/mcpservice"
	"github.com/worklog-dev/worklog-mcp-go/sessions"
	"github.com/worklog-dev/worklog-mcp-go/streaminghttp"
	"github.com/worklog-dev/worklog-mcp-go/worklog"
)

// Server owns the listening socket and coordinates the components' startup
// and teardown. The socket is bound in Start and owned exclusively by the
// Server; the session map is owned by the registry.
type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	reg     *sessions.Registry
	service *mcpservice.Server
	httpSrv *http.Server

	mu       sync.Mutex
	listener net.Listener
	shutdown bool

	readyOnce sync.Once
	readyCh   chan struct{}
}

// Option configures server construction.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
}

// WithLogger supplies the process logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithUpstreamHTTPClient substitutes the HTTP client used against the
// Worklog API (useful for tests).
func WithUpstreamHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// NewServer assembles a server from the configuration snapshot. The socket
// is not bound until Start.
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	clientOpts := []worklog.ClientOption{worklog.WithClientLogger(log)}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, worklog.WithHTTPClient(o.httpClient))
	}
	client, err := worklog.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.AccountID, clientOpts...)
	if err != nil {
		return nil, err
	}
	service := worklog.NewService(client)

	mode := sessions.ModeStateful
	if !cfg.Stateful {
		mode = sessions.ModeStateless
	}
	reg := sessions.NewRegistry(mode, sessions.WithLogger(log))

	handler, err := streaminghttp.New(cfg.BasePath, reg, service,
		streaminghttp.WithLogger(log),
		streaminghttp.WithAllowedHosts(cfg.AllowedHosts),
		streaminghttp.WithAllowedOrigins(cfg.AllowedOrigins),
	)
	if err != nil {
		return nil, fmt.Errorf("wire transport gate: %w", err)
	}

	return &Server{
		cfg:     cfg,
		log:     log,
		reg:     reg,
		service: service,
		httpSrv: &http.Server{Handler: handler},
		readyCh: make(chan struct{}),
	}, nil
}

// Registry exposes the session registry, primarily for tests and
// diagnostics.
func (s *Server) Registry() *sessions.Registry { return s.reg }

// Start binds the listening socket and serves until Shutdown. A bind failure
// propagates immediately; a server closed by Shutdown returns nil.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen (%s): %w", addr, err)
	}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()
	s.signalReady()
	s.log.Info("listening", slog.String("addr", ln.Addr().String()), slog.String("path", s.cfg.BasePath), slog.Bool("stateful", s.cfg.Stateful))

	serveErr := s.httpSrv.Serve(ln)
	if errors.Is(serveErr, http.ErrServerClosed) {
		return nil
	}
	if serveErr != nil {
		return fmt.Errorf("http serve: %w", serveErr)
	}
	return nil
}

func (s *Server) signalReady() {
	s.readyOnce.Do(func() { close(s.readyCh) })
}

// WaitUntilReady blocks until the listening socket is bound or ctx ends.
func (s *Server) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound address, or nil before Start / after Shutdown.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listening reports whether the socket is currently accepting connections.
func (s *Server) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil && !s.shutdown
}

// Shutdown tears the server down in a fixed order: stop accepting, wait for
// the socket to close, drain the session registry, release the directory.
// Idempotent; teardown failures are logged and swallowed so process exit
// always proceeds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("shutdown.http", slog.String("err", err.Error()))
	}
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()

	s.reg.CloseAll()
	s.service = nil
	s.log.Info("shutdown.complete")
	return nil
}

// StartServer builds and starts a server, returning once it is accepting
// connections. The returned stop func is one-shot and safe to call from
// multiple goroutines; it is also invoked automatically when ctx is
// canceled, so wiring ctx to process signals gives signal-triggered shutdown
// that runs exactly once.
func StartServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, func(context.Context) error, error) {
	srv, err := NewServer(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	var stopOnce sync.Once
	stop := func(stopCtx context.Context) error {
		var stopErr error
		stopOnce.Do(func() {
			if err := srv.Shutdown(stopCtx); err != nil {
				stopErr = err
				return
			}
			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					stopErr = err
				}
			case <-stopCtx.Done():
				stopErr = stopCtx.Err()
			}
		})
		return stopErr
	}

	readyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	select {
	case err := <-errCh:
		// Start failed before the socket came up (bind error).
		if err == nil {
			err = fmt.Errorf("server exited before becoming ready")
		}
		return nil, nil, err
	case <-readyCtx.Done():
		_ = stop(context.Background())
		return nil, nil, fmt.Errorf("server failed to become ready: %w", readyCtx.Err())
	case <-srv.readyCh:
	}

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = stop(shCtx)
	}()

	return srv, stop, nil
}
