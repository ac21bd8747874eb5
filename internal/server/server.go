package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/muurk/wsduplex/internal/config"
	"github.com/muurk/wsduplex/internal/discovery"
	"github.com/muurk/wsduplex/internal/executor"
	"github.com/muurk/wsduplex/internal/handlers"
	"github.com/muurk/wsduplex/internal/logging"
	"github.com/muurk/wsduplex/internal/session"
	"github.com/muurk/wsduplex/internal/transport"
	"github.com/muurk/wsduplex/internal/version"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Server accepts WebSocket upgrades and runs one session per connection.
type Server struct {
	config   *config.Config
	handler  session.Handler
	exec     *executor.Executor
	chanOpts transport.Options

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	advertiser *discovery.Advertiser
	sessions   map[string]*session.Session
	closing    bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownErr  error
}

// New creates a server that dispatches every frame to h. Frames are also
// captured to cfg.CaptureDir when it is set.
func New(cfg *config.Config, h session.Handler) (*Server, error) {
	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Server{
		config:  cfg,
		handler: handlers.Capture(cfg.CaptureDir, h),
		exec:    executor.New(executor.Options{Workers: cfg.Workers}),
		chanOpts: transport.Options{
			HandshakeTimeout: cfg.Timeouts.Handshake,
			IdleTimeout:      cfg.Timeouts.Idle,
			WriteTimeout:     cfg.Timeouts.Write,
			ReadLimit:        cfg.Limits.ReadLimit,
			ServerHeader:     version.ServerHeader(),
		},
		sessions:   make(map[string]*session.Session),
		shutdownCh: make(chan struct{}),
	}, nil
}

// Handler returns the HTTP handler serving the upgrade endpoint at the
// configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.serveWebSocket)
	return mux
}

// Start listens on the configured address and serves until ctx is
// cancelled or the process receives SIGINT or SIGTERM, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled or Shutdown
// is called. It shuts the server down before returning.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.Timeouts.Handshake,
		ErrorLog:          zap.NewStdLog(logging.GetLogger()),
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = listener.Close()
		return ErrServerClosed
	}
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	logging.Info("Server listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.config.Path),
		zap.Int("workers", s.exec.Workers()),
	)

	if s.config.Advertise.Enabled {
		s.advertise(listener.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.shutdownCh:
			// Shutdown was called directly; it owns the teardown.
			return nil
		}

		logging.Info("Shutdown requested, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Timeouts.Shutdown)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) advertise(addr net.Addr) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return
	}

	adv, err := discovery.Advertise(s.config.Advertise.Instance, tcpAddr.Port, s.config.Path, version.Version)
	if err != nil {
		// Advertisement is best effort; the endpoint works without it.
		logging.Warn("Failed to advertise server via mDNS", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.advertiser = adv
	s.mu.Unlock()

	logging.Info("Advertising server via mDNS",
		zap.String("service", discovery.ServiceType),
		zap.Int("port", tcpAddr.Port),
	)
}

// serveWebSocket upgrades one request and starts its session. The session
// outlives the request; the connection is hijacked by the upgrade.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ch := transport.NewWebSocketChannel(w, r, s.chanOpts)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	sess := session.New(ch, s.handler, s.exec.NewStrand(), session.Options{
		OutputReserve: s.config.Limits.OutputReserve,
		OnClose:       s.untrack,
	})
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	if err := sess.Start(r.Context()); err != nil {
		logging.Debug("Session did not start",
			zap.String("session_id", sess.ID()),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
	}
}

func (s *Server) untrack(sess *session.Session, _ error) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveSessions returns the number of open sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops accepting connections, closes every session and waits for
// them to finish, bounded by ctx. Only the first call does any work; later
// calls return its result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	close(s.shutdownCh)

	s.mu.Lock()
	s.closing = true
	httpServer := s.httpServer
	advertiser := s.advertiser
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if advertiser != nil {
		advertiser.Shutdown()
	}

	var errs []error

	// Stop accepting new connections. Upgraded connections are hijacked and
	// are not tracked by the HTTP server.
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			logging.Error("Error stopping HTTP server", zap.Error(err))
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	for _, sess := range sessions {
		logging.Info("Closing active session",
			zap.String("session_id", sess.ID()),
			zap.String("remote_addr", sess.RemoteAddr()),
		)
		sess.Close()
	}

	if err := waitSessions(ctx, sessions); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		errs = append(errs, err)
	} else {
		logging.Info("All sessions closed gracefully")
	}

	if err := s.exec.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("executor shutdown: %w", err))
	}

	logging.Sync()

	return errors.Join(errs...)
}

func waitSessions(ctx context.Context, sessions []*session.Session) error {
	for _, sess := range sessions {
		select {
		case <-sess.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for sessions: %w", ctx.Err())
		}
	}
	return nil
}
