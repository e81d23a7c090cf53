// Package grpc runs the gRPC endpoint orchestrators use to probe ved's
// health. It serves grpc.health.v1 and, optionally, server reflection.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/vedmemory/ved/pkg/grpc/interceptors"
	"github.com/vedmemory/ved/pkg/logger"
)

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("grpc: server already running")

// ErrForcedStop is returned by Stop when ctx expired before the graceful
// drain finished.
var ErrForcedStop = errors.New("grpc: graceful stop timed out")

// Server is a restartable health endpoint.
type Server struct {
	cfg   *Config
	log   logger.Logger
	check Checker

	mu  sync.RWMutex
	run *runState
}

// runState exists only between Start and Stop.
type runState struct {
	srv    *grpc.Server
	ln     net.Listener
	health *HealthServer
	cancel context.CancelFunc
	served chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = logger.Component(l, "grpc")
		}
	}
}

// WithHealthChecker sets the probe that decides SERVING or NOT_SERVING.
func WithHealthChecker(check Checker) Option {
	return func(s *Server) { s.check = check }
}

// New validates cfg. Nothing listens until Start.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("grpc: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("grpc: %w", err)
	}
	s := &Server{cfg: cfg, log: logger.Component(nil, "grpc")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start listens on cfg.Address and serves in the background. The health
// status is probed once before Start returns.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("grpc: listen %s: %w", s.cfg.Address, err)
	}

	srv := grpc.NewServer(s.serverOptions()...)
	if s.cfg.EnableReflection {
		reflection.Register(srv)
	}
	hs := NewHealthServer(s.check, s.log)
	grpc_health_v1.RegisterHealthServer(srv, hs.GetServer())

	ctx, cancel := context.WithCancel(context.Background())
	hs.Probe(ctx)
	if s.cfg.HealthInterval > 0 {
		go hs.Watch(ctx, s.cfg.HealthInterval)
	}

	run := &runState{srv: srv, ln: ln, health: hs, cancel: cancel, served: make(chan struct{})}
	go func() {
		defer close(run.served)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("gRPC serve failed", "error", err)
		}
	}()
	s.run = run

	s.log.Info("gRPC server listening", "address", ln.Addr().String(), "reflection", s.cfg.EnableReflection)
	return nil
}

// Stop marks health NOT_SERVING and drains connections. When ctx expires
// first the remaining connections are closed and ErrForcedStop returned.
// Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.run
	if run == nil {
		return nil
	}
	s.run = nil

	run.cancel()
	run.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		run.srv.GracefulStop()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		run.srv.Stop()
		err = ErrForcedStop
	}
	<-run.served
	return err
}

// Health returns the running health server, nil when stopped.
func (s *Server) Health() *HealthServer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return nil
	}
	return s.run.health
}

// Address returns the bound address while running, else the configured one.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run != nil {
		return s.run.ln.Addr().String()
	}
	return s.cfg.Address
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run != nil
}

func (s *Server) serverOptions() []grpc.ServerOption {
	opts := interceptors.ServerOptions(interceptors.Options{
		Log:     s.log,
		Tracing: s.cfg.EnableTracing,
	})
	if ka := s.cfg.Keepalive; ka != (KeepaliveConfig{}) {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: ka.MaxConnectionIdle,
			Time:              ka.Time,
			Timeout:           ka.Timeout,
		}))
	}
	return opts
}
