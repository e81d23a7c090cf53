// Package app assembles the ved service from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/vedmemory/ved/config"
	"github.com/vedmemory/ved/pkg/api"
	"github.com/vedmemory/ved/pkg/api/events"
	"github.com/vedmemory/ved/pkg/api/handlers"
	"github.com/vedmemory/ved/pkg/api/middleware"
	"github.com/vedmemory/ved/pkg/auth"
	"github.com/vedmemory/ved/pkg/cache"
	grpcpkg "github.com/vedmemory/ved/pkg/grpc"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/memory"
	"github.com/vedmemory/ved/pkg/metrics"
	"github.com/vedmemory/ved/pkg/storage"
	"github.com/vedmemory/ved/pkg/summarizer"
	"github.com/vedmemory/ved/pkg/telemetry/tracing"
	"github.com/vedmemory/ved/pkg/version"
)

const eventBuffer = 256

// State represents the lifecycle state of the App.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateError
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// App owns every long-lived component of the service.
type App struct {
	cfg *config.Config
	log logger.Logger

	mu       sync.Mutex
	state    State
	reloadMu sync.Mutex

	store         storage.Storage
	cache         cache.Cache
	metrics       *metrics.Manager
	summaryClient summarizer.Client

	retriever   memory.Retriever
	cached      *memory.CachedRetriever
	resumer     *memory.Resumer
	broadcaster *events.Broadcaster
	eventCh     chan events.Event
	websocket   *handlers.WebSocketHandler
	rateLimiter *middleware.RateLimiter
	httpServer  *api.HTTPServer
	grpcServer  *grpcpkg.Server
	worker      *summarizer.Worker

	shutdownTracing tracing.ShutdownFunc
}

// New builds the App. Storage and cache are opened here so configuration
// mistakes surface before anything starts listening. Close releases them
// when Run is never called.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if log == nil {
		log = logger.Global()
	}

	a := &App{cfg: cfg, log: logger.Component(log, "app"), state: StateIdle}
	for _, opt := range opts {
		opt(a)
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:        cfg.App.Name,
		Version:     version.Version,
		Environment: cfg.App.Environment,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracing = shutdownTracing

	if err := a.build(ctx, log); err != nil {
		a.release(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, log logger.Logger) error {
	cfg := a.cfg

	if a.metrics == nil {
		a.metrics = metrics.NewManager(metrics.Config{
			Enabled: cfg.Metrics.Enabled,
			Port:    cfg.Metrics.Port,
			Path:    cfg.Metrics.Path,
		})
	}

	if a.store == nil {
		store, err := OpenStorage(ctx, cfg.Storage, log)
		if err != nil {
			return err
		}
		a.store = store
	}

	if a.cache == nil {
		c, err := OpenCache(ctx, cfg.Cache)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		a.cache = c
	}

	engine := memory.NewEngine(a.store, memory.WithLogger(log), memory.WithRecorder(a.metrics))
	a.retriever = engine
	if a.cache != nil {
		a.cached = memory.NewCachedRetriever(engine, a.cache, cfg.Cache.TTL,
			memory.WithCacheLogger(log),
			memory.WithCacheRecorder(a.metrics),
		)
		a.retriever = a.cached
		a.log.Info("Retrieval cache enabled", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)
	}
	a.resumer = memory.NewResumer(a.store)

	a.broadcaster = events.NewBroadcaster(a.metrics)
	a.eventCh = a.broadcaster.Subscribe(eventBuffer)
	a.websocket = handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})

	issuer, err := a.tokenIssuer()
	if err != nil {
		return err
	}
	authn := auth.NewAuthenticator(issuer, a.store, auth.WithPasswordCost(cfg.Auth.BcryptCost))

	hooks := handlers.Hooks{Events: a.broadcaster}
	if a.cached != nil {
		hooks.Cache = a.cached
	}

	h := &api.Handlers{
		Auth:          handlers.NewAuthHandler(a.store, authn, issuer, cfg.Auth.BcryptCost, log),
		Users:         handlers.NewUserHandler(a.store, log),
		Projects:      handlers.NewProjectHandler(a.store, hooks, log),
		Conversations: handlers.NewConversationHandler(a.store, hooks, log),
		Summaries:     handlers.NewSummaryHandler(a.store, hooks, log),
		Resume:        handlers.NewResumeHandler(a.resumer, log),
		Memory:        handlers.NewMemoryHandler(a.retriever, log),
		Health:        handlers.NewHealthHandler(a.store, cfg.Storage.Type),
		WebSocket:     a.websocket,
		Authenticator: authn,
	}
	if a.metrics.Enabled() {
		h.Metrics = a.metrics
		h.MetricsHandler = a.metrics.Handler()
	}
	if cfg.Server.RateLimit.Enabled {
		a.rateLimiter = middleware.NewRateLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
		h.RateLimiter = a.rateLimiter
	}
	a.httpServer = api.NewHTTPServer(cfg, log, h)

	if cfg.Server.GRPC.Enabled {
		gcfg := cfg.Server.GRPC.ToGRPCConfig(cfg.Server.Host)
		gcfg.EnableTracing = cfg.Tracing.Enabled
		srv, err := grpcpkg.New(gcfg,
			grpcpkg.WithLogger(log),
			grpcpkg.WithHealthChecker(a.store.Ping),
		)
		if err != nil {
			return fmt.Errorf("create gRPC server: %w", err)
		}
		a.grpcServer = srv
	}

	if cfg.Summarizer.Enabled {
		if err := a.buildSummarizer(log); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) tokenIssuer() (*auth.TokenIssuer, error) {
	secret := a.cfg.Auth.SecretKey
	if secret == "" {
		// Tokens signed with a throwaway key stop verifying on restart.
		secret = uuid.NewString()
		a.log.Warn("auth.secret_key is empty, using a random key for this process")
	}
	issuer, err := auth.NewTokenIssuer(auth.Config{
		SecretKey: secret,
		Algorithm: a.cfg.Auth.Algorithm,
		TTL:       a.cfg.Auth.AccessTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}
	return issuer, nil
}

func (a *App) buildSummarizer(log logger.Logger) error {
	client := a.summaryClient
	if client == nil {
		oc, err := summarizer.NewOpenAIClient(summarizer.OpenAIConfig{
			APIKey:  a.cfg.Summarizer.APIKey,
			BaseURL: a.cfg.Summarizer.BaseURL,
			Model:   a.cfg.Summarizer.Model,
		})
		if err != nil {
			return fmt.Errorf("create summarizer client: %w", err)
		}
		client = oc
	}

	opts := []summarizer.Option{
		summarizer.WithLogger(log),
		summarizer.WithPublisher(a.broadcaster),
		summarizer.WithRecorder(a.metrics),
	}
	if a.cached != nil {
		opts = append(opts, summarizer.WithInvalidator(a.cached))
	}
	a.worker = summarizer.NewWorker(a.store, client, summarizer.Config{
		Interval:      a.cfg.Summarizer.Interval,
		BatchSize:     a.cfg.Summarizer.BatchSize,
		MaxInputChars: a.cfg.Summarizer.MaxInputChars,
		Concurrency:   a.cfg.Summarizer.Concurrency,
		MaxAttempts:   a.cfg.Summarizer.MaxAttempts,
	}, opts...)
	return nil
}

// Run starts every enabled server and background job and blocks until ctx
// is cancelled or a server fails. Everything is shut down before it
// returns, bounded by server.http.shutdown_timeout.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateRunning {
		a.mu.Unlock()
		return &AlreadyRunningError{}
	}
	if a.state == StateStopped {
		a.mu.Unlock()
		return errors.New("app has been stopped")
	}
	a.state = StateRunning
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.httpServer.Start(); err != nil {
			errCh <- &ServerError{Server: "http", Cause: err}
		}
	}()

	if a.grpcServer != nil {
		if err := a.grpcServer.Start(); err != nil {
			cancel()
			a.shutdown(runCtx, &wg)
			a.setState(StateError)
			return &ServerError{Server: "grpc", Cause: err}
		}
	}

	if a.metrics.Enabled() && a.cfg.Metrics.Port != a.cfg.Server.Port {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.log.Info("Starting metrics server", "port", a.cfg.Metrics.Port, "path", a.cfg.Metrics.Path)
			if err := a.metrics.StartServer(runCtx, a.cfg.Metrics.Port, a.cfg.Metrics.Path); err != nil {
				errCh <- &ServerError{Server: "metrics", Cause: err}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.websocket.Forward(runCtx, a.eventCh)
	}()

	if a.worker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.worker.Run(runCtx); err != nil {
				a.log.Error("Summarizer stopped", "error", err)
			}
		}()
	}

	a.log.Info("ved is running",
		"http_port", a.cfg.Server.Port,
		"grpc_enabled", a.grpcServer != nil,
		"metrics_enabled", a.metrics.Enabled(),
		"summarizer_enabled", a.worker != nil,
		"storage", a.cfg.Storage.Type,
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutdown requested")
	case runErr = <-errCh:
		a.log.Error("Server failed", "error", runErr)
	}

	cancel()
	a.shutdown(context.Background(), &wg)

	if runErr != nil {
		a.setState(StateError)
		return runErr
	}
	a.setState(StateStopped)
	return nil
}

func (a *App) shutdown(parent context.Context, wg *sync.WaitGroup) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), a.cfg.Server.HTTP.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Error("Error shutting down HTTP server", "error", err)
	}
	if a.grpcServer != nil && a.grpcServer.IsRunning() {
		if err := a.grpcServer.Stop(shutdownCtx); err != nil {
			a.log.Error("Error stopping gRPC server", "error", err)
		}
	}
	a.websocket.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.log.Warn("Background jobs did not stop before the shutdown timeout")
	}

	a.release(shutdownCtx)
	a.log.Info("ved stopped")
}

// release closes resources owned by the App. It is safe to call more than once.
func (a *App) release(ctx context.Context) {
	if a.broadcaster != nil {
		a.broadcaster.Close()
		a.broadcaster = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Error("Error closing cache", "error", err)
		}
		a.cache = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("Error closing storage", "error", err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.log.Error("Error shutting down tracing", "error", err)
		}
		a.shutdownTracing = nil
	}
}

// Close releases storage, cache and tracing for an App that was built but
// never run.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		return errors.New("app is running, cancel the Run context instead")
	}
	if a.state != StateStopped {
		a.release(ctx)
		a.state = StateStopped
	}
	return nil
}

func (a *App) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// State returns the current lifecycle state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler()
}

// Store returns the storage backend.
func (a *App) Store() storage.Storage {
	return a.store
}

// Retriever returns the memory retriever, cached when caching is enabled.
func (a *App) Retriever() memory.Retriever {
	return a.retriever
}

// Summarizer returns the summary worker, or nil when it is disabled.
func (a *App) Summarizer() *summarizer.Worker {
	return a.worker
}

// ApplyHotReload applies the settings that may change without a restart.
func (a *App) ApplyHotReload(cfg *config.Config) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	prev := config.ExtractHotReloadable(a.cfg)
	next := config.ExtractHotReloadable(cfg)
	if !prev.Changed(next) {
		return
	}

	if next.LogLevel != prev.LogLevel {
		a.log.SetLevel(logger.ParseLevel(next.LogLevel))
		a.log.Info("Log level changed", "from", prev.LogLevel, "to", next.LogLevel)
	}

	if a.rateLimiter != nil && next.RateLimitEnabled {
		a.rateLimiter.SetLimit(next.RateLimitRPS, next.RateLimitBurst)
		a.log.Info("Rate limit changed", "rps", next.RateLimitRPS, "burst", next.RateLimitBurst)
	} else if next.RateLimitEnabled != prev.RateLimitEnabled {
		a.log.Warn("Enabling or disabling the rate limiter requires a restart")
	}

	a.cfg.Log.Level = next.LogLevel
	a.cfg.Server.RateLimit.RequestsPerSecond = next.RateLimitRPS
	a.cfg.Server.RateLimit.Burst = next.RateLimitBurst
}
