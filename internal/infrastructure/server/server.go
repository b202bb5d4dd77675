// Package server assembles the registry from configuration and runs its
// HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/dkourtesis/fusion-semantic-registry-sub001/internal/api/http"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/api/middleware"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/api/ws"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/index"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/registry"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/semantic"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/domain/session"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/config"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/events"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/logging"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/monitoring"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/infrastructure/tracing"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/providers/identity"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/providers/profiles"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	bus      *events.Bus
	users    *identity.Store
	sessions *session.Manager
	index    *index.Index
	registry *registry.Manager
	router   *gin.Engine
}

// NewServer creates a new server instance. Nothing is loaded from disk and
// no port is opened until Prepare and Run.
func NewServer(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Initializing semantic registry",
		zap.String("addr", cfg.Address()),
		zap.String("profile_source", cfg.Profiles.Source),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("registry", logger.Named("tracing"))

	users := identity.NewStore(cfg.Identity.BcryptCost, logger.Named("identity"))
	if cfg.Identity.UsersFile != "" {
		n, err := users.LoadFile(cfg.Identity.UsersFile)
		if err != nil {
			tracer.Close()
			return nil, err
		}
		logger.Info("Loaded publishers", zap.String("file", cfg.Identity.UsersFile), zap.Int("users", n))
	} else {
		logger.Warn("No users file configured; no publisher can log in")
	}

	sessions, err := session.NewManager(users,
		session.WithTTL(cfg.Session.TTL),
		session.WithShards(cfg.Session.Shards),
		session.WithLogger(logger.Named("session")),
		session.WithRecorder(metrics),
	)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	store := registry.NewStore()
	source, err := profileSource(cfg, store, logger)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	var matcher semantic.Matcher
	if cfg.Index.MatchScript != "" {
		script, err := semantic.LoadScriptMatcher(cfg.Index.MatchScript, cfg.Index.MatchTimeout)
		if err != nil {
			tracer.Close()
			return nil, err
		}
		logger.Info("Using scripted match policy", zap.String("script", cfg.Index.MatchScript))
		matcher = script
	}

	bus := events.NewBus(
		events.WithLogger(logger.Named("events")),
		events.WithRecorder(metrics),
		events.WithBuffer(cfg.Events.BufferSize),
		events.WithSink(natsSink(cfg, logger)),
	)

	idx, err := index.New(monitoring.InstrumentSource(source, metrics),
		index.WithLogger(logger.Named("index")),
		index.WithPublisher(bus),
		index.WithRecorder(metrics),
		index.WithOpTimeout(cfg.Index.OpTimeout),
		index.WithScanWorkers(cfg.Index.ScanWorkers),
		index.WithMatcher(matcher),
	)
	if err != nil {
		bus.Close()
		tracer.Close()
		return nil, err
	}

	reg, err := registry.NewManager(store, sessions, idx, registry.WithLogger(logger.Named("registry")))
	if err != nil {
		bus.Close()
		tracer.Close()
		return nil, err
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		bus:      bus,
		users:    users,
		sessions: sessions,
		index:    idx,
		registry: reg,
	}
	s.router = s.newRouter()

	logger.Info("Server initialized successfully")
	return s, nil
}

// natsSink returns nil when NATS is not configured or unreachable; the
// registry runs without external event delivery in that case.
func natsSink(cfg *config.Config, logger *logging.Logger) events.Sink {
	if cfg.Events.NATSURL == "" {
		return nil
	}
	sink, err := events.NewNATSSink(cfg.Events.NATSURL, cfg.Events.NATSSubject, logger.Named("nats"))
	if err != nil {
		logger.Warn("NATS unavailable, index events stay in-process", zap.Error(err))
		return nil
	}
	logger.Info("Publishing index events to NATS",
		zap.String("url", cfg.Events.NATSURL),
		zap.String("subject", cfg.Events.NATSSubject),
	)
	return sink
}

func profileSource(cfg *config.Config, store *registry.Store, logger *logging.Logger) (index.ProfileSource, error) {
	if cfg.Profiles.Source != config.SourceRemote {
		return store, nil
	}
	remote, err := profiles.NewRemote(profiles.Config{
		BaseURL: cfg.Profiles.RemoteURL,
		Timeout: cfg.Profiles.RemoteTimeout,
		RPS:     cfg.Profiles.RemoteRPS,
		Token:   cfg.Profiles.RemoteToken,
	}, logger.Named("profiles"))
	if err != nil {
		return nil, err
	}
	logger.Info("Using remote profile source", zap.String("url", cfg.Profiles.RemoteURL))
	return remote, nil
}

func (s *Server) newRouter() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(logging.RequestLogger(s.logger.Named("http")))
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = s.config.Server.CORSOrigins
	router.Use(middleware.CORS(cors))
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		rl.Burst = s.config.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(s.registry, s.sessions, s.index, s.metrics, s.logger.Named("api"))
	wsHandler := ws.NewHandler(s.bus, s.metrics, s.logger.Named("ws"))

	apihttp.RegisterRoutes(router, handlers, wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	return router
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

// Registry returns the registry facade
func (s *Server) Registry() *registry.Manager {
	return s.registry
}

// Index returns the match index
func (s *Server) Index() *index.Index {
	return s.index
}

// Prepare seeds the registry, restores the index snapshot and refreshes the
// index, as configured. Failures of individual steps are logged; only an
// invalid seed pattern or a corrupt snapshot abort startup.
func (s *Server) Prepare(ctx context.Context) error {
	if dir := s.config.Seed.Dir; dir != "" {
		seeder := registry.NewSeeder(s.registry, dir, s.config.Seed.Pattern, s.logger.Named("seed"))
		if _, err := seeder.Seed(ctx); err != nil {
			return err
		}
	}

	if path := s.config.Index.SnapshotPath; path != "" {
		err := s.index.LoadFile(path)
		switch {
		case err == nil:
			st := s.index.Stats()
			s.logger.Info("Index snapshot restored", zap.String("path", path), zap.Int("rfps", st.RFPs), zap.Int("pairs", st.Pairs))
		case fault.Is(err, fault.NoMatchFound):
			s.logger.Info("No index snapshot yet", zap.String("path", path))
		default:
			return err
		}
	}

	if s.config.Index.RefreshOnStart && len(s.index.RFPs()) > 0 {
		affected, err := s.index.Refresh(ctx)
		if err != nil {
			s.logger.Warn("Startup refresh failed; serving restored index", logging.Fault(err))
		} else {
			s.logger.Info("Index refreshed", zap.Int("affected", len(affected)))
		}
	}
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if s.config.Session.TTL > 0 {
		go s.sessions.Run(sweepCtx, s.config.Session.SweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fault.Wrap(fault.Configuration, "server.Run", err, "listen on %s", srv.Addr)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	return nil
}

// Close persists the index snapshot and releases background resources
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var firstErr error
	if path := s.config.Index.SnapshotPath; path != "" {
		if err := s.index.SaveFile(path); err != nil {
			s.logger.Error("Failed to save index snapshot", zap.String("path", path), zap.Error(err))
			firstErr = err
		} else {
			s.logger.Info("Index snapshot saved", zap.String("path", path))
		}
	}

	if err := s.bus.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.tracer.Close()
	_ = s.logger.Sync()

	return firstErr
}
