package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/WindowArranger/backend/internal/api/http"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/api/middleware"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/memory"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/orchestrator"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/kv"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/providers/settings"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/transport"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	arranger   *orchestrator.Orchestrator
	closeStore func() error
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	stopUptime chan struct{}
}

// NewServer opens the durable store and wires the arranger and its control API.
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing window arranger",
		zap.String("addr", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)),
		zap.String("storage", cfg.Storage.Path),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	db, err := kv.OpenSQLite(context.Background(), cfg.Storage.Path, cfg.Storage.CompressAbove, logger.Component("kv"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return newServer(cfg, logger, metrics, reg, db, db.Close, dialer(cfg))
}

// newServer wires everything around an already opened store.
func newServer(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics, gatherer prometheus.Gatherer,
	store kv.Store, closeStore func() error, dial transport.Dialer) (*Server, error) {
	windows := registry.NewManager(store, logger.Component("registry"))

	prefs := settings.NewProvider(store, logger.Component("settings"))
	if cfg.Arranger.SettingsFile != "" {
		if err := prefs.LoadDefaults(cfg.Arranger.SettingsFile); err != nil {
			if closeStore != nil {
				_ = closeStore()
			}
			return nil, fmt.Errorf("failed to load settings defaults: %w", err)
		}
	}

	mem := memory.NewManager(store, windows, logger.Component("memory")).WithMetrics(metrics)

	breaker := resilience.New("app", resilience.Settings{
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	client := transport.NewClient(dial, windows, logger.Component("transport")).
		WithTimeout(cfg.App.RequestTimeout).
		WithMetrics(metrics).
		WithBreaker(breaker)

	hub := ws.NewHub(logger.Component("ws")).WithMetrics(metrics)

	arranger := orchestrator.New(orchestrator.Config{
		WindowCreatedDelay: cfg.Arranger.WindowCreatedDelay,
		BackupInterval:     cfg.Arranger.BackupInterval,
	}, orchestrator.Deps{
		Transport: client,
		Memory:    mem,
		Windows:   windows,
		Settings:  prefs,
		Notifier:  hub,
	}, logger.Component("orchestrator")).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(arranger, windows, prefs, logger.Component("api")).WithMetrics(metrics)
	handlers.RegisterRoutes(router)
	router.GET("/events", hub.HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		arranger:   arranger,
		closeStore: closeStore,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		stopUptime: make(chan struct{}),
	}, nil
}

// dialer picks the native messaging transport when a command is
// configured, the WebSocket transport otherwise.
func dialer(cfg *config.Config) transport.Dialer {
	if fields := strings.Fields(cfg.App.Command); len(fields) > 0 {
		return transport.NativeDialer(fields[0], fields[1:]...)
	}
	return transport.WebSocketDialer(cfg.App.URL)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Arranger returns the orchestrator
func (s *Server) Arranger() *orchestrator.Orchestrator {
	return s.arranger
}

// Run starts the arranger if configured and serves HTTP until Close.
func (s *Server) Run() error {
	go s.metrics.Run(s.stopUptime)

	if s.config.Arranger.Autostart {
		go func() {
			if err := s.arranger.Start(context.Background()); err != nil {
				s.logger.Warn("Autostart failed", zap.Error(err))
			}
		}()
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the arranger, drains HTTP and closes the store.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.arranger.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop arranger", zap.Error(err))
	}

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
	}
	close(s.stopUptime)

	if s.closeStore != nil {
		if err := s.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
