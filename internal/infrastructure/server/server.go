package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	httpapi "github.com/GriffinCanCode/codelive/internal/api/http"
	"github.com/GriffinCanCode/codelive/internal/api/middleware"
	"github.com/GriffinCanCode/codelive/internal/api/ws"
	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
	"github.com/GriffinCanCode/codelive/internal/domain/playground"
	"github.com/GriffinCanCode/codelive/internal/domain/template"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/config"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/logging"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/storage"
	"github.com/GriffinCanCode/codelive/internal/relay"
	"github.com/GriffinCanCode/codelive/internal/sandbox"
)

// WebSocketPath is where the host page connects for live updates
const WebSocketPath = "/ws"

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	handler    http.Handler
	playground *playground.Playground
	relay      *relay.Relay
	store      storage.Backend
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.NewFor(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing CodeLive server",
		zap.String("addr", cfg.Address()),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("auto_run", cfg.Preview.AutoRun),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	backend, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	storeLogger := logger.Named("store")
	store := storage.Guard(backend, resilience.New("storage", resilience.Settings{
		Timeout:     cfg.Storage.BreakerTimeout.Std(),
		ReadyToTrip: resilience.ConsecutiveFailures(cfg.Storage.BreakerFailures),
		OnStateChange: func(name string, from, to resilience.State) {
			storeLogger.Warn("Storage breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}))
	logger.Info("Storage opened", zap.String("driver", cfg.Storage.Driver), zap.String("path", cfg.Storage.Path))

	gallery, err := template.Default()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	consoleRelay := relay.New(relay.Options{
		MaxLines: cfg.Console.MaxLines,
		Observer: metrics,
	})

	host := sandbox.NewHost(sandbox.Config{
		Timeout:           cfg.Sandbox.Timeout.Std(),
		MaxCallStackSize:  cfg.Sandbox.MaxCallStackSize,
		MaxConsoleEntries: cfg.Sandbox.MaxConsoleEntries,
		EnableConsole:     true,
		EnableDOM:         cfg.Sandbox.EnableDOM,
	}, consoleRelay.Sink, logger.Named("sandbox"))

	pg, err := playground.New(context.Background(), playground.Options{
		Store: buffer.NewStore(store,
			buffer.WithKey(cfg.Storage.Key),
			buffer.WithLogger(storeLogger),
		),
		Host:     host,
		Relay:    consoleRelay,
		Gallery:  gallery,
		AutoRun:  cfg.Preview.AutoRun,
		Delay:    cfg.Preview.Delay.Std(),
		Logger:   logger.Named("playground"),
		Observer: metrics,
	})
	if err != nil {
		host.Close()
		consoleRelay.Close()
		store.Close()
		return nil, fmt.Errorf("failed to start playground: %w", err)
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Named("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	// Register routes
	httpapi.NewHandlers(pg, metrics, logger.Named("api")).Register(router)
	wsHandler := ws.NewHandler(pg, ws.Options{
		AllowOrigins: cfg.Server.AllowOrigins,
		Metrics:      metrics,
		Logger:       logger.Named("ws"),
	})
	router.GET(WebSocketPath, wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:     router,
		handler:    compress(router),
		playground: pg,
		relay:      consoleRelay,
		store:      store,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}, nil
}

// compress gzips responses for clients that accept it. The WebSocket route
// is passed through untouched so the upgrade can hijack the connection.
func compress(next http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == WebSocketPath || strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler { return s.handler }

// Playground returns the application context
func (s *Server) Playground() *playground.Playground { return s.playground }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Address()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server", zap.Duration("timeout", s.config.Server.ShutdownTimeout.Std()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.playground.Close()
	s.relay.Close()

	var errs []error
	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close storage", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
	}

	// Sync logger before exit
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
