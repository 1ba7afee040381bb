// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ktasci/quizserve/internal/auth"
	"github.com/ktasci/quizserve/internal/catalog"
	"github.com/ktasci/quizserve/internal/config"
	"github.com/ktasci/quizserve/internal/entitlement"
	"github.com/ktasci/quizserve/internal/health"
	"github.com/ktasci/quizserve/internal/iap"
	"github.com/ktasci/quizserve/internal/logging"
	"github.com/ktasci/quizserve/internal/metrics"
	"github.com/ktasci/quizserve/internal/purchases"
	"github.com/ktasci/quizserve/internal/questions"
	"github.com/ktasci/quizserve/internal/ratelimit"
	"github.com/ktasci/quizserve/internal/realtime"
	"github.com/ktasci/quizserve/internal/security"
	"github.com/ktasci/quizserve/internal/traces"
	"github.com/ktasci/quizserve/internal/validation"
	"github.com/ktasci/quizserve/internal/webhooks"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	authMgr        *auth.Manager
	catalogStore   catalog.Store
	questionStore  questions.Store
	purchaseStore  purchases.Store
	purchaseSvc    *purchases.Service
	gate           *entitlement.Gate
	webhookStore   webhooks.Store
	dispatcher     *webhooks.Dispatcher
	realtimeHub    *realtime.Hub
	rateLimiter    *ratelimit.Limiter
	checks         *health.Registry
	appleClient    purchases.AppleClient
	googleClient   purchases.GoogleClient
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAppleClient sets a custom App Store verifier (for testing)
func WithAppleClient(c purchases.AppleClient) Option {
	return func(s *Server) {
		s.appleClient = c
	}
}

// WithGoogleClient sets a custom Play Store verifier (for testing)
func WithGoogleClient(c purchases.GoogleClient) Option {
	return func(s *Server) {
		s.googleClient = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set verifiers/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.catalogStore = catalog.NewPostgresStore(db)
		s.questionStore = questions.NewPostgresStore(db)
		s.purchaseStore = purchases.NewPostgresStore(db)
		s.webhookStore = webhooks.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.catalogStore = catalog.NewMemoryStore()
		s.questionStore = questions.NewMemoryStore()
		s.purchaseStore = purchases.NewMemoryStore()
		s.webhookStore = webhooks.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Caller identity
	s.authMgr = auth.NewManager(cfg.AuthSecret, 0)

	// Store verifiers (skipped when the deployment serves only one store)
	if s.appleClient == nil && cfg.AppleEnabled() {
		assertions, err := iap.NewAssertionIssuer(
			cfg.AppleIssuerID, cfg.AppleKeyID, cfg.AppleBundleID, []byte(cfg.ApplePrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to load apple signing key: %w", err)
		}
		s.appleClient = iap.NewAppleVerifier(cfg.AppleSharedSecret, cfg.AppleSandbox, assertions)
		s.logger.Info("apple receipt verification enabled", "sandbox", cfg.AppleSandbox)
	}
	if s.googleClient == nil && cfg.GoogleEnabled() {
		gv, err := iap.NewGoogleVerifier(ctx, cfg.GooglePackageName, cfg.GoogleCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to create google verifier: %w", err)
		}
		s.googleClient = gv
		s.logger.Info("google play verification enabled", "package", cfg.GooglePackageName)
	}

	// Realtime hub and webhook dispatcher for purchase events
	s.realtimeHub = realtime.NewHub(s.logger)
	s.dispatcher = webhooks.NewDispatcher(s.webhookStore)

	// Purchase pipeline
	svcOpts := []purchases.Option{
		purchases.WithNotifier(&eventNotifier{hub: s.realtimeHub, dispatcher: s.dispatcher}),
	}
	if s.appleClient != nil {
		svcOpts = append(svcOpts, purchases.WithApple(s.appleClient))
	}
	if s.googleClient != nil {
		svcOpts = append(svcOpts, purchases.WithGoogle(s.googleClient))
	}
	s.purchaseSvc = purchases.NewService(s.purchaseStore, svcOpts...)

	// Entitlement gate (paid categories require a recorded purchase)
	s.gate = entitlement.NewGate(s.catalogStore, s.purchaseSvc)

	s.registerHealthChecks()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   true,
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (mobile clients are not browsers, but the backoffice UI is)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB default, receipts fit well under it)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Caller identity (non-enforcing; endpoints opt into RequireAuth)
	s.router.Use(auth.Middleware(s.authMgr))

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time purchase events
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	// Catalog (public reads)
	catalog.NewHandlers(s.catalogStore).RegisterRoutes(v1)

	// Purchase verification and history
	purchases.NewHandlers(s.purchaseSvc).RegisterRoutes(v1)

	// Questions, gated on category entitlement
	gated := v1.Group("/categories/:id/questions")
	gated.Use(entitlement.Middleware(s.gate, "id"))
	questions.NewHandlers(s.questionStore).RegisterRoutes(gated)

	// Webhook subscription management (operator endpoints)
	webhookHandlers := webhooks.NewHandlers(s.webhookStore,
		webhooks.WithURLValidator(security.ValidateWebhookURL))
	operator := v1.Group("")
	operator.Use(auth.RequireAuth())
	webhookHandlers.RegisterRoutes(operator)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// registerHealthChecks wires the subsystem checkers run by /health.
func (s *Server) registerHealthChecks() {
	s.checks = health.NewRegistry()

	s.checks.Register("database", func(ctx context.Context) health.Status {
		if s.db == nil {
			return health.Status{Healthy: true, Detail: "in-memory"}
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(pingCtx); err != nil {
			return health.Status{Healthy: false}
		}
		return health.Status{Healthy: true}
	})

	if s.appleClient != nil {
		s.checks.Register("apple", func(context.Context) health.Status {
			return health.Status{Healthy: true, Detail: "configured"}
		})
	}
	if s.googleClient != nil {
		s.checks.Register("google", func(context.Context) health.Status {
			return health.Status{Healthy: true, Detail: "configured"}
		})
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.checks.Summary(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	stores := []string{}
	if s.appleClient != nil {
		stores = append(stores, "apple")
	}
	if s.googleClient != nil {
		stores = append(stores, "google")
	}
	c.JSON(http.StatusOK, gin.H{
		"name":        "quizserve",
		"description": "Quiz catalog and purchase verification API",
		"version":     "0.1.0",
		"stores":      stores,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when OTLP endpoint is unset)
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTraces = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Export connection pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, stats collector)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush pending spans
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
