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
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fuelmap/fuelmap/internal/auth"
	"github.com/fuelmap/fuelmap/internal/config"
	"github.com/fuelmap/fuelmap/internal/geocode"
	"github.com/fuelmap/fuelmap/internal/health"
	"github.com/fuelmap/fuelmap/internal/idgen"
	"github.com/fuelmap/fuelmap/internal/logging"
	"github.com/fuelmap/fuelmap/internal/metrics"
	"github.com/fuelmap/fuelmap/internal/moderation"
	"github.com/fuelmap/fuelmap/internal/ratelimit"
	"github.com/fuelmap/fuelmap/internal/realtime"
	"github.com/fuelmap/fuelmap/internal/reputation"
	"github.com/fuelmap/fuelmap/internal/security"
	"github.com/fuelmap/fuelmap/internal/stations"
	"github.com/fuelmap/fuelmap/internal/trust"
	"github.com/fuelmap/fuelmap/internal/users"
	"github.com/fuelmap/fuelmap/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db           *sql.DB // nil if using in-memory
	userStore    users.Store
	stationStore stations.Store
	authMgr      *auth.Manager
	geocoder     geocode.Geocoder
	ledger       *reputation.Ledger
	resolver     *stations.Resolver
	workflow     *moderation.Workflow
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry

	router       *gin.Engine
	httpSrv      *http.Server
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

// WithGeocoder sets a custom geocoder (for testing)
func WithGeocoder(g geocode.Geocoder) Option {
	return func(s *Server) {
		s.geocoder = g
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set geocoder/logger)
	for _, opt := range opts {
		opt(s)
	}

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

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.userStore = users.NewPostgresStore(db)
		s.stationStore = stations.NewPostgresStore(db)
		s.authMgr = auth.NewManager(auth.NewPostgresStore(db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.checks.Register("database", func(ctx context.Context) health.Status {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(pingCtx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.userStore = users.NewMemoryStore()
		s.stationStore = stations.NewMemoryStore()
		s.authMgr = auth.NewManager(auth.NewMemoryStore())
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Create geocoder if not injected
	if s.geocoder == nil {
		if cfg.IsProduction() {
			// The geocoder endpoint is used for server-side requests, so an
			// internal address here would be an SSRF vector.
			if err := security.ValidateEndpointURL(cfg.NominatimURL); err != nil {
				return nil, fmt.Errorf("geocoder endpoint rejected: %w", err)
			}
		}
		s.geocoder = geocode.NewNominatimClient(s.logger,
			geocode.WithBaseURL(cfg.NominatimURL),
			geocode.WithUserAgent(cfg.UserAgent),
			geocode.WithHTTPClient(&http.Client{Timeout: cfg.GeocodeTimeout}),
		)
		s.logger.Info("geocoding enabled", "url", cfg.NominatimURL)
	}

	// Domain wiring: reputation ledger, station resolver, moderation workflow
	s.ledger = reputation.New(s.userStore)
	s.resolver = stations.NewResolver(s.stationStore, s.geocoder)

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	s.workflow = moderation.NewWorkflow(s.stationStore, s.resolver, s.ledger, s.logger,
		moderation.WithEvents(s.realtimeHub))

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
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware(s.corsOrigins()))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limCfg := ratelimit.DefaultConfig()
	limCfg.RequestsPerMinute = s.cfg.RateLimitPerMin
	s.rateLimiter = ratelimit.New(limCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

// corsOrigins parses the configured comma-separated origin list.
// Development defaults to allowing everything.
func (s *Server) corsOrigins() []string {
	if s.cfg.CORSOrigins == "" {
		return []string{"*"}
	}
	parts := strings.Split(s.cfg.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
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

	// WebSocket for real-time price streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :id URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.IDParamMiddleware("id"))

	stationHandler := stations.NewHandler(s.stationStore, s.geocoder)
	userHandler := users.NewHandler(s.userStore)
	moderationHandler := moderation.NewHandler(s.workflow)
	authHandler := auth.NewHandler(s.authMgr)

	// PUBLIC ROUTES (no auth required)
	// Station browsing and badge catalog reads
	stationHandler.RegisterRoutes(v1)
	userHandler.RegisterRoutes(v1)

	// REGISTRATION (public but returns API key)
	v1.POST("/users", s.registerUserWithAPIKey)

	// AUTH INFO (public)
	v1.GET("/auth/info", authHandler.Info)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr), auth.RequireAuth())
	{
		userHandler.RegisterProtectedRoutes(protected)

		// API key management
		protected.GET("/auth/keys", authHandler.ListKeys)
		protected.POST("/auth/keys", authHandler.CreateKey)
		protected.DELETE("/auth/keys/:keyId", authHandler.RevokeKey)
	}

	// Price submissions and reports get a tighter burst limiter on top of
	// the global per-IP one. The per-station cooldown still applies inside
	// the workflow.
	submissions := v1.Group("")
	submissions.Use(
		auth.Middleware(s.authMgr),
		auth.RequireAuth(),
		ratelimit.MiddlewareWithConfig(ratelimit.Config{
			RequestsPerMinute: 30,
			BurstSize:         5,
			CleanupInterval:   time.Minute,
		}),
	)
	moderationHandler.RegisterProtectedRoutes(submissions)

	// ADMIN ROUTES (require an admin account)
	admin := v1.Group("/admin")
	admin.Use(auth.Middleware(s.authMgr), auth.RequireAuth(),
		auth.RequireAdmin(&storeAdminChecker{s.userStore}))
	{
		userHandler.RegisterAdminRoutes(admin)
		stationHandler.RegisterAdminRoutes(admin)
		moderationHandler.RegisterAdminRoutes(admin)
	}
}

// storeAdminChecker adapts users.Store to auth.AdminChecker
type storeAdminChecker struct {
	store users.Store
}

func (a *storeAdminChecker) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := a.store.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// registerUserWithAPIKey handles POST /v1/users
// This wraps account creation to also generate and return an API key
func (s *Server) registerUserWithAPIKey(c *gin.Context) {
	ctx := c.Request.Context()

	// Parse request
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "username and a valid email are required",
		})
		return
	}

	// Sanitize string fields
	req.Username = validation.SanitizeString(req.Username, 50)
	req.Email = validation.SanitizeString(req.Email, 200)

	u := &users.User{
		ID:                idgen.WithPrefix("usr_"),
		Username:          req.Username,
		Email:             req.Email,
		TrustLevel:        trust.LevelFor(0),
		Badges:            []users.Badge{},
		ReputationHistory: []users.ReputationEntry{},
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.userStore.Create(ctx, u); err != nil {
		if errors.Is(err, users.ErrExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "user_exists",
				"message": "Username or email is already registered",
			})
			return
		}
		s.logger.Error("failed to create user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to register user",
		})
		return
	}

	// Generate API key for the new user
	rawKey, keyInfo, err := s.authMgr.GenerateKey(ctx, u.ID, "Primary key")
	if err != nil {
		s.logger.Error("failed to generate API key", "error", err)
		// User was created but key generation failed
		// Still return success but note the issue
		c.JSON(http.StatusCreated, gin.H{
			"user":    u,
			"warning": "User registered but API key generation failed. Contact support.",
		})
		return
	}

	s.logger.Info("user registered with API key",
		"userId", u.ID,
		"username", u.Username,
		"keyId", keyInfo.ID,
	)

	// Return user and API key
	c.JSON(http.StatusCreated, gin.H{
		"user":    u,
		"apiKey":  rawKey,
		"keyId":   keyInfo.ID,
		"warning": "Store this API key securely. It will not be shown again.",
		"usage":   "Include 'Authorization: Bearer <apiKey>' header in requests.",
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
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
	c.JSON(http.StatusOK, gin.H{
		"name":        "FuelMap",
		"description": "Crowdsourced fuel price reporting API",
		"version":     "0.1.0",
		"fuelTypes":   stations.FuelTypes,
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
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start DB stats collector
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
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

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

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
