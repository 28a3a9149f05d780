package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/supabase/supabase-sub056/internal/config"
	"github.com/supabase/supabase-sub056/internal/database"
	"github.com/supabase/supabase-sub056/internal/middleware"
	"github.com/supabase/supabase-sub056/internal/observability"
	"github.com/supabase/supabase-sub056/internal/ratelimit"
	"github.com/supabase/supabase-sub056/internal/sanitize"
)

// HealthChecker pings a backing service
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies are the collaborators a Server is built from. Leave DB and
// Schema nil when the database is disabled.
type Dependencies struct {
	DB             HealthChecker
	Schema         *database.SchemaCache
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
	RateLimitStore ratelimit.Store
	SchemaNotifier SchemaNotifier
	Version        string
}

// SchemaNotifier announces a schema cache refresh to other instances
type SchemaNotifier interface {
	NotifyRefresh(ctx context.Context, tables int) error
}

// Server represents the HTTP server
type Server struct {
	app           *fiber.App
	config        *config.Config
	db            HealthChecker
	schema        *database.SchemaCache
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	limiterStore  ratelimit.Store
	notifier      SchemaNotifier
	sanitizerOpts []sanitize.Option
	sanitizer     *sanitize.Sanitizer
	version       string
	startTime     time.Time
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	app := fiber.New(fiber.Config{
		ServerHeader:          "studiokit",
		AppName:               "studiokit " + version,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	sanitizerOpts := sanitize.ConfigOptions(cfg.Sanitizer)

	// Domain counters are recorded even when the endpoint is not exposed
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}

	s := &Server{
		app:           app,
		config:        cfg,
		db:            deps.DB,
		schema:        deps.Schema,
		metrics:       metrics,
		tracer:        deps.Tracer,
		limiterStore:  deps.RateLimitStore,
		notifier:      deps.SchemaNotifier,
		sanitizerOpts: sanitizerOpts,
		sanitizer:     sanitize.New(sanitizerOpts...),
		version:       version,
		startTime:     time.Now(),
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))

	if s.config.Tracing.Enabled && s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.TracingConfig{
			Enabled:   true,
			SkipPaths: s.quietPaths(),
		}))
	}

	s.app.Use(middleware.SecurityHeaders())

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.config.Server.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders: strings.Join([]string{
			"X-Request-ID", "X-Trace-ID",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		}, ","),
	}))

	s.app.Use(middleware.StructuredLogger(middleware.StructuredLoggerConfig{
		SkipPaths:            s.quietPaths(),
		Sanitizer:            s.sanitizer,
		SlowRequestThreshold: time.Second,
	}))

	s.app.Use(s.metrics.MetricsMiddleware())

	if s.config.RateLimit.Enabled {
		log.Info().
			Int("max", s.config.RateLimit.Max).
			Dur("window", s.config.RateLimit.Window).
			Msg("Enabling API rate limiter")
		s.app.Use("/api", middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Store:      s.limiterStore,
			Max:        s.config.RateLimit.Max,
			Expiration: s.config.RateLimit.Window,
			Name:       "api",
			Metrics:    s.metrics,
		}))
	}

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
}

// quietPaths are not traced or logged
func (s *Server) quietPaths() []string {
	paths := []string{"/health"}
	if s.config.Metrics.Enabled {
		paths = append(paths, s.config.Metrics.Path)
	}
	return paths
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.config.Metrics.Enabled {
		s.app.Get(s.config.Metrics.Path, s.metrics.Handler())
	}

	v1 := s.app.Group("/api/v1")

	filters := v1.Group("/filters")
	filters.Post("/validate", s.handleValidateFilter)
	filters.Post("/normalize", s.handleNormalizeFilter)
	filters.Post("/generated", s.handleNormalizeGenerated)
	filters.Post("/serialize", s.handleSerialize)
	filters.Post("/where", s.handleBuildWhere)
	filters.Post("/edit", s.handleEditFilter)

	schemas := v1.Group("/schemas")
	schemas.Get("/tables", s.handleListTables)
	schemas.Get("/:schema/tables/:table/properties", s.handleTableProperties)
	schemas.Post("/refresh", s.handleRefreshSchema)

	sql := v1.Group("/sql")
	sql.Post("/identifiers", s.handleIdentifiers)
	sql.Post("/quoting", s.handleQuoting)

	v1.Post("/sanitize", s.handleSanitize)

	// 404 handler
	s.app.Use(func(c *fiber.Ctx) error {
		return SendErrorWithDetails(c, fiber.StatusNotFound, "Not Found", "NOT_FOUND", "", "", fiber.Map{"path": c.Path()})
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	s.metrics.UpdateUptime(s.startTime)

	status := "ok"
	httpStatus := fiber.StatusOK
	services := fiber.Map{"database": "disabled"}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()

		services["database"] = "ok"
		if err := s.db.Health(ctx); err != nil {
			log.Error().Err(err).Msg("Database health check failed")
			services["database"] = "unavailable"
			status = "degraded"
			httpStatus = fiber.StatusServiceUnavailable
		}
	}

	if s.schema != nil {
		services["schema_cache_tables"] = s.schema.TableCount()
	}

	body := fiber.Map{
		"status":    status,
		"version":   s.version,
		"services":  services,
		"uptime_s":  int64(time.Since(s.startTime).Seconds()),
		"timestamp": time.Now().UTC(),
	}
	if host := hostMemory(); host != nil {
		body["host"] = host
	}

	return c.Status(httpStatus).JSON(body)
}

// hostMemory reports system memory in MB, or nil when it cannot be read
func hostMemory() fiber.Map {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read system memory")
		return nil
	}
	return fiber.Map{
		"memory_total_mb":     vmStat.Total / 1024 / 1024,
		"memory_available_mb": vmStat.Available / 1024 / 1024,
		"memory_used_percent": vmStat.UsedPercent,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}
