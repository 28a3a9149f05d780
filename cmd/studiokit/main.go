package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/supabase/supabase-sub056/internal/api"
	"github.com/supabase/supabase-sub056/internal/config"
	"github.com/supabase/supabase-sub056/internal/database"
	"github.com/supabase/supabase-sub056/internal/logging"
	"github.com/supabase/supabase-sub056/internal/observability"
	"github.com/supabase/supabase-sub056/internal/pubsub"
	"github.com/supabase/supabase-sub056/internal/ratelimit"
	"github.com/supabase/supabase-sub056/internal/sanitize"
	"github.com/supabase/supabase-sub056/internal/scaling"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
)

const poolStatsInterval = 15 * time.Second

func main() {
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("studiokit %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	// Bootstrap logger until the configuration is known
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	batcher := setupLogging(cfg)

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting studiokit")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tracer, err := observability.NewTracer(ctx, cfg.Tracing, Version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, tracing will be disabled")
	}

	metrics := observability.NewMetrics(nil)

	deps := api.Dependencies{
		Metrics: metrics,
		Tracer:  tracer,
		Version: Version,
	}

	var (
		db      *database.Connection
		cache   *database.SchemaCache
		elector *scaling.LeaderElector
	)
	if cfg.Database.Enabled {
		db, err = database.NewConnection(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		db.SetMetrics(metrics)
		go reportPoolStats(ctx, db)

		cache = database.NewSchemaCache(database.NewSchemaInspector(db), cfg.Schema.Schemas, cfg.Schema.CacheTTL)
		cache.SetMetrics(metrics)
		if err := cache.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("Initial schema cache load failed, will retry on first use")
		}

		ps, err := pubsub.NewPubSub(ctx, cfg.PubSub)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create pub/sub")
		}
		defer func() { _ = ps.Close() }()

		notifier := pubsub.NewSchemaNotifier(ps)
		if _, err := notifier.Listen(ctx, cache); err != nil {
			log.Fatal().Err(err).Msg("Failed to listen for schema events")
		}

		schedOpts := []database.ScheduleOption{
			database.AfterRefresh(func(ctx context.Context, tables int) {
				if err := notifier.NotifyRefresh(ctx, tables); err != nil {
					log.Warn().Err(err).Msg("Failed to announce schema refresh")
				}
			}),
		}
		// Instances sharing a broker take turns: only the leader runs the
		// schedule and the others are invalidated by its announcement
		if cfg.PubSub.Backend == "redis" {
			elector = scaling.NewLeaderElector(scaling.NewAdvisoryLocker(db), scaling.SchemaRefreshLockID, "schema-refresh")
			elector.Start(nil, nil)
			schedOpts = append(schedOpts, database.OnlyWhen(elector.IsLeader))
		}
		if err := cache.StartScheduledRefresh(cfg.Schema.RefreshSchedule, schedOpts...); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule schema refresh")
		}

		deps.DB = db
		deps.Schema = cache
		deps.SchemaNotifier = notifier
	} else {
		log.Info().Msg("Database disabled, table lookups will return 503")
	}

	if cfg.RateLimit.Enabled {
		store, err := ratelimit.NewStore(ctx, cfg.RateLimit)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create rate limit store")
		}
		defer store.Close()
		deps.RateLimitStore = store
	}

	server := api.NewServer(cfg, deps)

	// Start server in a goroutine
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting HTTP server")
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if cache != nil {
		cache.Close()
	}
	if elector != nil {
		elector.Stop()
	}
	if db != nil {
		db.Close()
	}

	if tracer != nil {
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}

	log.Info().Msg("Server exited")

	if batcher != nil {
		if err := batcher.Close(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
	}
}

// setupLogging installs the redacting writer as the global logger and
// returns the telemetry batcher, if one is configured.
func setupLogging(cfg *config.Config) *logging.Batcher {
	level, err := zerolog.ParseLevel(cfg.Logging.ConsoleLevel)
	if err != nil || cfg.Logging.ConsoleLevel == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var sanitizer *sanitize.Sanitizer
	if cfg.Logging.Redact {
		sanitizer = sanitize.New(sanitize.ConfigOptions(cfg.Sanitizer)...)
	}

	var batcher *logging.Batcher
	if cfg.Logging.TelemetryURL != "" {
		sink := logging.NewHTTPSink(cfg.Logging.TelemetryURL, &http.Client{Timeout: 10 * time.Second})
		batcher = logging.NewBatcher(cfg.Logging.BatchSize, cfg.Logging.FlushInterval, cfg.Logging.BufferSize, sink.Write)
	}

	writer := logging.NewWriter(logging.NewConsole(cfg.Logging.ConsoleFormat), sanitizer, batcher)
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()

	return batcher
}

// reportPoolStats refreshes the connection pool gauges until ctx is done
func reportPoolStats(ctx context.Context, db *database.Connection) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.UpdatePoolStats()
		}
	}
}
