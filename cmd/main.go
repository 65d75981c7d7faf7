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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"frycast/internal/analytics"
	"frycast/internal/api"
	"frycast/internal/broadcast"
	"frycast/internal/config"
	"frycast/internal/database"
	"frycast/internal/engine"
	"frycast/internal/ingest"
	"frycast/internal/monitoring"
	"frycast/internal/publish"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort > 0 {
		cfg.Server.MetricsPort = *metricsPort
	}

	logger := newLogger(cfg)
	gin.SetMode(gin.ReleaseMode)

	// Initialize context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.OpenAndMigrate(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Initialize monitoring
	monitor := monitoring.NewMonitor()
	metricsCollector := monitoring.NewMetricsCollector()

	// Initialize planner
	planner, err := engine.New(cfg.EngineOptions(), cfg.BusinessProfile(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize planner")
	}

	store := analytics.NewStore(db, logger, monitor, metricsCollector)

	// Hydrate the live ring so stream cursors survive restarts
	feed := broadcast.New(cfg.Analytics.MemoryPoints)
	recent, err := store.LoadRecent(feed.Capacity())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load recent analytics")
	}
	feed.Hydrate(recent)

	snapshots := ingest.NewHolder(cfg.SnapshotStaleAfter())

	nats, err := publish.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to NATS")
	}

	publishers := []analytics.Publisher{feed}
	if nats.Enabled() {
		publishers = append(publishers, nats)
	}

	collector := analytics.NewCollector(analytics.CollectorConfig{
		Source:     snapshots,
		Planner:    planner,
		Store:      store,
		Publishers: publishers,
		Observers:  []analytics.TickObserver{monitor, metricsCollector},
		Interval:   cfg.SampleInterval(),
		Sweeper:    store,
	}, logger)
	collector.Start(ctx)

	// Initialize API server
	apiServer := api.NewServer(api.Options{
		Planner:     planner,
		Store:       store,
		Feed:        feed,
		Snapshots:   snapshots,
		Monitor:     monitor,
		Metrics:     metricsCollector,
		JWTSecret:   cfg.Server.JWTSecret,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, logger)

	// Start metrics server
	metricsServer := startMetricsServer(cfg.Server.MetricsPort, cfg.Server.MetricsPath, metricsCollector, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiServer.Router,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("Shutting down servers...")

		collector.Stop()
		// wakes live subscribers so Shutdown does not wait on them
		feed.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("API server shutdown error")
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Metrics server shutdown error")
		}
		if err := nats.Close(); err != nil {
			logger.Error().Err(err).Msg("NATS drain error")
		}

		cancel()
	}()

	// Start server
	logger.Info().
		Int("port", cfg.Server.Port).
		Str("business", planner.Profile().BusinessName).
		Dur("sample_interval", collector.Interval()).
		Msg("Starting API server")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("API server error")
	}
	<-ctx.Done()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "frycast").Logger()
}

func startMetricsServer(port int, path string, metrics *monitoring.MetricsCollector, logger zerolog.Logger) *http.Server {
	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET(path, gin.WrapH(metrics.Handler()))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: metricsRouter,
	}

	go func() {
		logger.Info().Int("port", port).Str("path", path).Msg("Starting metrics server")
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return metricsServer
}
