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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stationbook/internal/api"
	"stationbook/internal/audit"
	"stationbook/internal/booking"
	"stationbook/internal/config"
	"stationbook/internal/database"
	"stationbook/internal/events"
	"stationbook/internal/lock"
	"stationbook/internal/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv("STATIONBOOK_CONFIG_PATH"), "path to config.yaml")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	directory := config.NewDirectory(&config.StationsConfig{})
	err = config.WatchStations(ctx, cfg.Stations.Path, cfg.StationsReloadInterval(), &logger, func(sc *config.StationsConfig) {
		directory.Replace(sc)
	})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Stations.Path).Msg("failed to load stations")
	}
	logger.Info().Int("stations", len(directory.Stations())).Msg("stations loaded")

	bus := events.NewEventBus(&logger)
	bus.Subscribe("*", db.RecordEvent)

	checks := []api.ReadinessCheck{{Name: "db", Check: db.Ready}}
	var locker booking.Locker = lock.NewKeyedMutex()
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()

		redisLocker := lock.NewRedisLocker(rdb, lock.RedisOptions{TTL: cfg.LockTTL(), Wait: cfg.LockWait()}, &logger)
		locker = lock.NewFailoverLocker(redisLocker, lock.NewKeyedMutex(), &logger)
		checks = append(checks, api.ReadinessCheck{Name: "redis", Check: redisLocker.Ping, Optional: true})
		logger.Info().Str("address", cfg.Redis.Address).Msg("using redis station locks")
	}

	scheduler := booking.NewScheduler(db, directory, cfg.BookingPolicy(), &logger,
		booking.WithLocker(locker),
		booking.WithPublisher(bus),
	)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}
	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	// metrics share the health port unless a dedicated one is configured
	separateMetrics := cfg.Monitoring.PrometheusEnabled &&
		cfg.Monitoring.PrometheusPort != 0 && cfg.Monitoring.PrometheusPort != cfg.Monitoring.HealthCheckPort
	go serve(ctx, cfg.Monitoring.HealthCheckPort,
		api.HealthHandler(checks, cfg.Monitoring.PrometheusEnabled && !separateMetrics), "health", &logger)
	if separateMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go serve(ctx, cfg.Monitoring.PrometheusPort, mux, "metrics", &logger)
	}

	backups := database.NewBackupService(db, database.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Interval:      cfg.BackupInterval(),
		StoragePath:   cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	backups.Start(ctx)

	if cfg.Audit.Enabled {
		auditService := audit.NewService(
			audit.Config{RetentionDays: cfg.Audit.RetentionDays, ExportOnStart: cfg.Audit.ExportOnStart},
			db,
			audit.NewExcelizeWriter,
			audit.DirectorySink{Dir: cfg.Audit.ExportDir},
			db,
			&logger,
		)
		auditService.Start()
		defer auditService.Stop()
	}

	server := api.NewHTTPServer(api.Config{
		Port:           cfg.API.Port,
		APIKey:         cfg.API.APIKey,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
	}, scheduler, directory, &logger)

	policy := scheduler.Policy()
	logger.Info().
		Float64("max_extension_hours", policy.MaxExtensionHours).
		Int64("extension_surcharge_per_hour", policy.ExtensionSurchargePerHour).
		Bool("recheck_overlap_on_extend", policy.RecheckOverlapOnExtend).
		Msg("station booking service started")

	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("shutting down")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Pretty {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serve(ctx context.Context, port int, handler http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
