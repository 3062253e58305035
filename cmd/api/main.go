package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // booking.timezone must resolve on hosts without zoneinfo

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/afiqaffendi/rbs/internal/api"
	"github.com/afiqaffendi/rbs/internal/config"
	"github.com/afiqaffendi/rbs/internal/database"
	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/events"
	"github.com/afiqaffendi/rbs/internal/logging"
	"github.com/afiqaffendi/rbs/internal/metrics"
	"github.com/afiqaffendi/rbs/internal/models"
	"github.com/afiqaffendi/rbs/internal/queue"
	"github.com/afiqaffendi/rbs/internal/repository"
	"github.com/afiqaffendi/rbs/internal/service"
	"github.com/afiqaffendi/rbs/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	drafts, locker := initStateRepositories(ctx, redisClient, &logger)

	publisher, closePublisher := initPublisher(cfg, &logger)
	defer closePublisher()

	outboxWorker := worker.NewOutboxWorker(
		db,
		publisher,
		redisClient,
		worker.RetryPolicyFromConfig(cfg.Outbox),
		cfg.Outbox.PollInterval,
		cfg.Outbox.BatchSize,
		logging.Component(&logger, "outbox"),
	)
	go outboxWorker.Start(ctx)

	eventBus := events.NewEventBus()
	eventLogger := logging.Component(&logger, "events")
	eventBus.SubscribeAll(func(ev *events.Event) error {
		eventLogger.Debug().Str("type", ev.Type).RawJSON("payload", ev.Payload).Msg("event published")
		return nil
	})
	eventBus.Subscribe(models.EventBookingCancelled, func(ev *events.Event) error {
		p, err := ev.DecodeBooking()
		if err != nil {
			return err
		}
		eventLogger.Info().
			Int64("booking_id", p.BookingID).
			Str("slot", p.Slot).
			Str("table", p.TableSize).
			Str("by", p.ChangedBy).
			Msg("Table released by cancellation")
		return nil
	})

	backupService := database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup"))
	go backupService.Start(ctx)

	services := api.Services{
		Bookings: service.NewBookingService(db, drafts, locker, eventBus, outboxWorker, cfg.Booking,
			logging.Component(&logger, "booking-service")),
		Restaurants: service.NewRestaurantService(db, eventBus, outboxWorker,
			logging.Component(&logger, "restaurant-service")),
		Drafts: service.NewDraftService(drafts, logging.Component(&logger, "draft-service")),
	}

	httpServer := api.NewHTTPServer(cfg.API, services, db.PingContext, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	seedPath := os.Getenv("RESTAURANTS_PATH")
	if seedPath == "" {
		seedPath = cfg.RestaurantsFile
	}
	if seedPath == "" {
		return db, nil
	}

	restaurants, err := config.LoadRestaurants(seedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("restaurants_path", seedPath).Msg("restaurant seed file not found, skipping")
			return db, nil
		}
		db.Close()
		logger.Error().Err(err).Str("restaurants_path", seedPath).Msg("load restaurants")
		return nil, err
	}
	if err := db.SyncRestaurants(context.Background(), restaurants); err != nil {
		db.Close()
		logger.Error().Err(err).Msg("sync restaurants")
		return nil, err
	}
	logger.Info().Int("count", len(restaurants)).Msg("restaurants synced")
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initStateRepositories puts Redis in front of the in-memory stores when it is available.
func initStateRepositories(ctx context.Context, redisClient *redis.Client, logger *zerolog.Logger) (domain.DraftRepository, domain.SlotLocker) {
	ttl := time.Duration(models.DefaultRedisTTL) * time.Second
	memDrafts := repository.NewMemoryDraftRepository(ttl)
	go memDrafts.RunSweeper(ctx, time.Minute)
	memLocker := repository.NewMemorySlotLocker()
	if redisClient == nil {
		return memDrafts, memLocker
	}

	stateLogger := logging.Component(logger, "state")
	drafts := repository.NewFailoverDraftRepository(repository.NewRedisDraftRepository(redisClient, ttl), memDrafts, stateLogger)
	locker := repository.NewFailoverSlotLocker(repository.NewRedisSlotLocker(redisClient), memLocker, stateLogger)
	return drafts, locker
}

func initPublisher(cfg *config.Config, logger *zerolog.Logger) (worker.Publisher, func()) {
	if !cfg.Broker.Enabled {
		logger.Info().Msg("broker disabled, outbox events will be logged")
		return queue.NewLogPublisher(logging.Component(logger, "events-out")), func() {}
	}

	p := queue.NewAMQPPublisher(cfg.Broker, logging.Component(logger, "amqp"))
	return p, func() { _ = p.Close() }
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
