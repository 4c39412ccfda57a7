package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/admarket/moderation/internal/bus"
	"github.com/admarket/moderation/internal/classifier"
	"github.com/admarket/moderation/internal/metrics"
	"github.com/admarket/moderation/internal/middleware"
	"github.com/admarket/moderation/internal/providers"
	"github.com/admarket/moderation/internal/repository"
	"github.com/admarket/moderation/internal/services"
	"github.com/admarket/moderation/internal/tracing"
	"github.com/admarket/moderation/internal/worker"
	"github.com/admarket/moderation/pkg/config"
)

type Application struct {
	Config  *config.Config
	Engine  *gin.Engine
	Logger  *slog.Logger
	Redis   *redis.Client
	Scorer  classifier.Scorer
	Enqueue services.EnqueueService
	Status  services.StatusService
	Close   services.CloseService
	Predict services.PredictService

	Ledger    repository.LedgerRepository
	Listings  repository.ListingRepository
	Cache     repository.CacheRepository
	Publisher bus.Publisher

	TracingShutdown func(context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithLedger injects a ledger implementation, bypassing the Postgres pool.
func WithLedger(l repository.LedgerRepository) ApplicationOption {
	return func(app *Application) error {
		app.Ledger = l
		return nil
	}
}

// WithListings injects a listing repository, bypassing the Postgres pool.
func WithListings(l repository.ListingRepository) ApplicationOption {
	return func(app *Application) error {
		app.Listings = l
		return nil
	}
}

func NewApplication(ctx context.Context, cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "moderation", "env", cfg.Env)
	slog.SetDefault(logger)

	redisClient := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	app := &Application{
		Config: cfg,
		Logger: logger,
		Redis:  redisClient,
		Scorer: classifier.NewScorer(),
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.Ledger == nil || app.Listings == nil {
		pool, err := providers.NewPostgresPool(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		if err := repository.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		if app.Ledger == nil {
			app.Ledger = repository.NewLedgerRepository(pool)
		}
		if app.Listings == nil {
			app.Listings = repository.NewListingRepository(pool)
		}
	}

	app.Cache = repository.NewCacheRepository(redisClient)
	app.Publisher = bus.NewStreamPublisher(redisClient, cfg.Topic, cfg.DLQTopic)

	predictionTTL := time.Duration(cfg.PredictionTTLSeconds) * time.Second
	resultTTL := time.Duration(cfg.ResultTTLSeconds) * time.Second
	app.Enqueue = services.NewEnqueueService(app.Ledger, app.Listings, app.Publisher, logger)
	app.Status = services.NewStatusService(app.Ledger, app.Cache, resultTTL, logger)
	app.Close = services.NewCloseService(app.Ledger, app.Listings, app.Cache, logger)
	app.Predict = services.NewPredictService(app.Scorer, app.Listings, app.Cache, predictionTTL, logger)

	metrics.RegisterStreamCollector(redisClient, logger, cfg.ConsumerGroup, cfg.Topic, cfg.DLQTopic)

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "moderation",
		OTLPEndpoint: cfg.TracingEndpoint,
		OTLPInsecure: cfg.TracingInsecure,
		SampleRatio:  cfg.TracingSampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.TracingShutdown = shutdown

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware("moderation"),
		middleware.AccessLogMiddleware(logger),
	)
	app.Engine = engine

	return app, nil
}

// NewWorker builds the stream worker sharing the application's repositories
// and publisher.
func (app *Application) NewWorker(ctx context.Context) (*worker.Worker, error) {
	consumer, err := bus.NewStreamConsumer(ctx, app.Redis, app.Config.Topic, app.Config.ConsumerGroup, 0)
	if err != nil {
		return nil, err
	}
	return worker.New(
		consumer,
		app.Publisher,
		app.Ledger,
		app.Listings,
		app.Scorer,
		app.Config.MaxRetries,
		time.Duration(app.Config.RetryDelaySeconds)*time.Second,
		app.Logger,
	), nil
}
