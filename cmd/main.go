/**
 * @description
 * This is the main entry point for the coop-core-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection and migrations, the message broker producer, the Redis
 * rate limiter, the repository, the core application service, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - net/http: Standard Go library for the HTTP server.
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pool.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - go.uber.org/zap: Structured logging.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koperasi/coop-core-service/internal/api"
	"github.com/koperasi/coop-core-service/internal/app"
	"github.com/koperasi/coop-core-service/internal/config"
	"github.com/koperasi/coop-core-service/internal/store"
	"github.com/koperasi/coop-core-service/pkg/rabbitmq"
)

func main() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Fatalw("config load failed", "component", "bootstrap", "err", err)
	}
	if strings.TrimSpace(cfg.AuthTokenSecret) == "" {
		logger.Fatalw("auth token secret must be configured", "component", "bootstrap", "env", "AUTH_TOKEN_SECRET")
	}

	logger.Infow("starting coop-core-service", "component", "bootstrap", "port", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalw("database url parse failed", "component", "bootstrap", "err", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Fatalw("database connection failed", "component", "bootstrap", "err", err)
	}
	defer dbpool.Close()
	logger.Infow("database connected", "component", "bootstrap")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancelMigrate()
	if err := store.RunMigrations(migrateCtx, dbpool); err != nil {
		logger.Fatalw("migrations failed", "component", "bootstrap", "err", err)
	}
	logger.Infow("migrations applied", "component", "bootstrap")

	// Initialize the RabbitMQ producer to publish events. The core keeps
	// working without a broker; publishes fall back to a no-op.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warnw("rabbitmq producer unavailable; using fallback", "component", "bootstrap", "err", err)
		producer = &rabbitmq.EventProducerFallback{Logger: logger}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		logger.Infow("rabbitmq producer connected", "component", "bootstrap")
	}

	// Redis is optional. Without it payment processing runs unthrottled.
	var limiter app.RateLimiter
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warnw("redis url missing; payment rate limiting disabled", "component", "bootstrap", "env", "REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warnw("redis url parse failed; payment rate limiting disabled", "component", "bootstrap", "err", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				logger.Warnw("redis ping failed; payment rate limiting disabled", "component", "bootstrap", "err", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				logger.Infow("redis connected", "component", "bootstrap")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	coreService := app.NewService(repository, producer, logger, cfg.EventExchange)

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(coreService, logger, limiter, cfg.PaymentProcessRatePerMinute)
	router := api.NewRouter(handlers, cfg.AuthTokenSecret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	logger.Infow("server listening", "component", "http", "addr", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server stopped unexpectedly", "component", "http", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Infow("shutdown started", "component", "http")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorw("shutdown failed", "component", "http", "err", err)
	}

	logger.Infow("shutdown complete", "component", "http")
}
