package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hiremind/authsync/internal/config"
	"github.com/hiremind/authsync/internal/events"
	"github.com/hiremind/authsync/internal/handlers"
	"github.com/hiremind/authsync/internal/identity"
	"github.com/hiremind/authsync/internal/identity/firebase"
	"github.com/hiremind/authsync/internal/identity/local"
	"github.com/hiremind/authsync/internal/logger"
	"github.com/hiremind/authsync/internal/repository"
	"github.com/hiremind/authsync/internal/repository/memory"
	mongo_repo "github.com/hiremind/authsync/internal/repository/mongo"
	redis_repo "github.com/hiremind/authsync/internal/repository/redis"
	"github.com/hiremind/authsync/internal/repository/sqlstore"
	"github.com/hiremind/authsync/internal/router"
	"github.com/hiremind/authsync/internal/server"
	"github.com/hiremind/authsync/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	userRepo, closeStore, err := openUserRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open user store")
	}
	defer closeStore()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("mode", cfg.IdentityMode).Msg("Failed to create credential verifier")
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.AMQP.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to message broker")
		}
		publisher = amqpPublisher
	}
	defer publisher.Close()

	app := server.New(cfg.CORSAllowedOrigins)
	app.Server.ReadTimeout = cfg.RequestTimeout
	app.Server.WriteTimeout = cfg.RequestTimeout

	router.SetupAuthRoutes(app, handlers.NewAuthHandler(
		service.NewSyncService(verifier, userRepo, publisher),
	), verifier)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.AppEnv).
			Str("identity", cfg.IdentityMode).
			Str("store", cfg.StoreDriver).
			Msg("Server starting")
		if err := app.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped gracefully.")
}

func openUserRepository(ctx context.Context, cfg *config.Config) (repository.UserRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := sqlstore.Open(sqlstore.DriverPostgres, cfg.DatabaseSettings)
		if err != nil {
			return nil, nil, err
		}
		return sqlstore.NewSQLUserRepository(db), func() { db.Close() }, nil
	case config.StoreSQLite:
		db, err := sqlstore.Open(sqlstore.DriverSQLite, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlstore.NewSQLUserRepository(db), func() { db.Close() }, nil
	case config.StoreRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisSettings.Address,
			Password: cfg.RedisSettings.Password,
			DB:       cfg.RedisSettings.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, err
		}
		return redis_repo.NewRedisUserRepository(redisClient), func() { redisClient.Close() }, nil
	case config.StoreMongo:
		client, err := mongo_repo.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		repo, err := mongo_repo.NewMongoUserRepository(ctx, client.Database(cfg.Mongo.Database))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		log.Warn().Msg("Using in-memory user store; records are lost on restart")
		return memory.NewMemoryUserRepository(), func() {}, nil
	}
}

func newVerifier(ctx context.Context, cfg *config.Config) (identity.Verifier, error) {
	if cfg.IdentityMode == config.IdentityModeLocal {
		return local.NewVerifier(cfg.Local.Secret, cfg.Local.Issuer), nil
	}
	return firebase.NewVerifier(ctx, cfg.Firebase.ProjectID)
}
