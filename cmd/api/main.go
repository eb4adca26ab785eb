package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/ambrosia-fish/armatillo-api/internal/adapter/cache"
	oauthadapter "github.com/ambrosia-fish/armatillo-api/internal/adapter/oauth"
	"github.com/ambrosia-fish/armatillo-api/internal/bootstrap"
	"github.com/ambrosia-fish/armatillo-api/internal/config"
	httptransport "github.com/ambrosia-fish/armatillo-api/internal/http"
	"github.com/ambrosia-fish/armatillo-api/internal/http/handler"
	apimiddleware "github.com/ambrosia-fish/armatillo-api/internal/middleware"
	"github.com/ambrosia-fish/armatillo-api/internal/repository"
	"github.com/ambrosia-fish/armatillo-api/internal/server"
	"github.com/ambrosia-fish/armatillo-api/internal/service"
	"github.com/ambrosia-fish/armatillo-api/internal/telemetry"
	"github.com/ambrosia-fish/armatillo-api/internal/token"
	"github.com/ambrosia-fish/armatillo-api/migrations"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newUserRepository,
			newRefreshTokenRepository,
			newBlacklistRepository,
			newAccessRequestRepository,
			newInstanceRepository,
			newStrategyRepository,
			newSessionStore,
			newGoogleBridge,
			newTokenService,
			newRateLimiter,
			service.NewAuthService,
			service.NewOAuthService,
			service.NewAdminService,
			service.NewTrackingService,
			service.NewCleaner,
			handler.NewAuthHandler,
			newOAuthHandler,
			handler.NewAdminHandler,
			handler.NewTrackingHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, runMigrations, bootstrap.EnsureAdmin, startCleanup, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newRefreshTokenRepository(pool *pgxpool.Pool) repository.RefreshTokenRepository {
	return repository.NewPostgresRefreshTokenRepo(pool)
}

func newBlacklistRepository(pool *pgxpool.Pool) repository.BlacklistRepository {
	return repository.NewPostgresBlacklistRepo(pool)
}

func newAccessRequestRepository(pool *pgxpool.Pool) repository.AccessRequestRepository {
	return repository.NewPostgresAccessRequestRepo(pool)
}

func newInstanceRepository(pool *pgxpool.Pool) repository.InstanceRepository {
	return repository.NewPostgresInstanceRepo(pool)
}

func newStrategyRepository(pool *pgxpool.Pool) repository.StrategyRepository {
	return repository.NewPostgresStrategyRepo(pool)
}

func newSessionStore(client redis.UniversalClient) repository.SessionStore {
	return cacheadapter.NewRedisSessionStore(client)
}

func newGoogleBridge(cfg config.Config) oauthadapter.Bridge {
	redirectURI := cfg.APIBaseURL + "/api/auth/google-callback"
	return oauthadapter.NewGoogleBridge(nil, cfg.GoogleClientID, cfg.GoogleClientSecret, redirectURI)
}

func newTokenService(cfg config.Config, blacklist repository.BlacklistRepository) *token.Service {
	return token.NewService(cfg.JWTSecret, blacklist)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newOAuthHandler(oauth *service.OAuthService, cfg config.Config) *handler.OAuthHandler {
	return handler.NewOAuthHandler(oauth, cfg)
}

func runMigrations(cfg config.Config, logger *zap.Logger) error {
	return migrations.Up(cfg.DatabaseURL, logger)
}

func startCleanup(lc fx.Lifecycle, cfg config.Config, cleaner *service.Cleaner, logger *zap.Logger) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cleaner.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := scheduler.Stop()
			select {
			case <-stopped.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return nil
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
