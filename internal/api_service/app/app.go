package apiApp

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/langowen/fxledger/deploy/config"
	"github.com/langowen/fxledger/internal/api_service/adapter/storage/postgres"
	"github.com/langowen/fxledger/internal/api_service/adapter/storage/redis"
	"github.com/langowen/fxledger/internal/api_service/ports/http/public"
	"github.com/langowen/fxledger/internal/api_service/service"
	redisPack "github.com/redis/go-redis/v9"
)

type ApiApp struct {
	cfg *config.Config
}

func NewApiApp(cfg *config.Config) *ApiApp {
	return &ApiApp{cfg: cfg}
}

// Start brings the API up. The returned channel is closed once the server
// has shut down after ctx is cancelled.
func (a *ApiApp) Start(ctx context.Context) <-chan struct{} {
	a.initLogger()
	slog.Info("Logger initialized")

	slog.With("config", a.cfg).Info("starting server")

	pgStorage := a.initDatabase(ctx)
	slog.Info("Storage initialized")

	var cache service.Cache
	rdStorage := a.initRedis(ctx)
	if rdStorage != nil {
		cache = rdStorage
		slog.Info("Redis client initialized")
	}

	apiService := a.initService(pgStorage, cache)
	slog.Info("Service initialized")

	go func() {
		if err := apiService.WatchUpdates(ctx); err != nil {
			slog.Error("update watcher stopped", "error", err)
		}
	}()

	serverDone := public.StartServer(ctx, apiService, pgStorage, a.cfg)
	slog.Info("server started", "port", a.cfg.HTTPServer.Port)

	done := make(chan struct{})
	go func() {
		<-serverDone
		pgStorage.Close()
		if rdStorage != nil {
			_ = rdStorage.Close()
		}
		close(done)
	}()

	return done
}

func (a *ApiApp) initLogger() {
	level, err := a.cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: false,
	}))
	slog.SetDefault(logger)
}

func (a *ApiApp) initDatabase(ctx context.Context) *postgres.Storage {
	pgStorage, err := postgres.InitStorage(ctx, a.cfg.Storage.DSN(), a.cfg.Storage.Schema, a.cfg.ETL.Table, a.cfg.Storage.Timeout)
	if err != nil {
		log.Fatalln("Failed to initialize PostgresSQL storage", "error", err)
	}

	return pgStorage
}

// initRedis returns nil when no redis host is configured.
func (a *ApiApp) initRedis(ctx context.Context) *redis.Storage {
	if a.cfg.Redis.Host == "" {
		slog.Info("REDIS_HOST is empty, latest-rates cache disabled")
		return nil
	}

	options := &redisPack.Options{
		Addr:     a.cfg.Redis.Host,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}

	rdStorage, err := redis.InitStorage(ctx, options)
	if err != nil {
		log.Fatalln("Failed to initialize Redis storage", "error", err)
	}

	return rdStorage
}

func (a *ApiApp) initService(storage service.Storage, cache service.Cache) *service.Service {
	apiService, err := service.NewService(storage, cache, a.cfg.HTTPServer.CacheTTL)
	if err != nil {
		log.Fatalln("Failed to initialize service rate", "error", err)
	}

	return apiService
}
