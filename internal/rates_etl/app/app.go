package etlApp

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/langowen/fxledger/deploy/config"
	mwLogger "github.com/langowen/fxledger/internal/api_service/ports/http/public/middleware/logger"
	"github.com/langowen/fxledger/internal/rates_etl/adapter/api_client/ecb"
	"github.com/langowen/fxledger/internal/rates_etl/adapter/api_client/fixer"
	"github.com/langowen/fxledger/internal/rates_etl/adapter/api_client/httpretry"
	"github.com/langowen/fxledger/internal/rates_etl/adapter/storage/postgres"
	"github.com/langowen/fxledger/internal/rates_etl/adapter/storage/redis"
	"github.com/langowen/fxledger/internal/rates_etl/etl"
	"github.com/langowen/fxledger/internal/rates_etl/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redisPack "github.com/redis/go-redis/v9"
)

type EtlApp struct {
	cfg *config.Config
}

func NewEtlApp(cfg *config.Config) *EtlApp {
	return &EtlApp{cfg: cfg}
}

// Start blocks until the pipeline is done: after one run, or when ctx is
// cancelled in interval mode.
func (a *EtlApp) Start(ctx context.Context) error {
	a.initLogger()
	slog.Info("Logger initialized")

	slog.With("config", a.cfg).Info("starting application")

	pgStorage := a.initDatabase(ctx)
	defer pgStorage.Close()
	slog.Info("Storage initialized")

	extractor := a.initExtractor()
	slog.Info("Extractor initialized", "provider", a.cfg.Fetcher.Provider, "pivot", extractor.Pivot())

	var notifier etl.Notifier
	if rdStorage := a.initRedis(ctx); rdStorage != nil {
		defer rdStorage.Close()
		notifier = rdStorage
		slog.Info("Redis client initialized")
	}

	m := metrics.NewETLMetrics(prometheus.DefaultRegisterer)
	if a.cfg.ETL.Interval > 0 {
		metricsDone := a.startMetricsServer(ctx)
		defer func() { <-metricsDone }()
	}

	pipeline := a.initETL(extractor, pgStorage, notifier, m)

	return pipeline.Start(ctx)
}

func (a *EtlApp) initLogger() {
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

func (a *EtlApp) initDatabase(ctx context.Context) *postgres.Storage {
	pgStorage, err := postgres.InitStorage(ctx, a.cfg.Storage.DSN(), a.cfg.Storage.Schema, a.cfg.Storage.Timeout)
	if err != nil {
		log.Fatalln("Failed to initialize PostgresSQL storage", "error", err)
	}

	return pgStorage
}

// initRedis returns nil when no redis host is configured.
func (a *EtlApp) initRedis(ctx context.Context) *redis.Storage {
	if a.cfg.Redis.Host == "" {
		slog.Info("REDIS_HOST is empty, notifications disabled")
		return nil
	}

	options := &redisPack.Options{
		Addr:     a.cfg.Redis.Host,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}

	rdStorage, err := redis.InitStorage(ctx, options, a.cfg.Redis.TTL)
	if err != nil {
		log.Fatalln("Failed to initialize Redis storage", "error", err)
	}

	return rdStorage
}

func (a *EtlApp) initExtractor() etl.Extractor {
	httpClient := httpretry.New(
		httpretry.WithTimeout(a.cfg.Fetcher.Timeout),
		httpretry.WithMaxTries(a.cfg.Fetcher.MaxTries),
		httpretry.WithBackoff(a.cfg.Fetcher.Backoff),
	)

	var extractor etl.Extractor
	switch strings.ToLower(a.cfg.Fetcher.Provider) {
	case "fixer":
		extractor = fixer.NewClient(httpClient, a.cfg.Fetcher.URL, a.cfg.Fetcher.APIKey, a.cfg.ETL.Pivot)
	default:
		extractor = ecb.NewClient(httpClient, a.cfg.Fetcher.URL)
	}

	if !strings.EqualFold(extractor.Pivot(), a.cfg.ETL.Pivot) {
		log.Fatalf("ETL_PIVOT %s does not match the %s provider pivot %s",
			a.cfg.ETL.Pivot, a.cfg.Fetcher.Provider, extractor.Pivot())
	}

	return extractor
}

func (a *EtlApp) initETL(extractor etl.Extractor, storage etl.Storage, notifier etl.Notifier, m *metrics.ETLMetrics) *etl.ETL {
	start, err := a.cfg.ETL.Start()
	if err != nil {
		log.Fatalln("Failed to parse start date", "error", err)
	}

	return etl.NewETL(extractor, storage, notifier, m, etl.Params{
		Provider:    strings.ToLower(a.cfg.Fetcher.Provider),
		Table:       a.cfg.ETL.Table,
		Start:       start,
		Pivot:       strings.ToUpper(a.cfg.ETL.Pivot),
		Bases:       a.cfg.ETL.BaseList(),
		Targets:     a.cfg.ETL.TargetList(),
		Interval:    a.cfg.ETL.Interval,
		Concurrency: a.cfg.Fetcher.Concurrency,
	})
}

// startMetricsServer exposes /metrics while the ETL runs on an interval.
func (a *EtlApp) startMetricsServer(ctx context.Context) <-chan struct{} {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(mwLogger.New())
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        ":" + a.cfg.HTTPServer.Port,
		Handler:     r,
		ReadTimeout: a.cfg.HTTPServer.Timeout,
		IdleTimeout: a.cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server error", "error", err)
		}
	}()

	doneChan := make(chan struct{})

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to stop metrics server", "error", err)
		}

		close(doneChan)
	}()

	slog.Info("metrics server started", "port", a.cfg.HTTPServer.Port)

	return doneChan
}
