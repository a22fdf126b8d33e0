package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/adapter/filestore"
	httpadapter "github.com/couchcryptid/crash-risk-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/crash-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/crash-risk-service/internal/adapter/mapbox"
	"github.com/couchcryptid/crash-risk-service/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/crash-risk-service/internal/adapter/redis"
	"github.com/couchcryptid/crash-risk-service/internal/cache"
	"github.com/couchcryptid/crash-risk-service/internal/config"
	"github.com/couchcryptid/crash-risk-service/internal/observability"
	"github.com/couchcryptid/crash-risk-service/internal/pipeline"
	"github.com/couchcryptid/crash-risk-service/internal/scoring"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

const (
	warmInitialBackoff = time.Second
	warmMaxBackoff     = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("close error", "error", err)
			}
		}
	}()

	deps := &dependencies{}

	source, err := newLocationSource(ctx, cfg, logger, deps, &closers)
	if err != nil {
		return fmt.Errorf("location source: %w", err)
	}

	clock := clockwork.NewRealClock()
	fast, err := cache.NewMemory(cfg.CacheMaxRows, cfg.CacheTTL, clock)
	if err != nil {
		return fmt.Errorf("fast cache: %w", err)
	}
	closers = append(closers, func() error { fast.Close(); return nil })
	persistent, err := newPersistentStore(cfg, clock, deps, &closers)
	if err != nil {
		return fmt.Errorf("persistent cache: %w", err)
	}
	tiered := cache.NewTiered(fast, persistent, cfg.Envelope, logger, metrics)
	logger.Info("prediction cache ready", "backend", cfg.CacheBackend, "ttl", cfg.CacheTTL, "max_rows", cfg.CacheMaxRows)

	runner := scoring.NewExecRunner(cfg.ScorerCommand, cfg.ScorerArgs, cfg.ScorerDir)
	scorer := scoring.NewInvoker(runner, cfg.ScorerTimeout, logger, metrics)

	opts := []pipeline.Option{pipeline.WithClock(clock)}
	// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger)
		opts = append(opts, pipeline.WithGeocoder(mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)))
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	if cfg.KafkaEnabled {
		pub := kafkaadapter.NewPublisher(cfg, logger)
		closers = append(closers, pub.Close)
		opts = append(opts, pipeline.WithPublisher(pub))
		logger.Info("prediction set events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	p := pipeline.New(source, scorer, tiered, cfg.Envelope, logger, metrics, opts...)
	deps.Pipeline = p

	// A cold date waits for the scorer, so the write timeout must outlast it.
	srv := httpadapter.NewServer(cfg.HTTPAddr, deps, cfg.ScorerTimeout+30*time.Second, logger)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	go warm(ctx, p, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	logger.Info("shutdown complete")
	return nil
}

// warm loads the location set ahead of the first request, retrying with
// backoff until it succeeds or ctx ends.
func warm(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) {
	backoff := warmInitialBackoff
	for {
		err := p.Warm(ctx)
		if err == nil {
			return
		}
		logger.Warn("location warm-up failed, retrying", "error", err, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return
		}
		backoff = retry.NextBackoff(backoff, warmMaxBackoff)
	}
}

func newLocationSource(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *dependencies, closers *[]func() error) (pipeline.LocationSource, error) {
	if cfg.LocationsSource == config.LocationsFromPostgres {
		db, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, db.Close)
		repo := postgres.NewLocationRepository(db, logger)
		deps.pingers = append(deps.pingers, namedPinger{"postgres", repo})
		logger.Info("locations from postgres")
		return repo, nil
	}
	logger.Info("locations from file", "path", cfg.LocationsFile)
	return filestore.NewLocationFile(afero.NewOsFs(), cfg.LocationsFile, logger), nil
}

func newPersistentStore(cfg *config.Config, clock clockwork.Clock, deps *dependencies, closers *[]func() error) (cache.Store, error) {
	if cfg.CacheBackend == config.CacheBackendRedis {
		client := redisadapter.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		*closers = append(*closers, client.Close)
		store := redisadapter.NewPredictionStore(client, clock)
		deps.pingers = append(deps.pingers, namedPinger{"redis", store})
		return store, nil
	}
	return filestore.NewPredictionStore(afero.NewOsFs(), cfg.CacheDir)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type namedPinger struct {
	name string
	pinger
}

// dependencies adds backing-store health to the pipeline's readiness.
type dependencies struct {
	*pipeline.Pipeline
	pingers []namedPinger
}

func (d *dependencies) CheckReadiness(ctx context.Context) error {
	if err := d.Pipeline.CheckReadiness(ctx); err != nil {
		return err
	}
	for _, p := range d.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}
