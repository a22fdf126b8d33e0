package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Location sources.
const (
	LocationsFromFile     = "file"
	LocationsFromPostgres = "postgres"
)

// Persistent cache backends.
const (
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Location set.
	LocationsSource string
	LocationsFile   string
	PostgresURL     string

	// External scorer.
	ScorerCommand string
	ScorerArgs    []string
	ScorerDir     string
	ScorerTimeout time.Duration

	// Cache tiers.
	CacheTTL      time.Duration
	CacheMaxRows  int64
	CacheBackend  string
	CacheDir      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Envelope domain.Envelope

	// Prediction-set events.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	scorerTimeout, err := parsePositiveDuration("SCORER_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parsePositiveDuration("CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cacheMaxRows, err := strconv.ParseInt(sharedcfg.EnvOrDefault("CACHE_MAX_ROWS", "5000000"), 10, 64)
	if err != nil || cacheMaxRows <= 0 {
		return nil, errors.New("invalid CACHE_MAX_ROWS")
	}
	redisDB, err := strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}

	envelope, err := domain.ParseEnvelope(sharedcfg.EnvOrDefault("ENVELOPE", domain.VirginiaEnvelope.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid ENVELOPE: %w", err)
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		LocationsSource: strings.ToLower(sharedcfg.EnvOrDefault("LOCATIONS_SOURCE", LocationsFromFile)),
		LocationsFile:   sharedcfg.EnvOrDefault("LOCATIONS_FILE", "data/locations.csv"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),

		ScorerCommand: sharedcfg.EnvOrDefault("SCORER_COMMAND", "python3"),
		ScorerArgs:    parseArgs(sharedcfg.EnvOrDefault("SCORER_ARGS", "scripts/score.py")),
		ScorerDir:     os.Getenv("SCORER_DIR"),
		ScorerTimeout: scorerTimeout,

		CacheTTL:      cacheTTL,
		CacheMaxRows:  cacheMaxRows,
		CacheBackend:  strings.ToLower(sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheBackendFile)),
		CacheDir:      sharedcfg.EnvOrDefault("CACHE_DIR", "data/cache"),
		RedisAddr:     sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		Envelope: envelope,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "crash-risk-predictions"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	switch cfg.LocationsSource {
	case LocationsFromFile:
		if cfg.LocationsFile == "" {
			return nil, errors.New("LOCATIONS_FILE is required")
		}
	case LocationsFromPostgres:
		if cfg.PostgresURL == "" {
			return nil, errors.New("LOCATIONS_SOURCE is postgres but POSTGRES_URL is not set")
		}
	default:
		return nil, fmt.Errorf("invalid LOCATIONS_SOURCE %q", cfg.LocationsSource)
	}
	switch cfg.CacheBackend {
	case CacheBackendFile:
		if cfg.CacheDir == "" {
			return nil, errors.New("CACHE_DIR is required")
		}
	case CacheBackendRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("REDIS_ADDR is required")
		}
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q", cfg.CacheBackend)
	}
	if cfg.ScorerCommand == "" {
		return nil, errors.New("SCORER_COMMAND is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

// parseArgs splits a comma-separated argument vector. Empty items are dropped.
func parseArgs(s string) []string {
	args := []string{}
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	return args
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
