package config

import (
	"testing"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, LocationsFromFile, cfg.LocationsSource)
	assert.Equal(t, "data/locations.csv", cfg.LocationsFile)
	assert.Empty(t, cfg.PostgresURL)

	assert.Equal(t, "python3", cfg.ScorerCommand)
	assert.Equal(t, []string{"scripts/score.py"}, cfg.ScorerArgs)
	assert.Empty(t, cfg.ScorerDir)
	assert.Equal(t, 30*time.Second, cfg.ScorerTimeout)

	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, int64(5_000_000), cfg.CacheMaxRows)
	assert.Equal(t, CacheBackendFile, cfg.CacheBackend)
	assert.Equal(t, "data/cache", cfg.CacheDir)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Zero(t, cfg.RedisDB)

	assert.Equal(t, domain.VirginiaEnvelope, cfg.Envelope)

	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "crash-risk-predictions", cfg.KafkaTopic)

	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("LOCATIONS_SOURCE", "Postgres")
	t.Setenv("POSTGRES_URL", "postgres://crash:risk@db:5432/crash?sslmode=disable")
	t.Setenv("SCORER_COMMAND", "/opt/model/bin/python")
	t.Setenv("SCORER_ARGS", "-m, crash_model.score ,--quiet")
	t.Setenv("SCORER_DIR", "/opt/model")
	t.Setenv("SCORER_TIMEOUT", "45s")
	t.Setenv("CACHE_TTL", "15m")
	t.Setenv("CACHE_MAX_ROWS", "100000")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ENVELOPE", "37,-80,38,-76")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-topic")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, LocationsFromPostgres, cfg.LocationsSource)
	assert.Equal(t, "postgres://crash:risk@db:5432/crash?sslmode=disable", cfg.PostgresURL)
	assert.Equal(t, "/opt/model/bin/python", cfg.ScorerCommand)
	assert.Equal(t, []string{"-m", "crash_model.score", "--quiet"}, cfg.ScorerArgs)
	assert.Equal(t, "/opt/model", cfg.ScorerDir)
	assert.Equal(t, 45*time.Second, cfg.ScorerTimeout)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, int64(100_000), cfg.CacheMaxRows)
	assert.Equal(t, CacheBackendRedis, cfg.CacheBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "hunter2", cfg.RedisPassword)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, domain.Envelope{MinLat: 37, MinLon: -80, MaxLat: 38, MaxLon: -76}, cfg.Envelope)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-topic", cfg.KafkaTopic)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		env, value, wantMsg string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"SHUTDOWN_TIMEOUT", "-1s", "SHUTDOWN_TIMEOUT"},
		{"SCORER_TIMEOUT", "0s", "SCORER_TIMEOUT"},
		{"CACHE_TTL", "forever", "CACHE_TTL"},
		{"CACHE_MAX_ROWS", "-5", "CACHE_MAX_ROWS"},
		{"REDIS_DB", "primary", "REDIS_DB"},
		{"ENVELOPE", "1,2,3", "ENVELOPE"},
		{"LOCATIONS_SOURCE", "s3", "LOCATIONS_SOURCE"},
		{"CACHE_BACKEND", "memcached", "CACHE_BACKEND"},
		{"MAPBOX_TIMEOUT", "bad", "MAPBOX_TIMEOUT"},
	}
	for _, tc := range tests {
		t.Run(tc.env+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.env, tc.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	t.Setenv("LOCATIONS_SOURCE", "postgres")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_URL")
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestParseArgs(t *testing.T) {
	assert.Equal(t, []string{}, parseArgs(""))
	assert.Equal(t, []string{"a", "b"}, parseArgs("a,,b,"))
}
