package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, "http://localhost:9200", cfg.ElasticsearchURL)
	assert.Equal(t, "showcase_product_cards", cfg.ElasticsearchIndex)
	assert.Equal(t, EngineElasticsearch, cfg.SearchEngine)
	assert.Equal(t, 3*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 10*time.Minute, cfg.CategoryCacheTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, 50.0, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
}

func TestLoad_NegativeRateLimit(t *testing.T) {
	t.Setenv("SEARCH_RATE_LIMIT_RPS", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEARCH_RATE_LIMIT_RPS")
}

func TestLoad_InvalidHTTPPort(t *testing.T) {
	t.Setenv("SEARCH_HTTP_PORT", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_UnknownSearchEngine(t *testing.T) {
	t.Setenv("SEARCH_ENGINE", "solr")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEARCH_ENGINE")
}

func TestLoad_InvalidOTELSampleRate(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATE", "2.0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
}

func TestLoad_NonPositiveBackendTimeout(t *testing.T) {
	t.Setenv("BACKEND_TIMEOUT", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_TIMEOUT")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SEARCH_ENGINE", "bleve")
	t.Setenv("BLEVE_INDEX_PATH", "/var/lib/showcase/index.bleve")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, EngineBleve, cfg.SearchEngine)
	assert.Equal(t, "/var/lib/showcase/index.bleve", cfg.BleveIndexPath)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestConfig_DerivedSettings(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "pg")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	pg := cfg.Postgres()
	assert.Equal(t, "pg", pg.Host)
	assert.Equal(t, int32(20), pg.MaxConns)
	assert.Equal(t, "localhost:6380", cfg.Redis().Addr())

	tc := cfg.Tracing("showcase-search", "1.0.0")
	assert.True(t, tc.Enabled)
	assert.Equal(t, "development", tc.Environment)
}
