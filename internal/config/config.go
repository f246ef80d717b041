package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/utafrali/showcase-search/pkg/config"
	"github.com/utafrali/showcase-search/pkg/database"
	"github.com/utafrali/showcase-search/pkg/tracing"
)

// Supported search engines.
const (
	EngineElasticsearch = "elasticsearch"
	EngineBleve         = "bleve"
	EngineMemory        = "memory"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	RequestTimeout     time.Duration `env:"SEARCH_REQUEST_TIMEOUT" envDefault:"30s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Per-client search rate limit; 0 disables it.
	RateLimitRPS   float64 `env:"SEARCH_RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"SEARCH_RATE_LIMIT_BURST" envDefault:"100"`

	// Search engine selection (elasticsearch, bleve or memory)
	SearchEngine       string        `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURL   string        `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string        `env:"ELASTICSEARCH_INDEX" envDefault:"showcase_product_cards"`
	BleveIndexPath     string        `env:"BLEVE_INDEX_PATH"`
	BackendTimeout     time.Duration `env:"BACKEND_TIMEOUT" envDefault:"3s"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"showcase"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"showcase"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"showcase"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"20"`

	SlowQueryThreshold time.Duration `env:"POSTGRES_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Caches
	CategoryCacheTTL   time.Duration `env:"CATEGORY_CACHE_TTL" envDefault:"10m"`
	HierarchyCacheSize int           `env:"HIERARCHY_CACHE_SIZE" envDefault:"4096"`

	// Category resolver
	CategoryResolverURL string        `env:"CATEGORY_RESOLVER_URL" envDefault:"http://localhost:8020"`
	ResolverTimeout     time.Duration `env:"RESOLVER_TIMEOUT" envDefault:"2s"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"showcase-search"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{EngineElasticsearch, EngineBleve, EngineMemory}, c.SearchEngine) {
		return fmt.Errorf("SEARCH_ENGINE must be one of elasticsearch, bleve, memory: got %q", c.SearchEngine)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("SEARCH_RATE_LIMIT_RPS and SEARCH_RATE_LIMIT_BURST must not be negative")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	if c.HierarchyCacheSize < 1 {
		return fmt.Errorf("HIERARCHY_CACHE_SIZE must be positive")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
	}
	return nil
}

// Postgres returns the catalogue database settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		User:     c.PostgresUser,
		Password: c.PostgresPassword,
		DBName:   c.PostgresDB,
		SSLMode:  c.PostgresSSLMode,
		MaxConns: c.PostgresMaxConns,
	}
}

// Redis returns the cache settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Tracing returns the span export settings.
func (c *Config) Tracing(serviceName, version string) tracing.Config {
	return tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		SampleRate:     c.OTELSampleRate,
		Enabled:        c.OTELEnabled,
	}
}
