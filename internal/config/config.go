package config

import (
	"fmt"
	"time"

	"github.com/utafrali/MarketGo/internal/engine"
	pkgconfig "github.com/utafrali/MarketGo/pkg/config"
	"github.com/utafrali/MarketGo/pkg/database"
	"github.com/utafrali/MarketGo/pkg/tracing"
)

// Usage backends.
const (
	UsageMemory   = "memory"
	UsageRedis    = "redis"
	UsagePostgres = "postgres"
)

// Config holds all configuration for the promotion service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int           `env:"PROMOTION_HTTP_PORT" envDefault:"8010"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PreviewRateLimit   float64       `env:"PREVIEW_RATE_LIMIT_RPS" envDefault:"50"`
	PreviewBurst       int           `env:"PREVIEW_RATE_LIMIT_BURST" envDefault:"100"`

	// PostgreSQL
	PostgresHost     string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string        `env:"POSTGRES_USER" envDefault:"market"`
	PostgresPass     string        `env:"POSTGRES_PASSWORD" envDefault:"market_secret"`
	PostgresDB       string        `env:"PROMOTION_DB_NAME" envDefault:"promotions"`
	PostgresSSL      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32         `env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	PostgresMinConns int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	SlowQueryMS      int           `env:"LOG_SLOW_QUERY_MS" envDefault:"200"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"promotion-service"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Catalog
	CatalogURL      string        `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:8001"`
	CatalogTimeout  time.Duration `env:"CATALOG_TIMEOUT" envDefault:"2s"`
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"10m"`

	// Promotion engine
	UsageBackend             string        `env:"USAGE_BACKEND" envDefault:"postgres"`
	ReservationTTL           int           `env:"RESERVATION_TTL_SECONDS" envDefault:"900"`
	ReservationSweepInterval time.Duration `env:"RESERVATION_SWEEP_INTERVAL" envDefault:"30s"`
	LifecycleSweepInterval   time.Duration `env:"LIFECYCLE_SWEEP_INTERVAL" envDefault:"1m"`
	ActivationGrace          time.Duration `env:"ACTIVATION_GRACE" envDefault:"5m"`
	CurrencyPrecision        int32         `env:"CURRENCY_PRECISION" envDefault:"2"`
	OrderStacking            string        `env:"ORDER_STACKING" envDefault:"sequential"`
	MaxActiveCampaigns       int           `env:"MAX_ACTIVE_CAMPAIGNS" envDefault:"0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load promotion config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load promotion config: %w", err)
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
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %g", c.OTELSampleRate)
	}
	switch c.UsageBackend {
	case UsageMemory, UsageRedis, UsagePostgres:
	default:
		return fmt.Errorf("USAGE_BACKEND must be one of memory, redis, postgres, got %q", c.UsageBackend)
	}
	switch engine.StackingMode(c.OrderStacking) {
	case engine.StackSequential, engine.StackIndependent:
	default:
		return fmt.Errorf("ORDER_STACKING must be sequential or independent, got %q", c.OrderStacking)
	}
	if c.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL_SECONDS must be positive, got %d", c.ReservationTTL)
	}
	if c.ReservationSweepInterval <= 0 || c.LifecycleSweepInterval <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}
	if c.ActivationGrace < 0 {
		return fmt.Errorf("ACTIVATION_GRACE must not be negative")
	}
	if c.CurrencyPrecision < 0 || c.CurrencyPrecision > 8 {
		return fmt.Errorf("CURRENCY_PRECISION must be between 0 and 8, got %d", c.CurrencyPrecision)
	}
	if c.SlowQueryMS < 0 {
		return fmt.Errorf("LOG_SLOW_QUERY_MS must not be negative")
	}
	if c.MaxActiveCampaigns < 0 {
		return fmt.Errorf("MAX_ACTIVE_CAMPAIGNS must not be negative")
	}
	if c.PreviewRateLimit <= 0 || c.PreviewBurst <= 0 {
		return fmt.Errorf("preview rate limit and burst must be positive")
	}
	return nil
}

func (c *Config) ReservationTTLDuration() time.Duration {
	return time.Duration(c.ReservationTTL) * time.Second
}

// Postgres returns the pool settings.
func (c *Config) Postgres() *database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	pg.MaxConns = c.PostgresMaxConns
	pg.MinConns = c.PostgresMinConns
	return &pg
}

func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// SlowQueryThreshold is zero when slow-query logging is off.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMS) * time.Millisecond
}

func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	tc.Enabled = c.OTELEnabled
	return tc
}
