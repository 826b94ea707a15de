package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(nil)

	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "promotions", cfg.PostgresDB)
	assert.Equal(t, UsagePostgres, cfg.UsageBackend)
	assert.Equal(t, 15*time.Minute, cfg.ReservationTTLDuration())
	assert.Equal(t, "sequential", cfg.OrderStacking)
	assert.Equal(t, int32(2), cfg.CurrencyPrecision)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThreshold())
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PROMOTION_HTTP_PORT":     "9090",
		"USAGE_BACKEND":           "redis",
		"ORDER_STACKING":          "independent",
		"RESERVATION_TTL_SECONDS": "60",
		"ACTIVATION_GRACE":        "0s",
		"MAX_ACTIVE_CAMPAIGNS":    "25",
		"KAFKA_BROKERS":           "k1:9092,k2:9092",
	})

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, UsageRedis, cfg.UsageBackend)
	assert.Equal(t, "independent", cfg.OrderStacking)
	assert.Equal(t, time.Minute, cfg.ReservationTTLDuration())
	assert.Zero(t, cfg.ActivationGrace)
	assert.Equal(t, 25, cfg.MaxActiveCampaigns)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"port", map[string]string{"PROMOTION_HTTP_PORT": "0"}, "invalid HTTP port"},
		{"backend", map[string]string{"USAGE_BACKEND": "etcd"}, "USAGE_BACKEND must be one of"},
		{"stacking", map[string]string{"ORDER_STACKING": "greedy"}, "ORDER_STACKING must be"},
		{"ttl", map[string]string{"RESERVATION_TTL_SECONDS": "0"}, "RESERVATION_TTL_SECONDS must be positive"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "2.0"}, "OTEL_SAMPLE_RATE must be between"},
		{"precision", map[string]string{"CURRENCY_PRECISION": "12"}, "CURRENCY_PRECISION must be between"},
		{"grace", map[string]string{"ACTIVATION_GRACE": "-1m"}, "ACTIVATION_GRACE must not be negative"},
		{"max active", map[string]string{"MAX_ACTIVE_CAMPAIGNS": "-1"}, "MAX_ACTIVE_CAMPAIGNS must not be negative"},
		{"rate limit", map[string]string{"PREVIEW_RATE_LIMIT_RPS": "0"}, "preview rate limit"},
		{"not a number", map[string]string{"PROMOTION_HTTP_PORT": "http"}, "load promotion config"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadFrom(tc.env)
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("PROMOTION_HTTP_PORT", "8123")
	t.Setenv("USAGE_BACKEND", "memory")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8123, cfg.HTTPPort)
	assert.Equal(t, UsageMemory, cfg.UsageBackend)
}

func TestConfig_Derived(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"POSTGRES_HOST":      "db",
		"POSTGRES_MAX_CONNS": "40",
		"REDIS_HOST":         "cache",
		"OTEL_ENABLED":       "true",
	})
	require.NoError(t, err)

	pg := cfg.Postgres()
	assert.Equal(t, "db", pg.Host)
	assert.Equal(t, int32(40), pg.MaxConns)
	assert.Equal(t, time.Hour, pg.MaxConnLifetime)

	assert.Equal(t, "cache:6379", cfg.Redis().Addr())

	tc := cfg.Tracing("promotion-service")
	assert.True(t, tc.Enabled)
	assert.Equal(t, "promotion-service", tc.ServiceName)
}
