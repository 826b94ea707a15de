package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port     int           `env:"TEST_CFG_PORT" envDefault:"8010"`
	Backend  string        `env:"TEST_CFG_BACKEND" envDefault:"memory"`
	Grace    time.Duration `env:"TEST_CFG_GRACE" envDefault:"5m"`
	Brokers  []string      `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Disabled bool          `env:"TEST_CFG_DISABLED" envDefault:"false"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Grace)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.False(t, cfg.Disabled)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TEST_CFG_DISABLED", "true")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.True(t, cfg.Disabled)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_RequiresPointer(t *testing.T) {
	assert.Error(t, Load(testConfig{}))
}

func TestLoadFrom_IgnoresProcessEnvironment(t *testing.T) {
	t.Setenv("TEST_CFG_BACKEND", "postgres")

	var cfg testConfig
	require.NoError(t, LoadFrom(&cfg, map[string]string{"TEST_CFG_GRACE": "30s"}))

	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 30*time.Second, cfg.Grace)
}

func TestLoadFrom_NilMapUsesDefaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, LoadFrom(&cfg, nil))
	assert.Equal(t, 8010, cfg.Port)
}
