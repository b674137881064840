package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldlabs/herald/pkg/config"
)

type testConfig struct {
	Window  time.Duration `env:"TEST_RATE_WINDOW" envDefault:"1m"`
	Ceiling int           `env:"TEST_RATE_CEILING" envDefault:"300"`
	Token   string        `env:"TEST_VENDOR_TOKEN"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, time.Minute, cfg.Window)
	assert.Equal(t, 300, cfg.Ceiling)
	assert.Empty(t, cfg.Token)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TEST_RATE_CEILING", "50")
	t.Setenv("TEST_VENDOR_TOKEN", "tok-123")

	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, 50, cfg.Ceiling)
	assert.Equal(t, "tok-123", cfg.Token)
}

func TestLoad_NilPointer(t *testing.T) {
	t.Parallel()

	var cfg *testConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}
