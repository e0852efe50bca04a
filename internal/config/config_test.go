package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppConfig_Defaults(t *testing.T) {
	cfg, err := NewAppConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.GetLogLevel())
	assert.Equal(t, ColorAuto, cfg.GetColorMode())
	assert.Equal(t, int64(10*1024*1024), cfg.GetArtworkMaxBytes())
	assert.Equal(t, 10*time.Second, cfg.GetArtworkTimeout())
	assert.Equal(t, 0, cfg.GetArtworkMaxDimension())
}

func TestNewAppConfig_Environment(t *testing.T) {
	t.Setenv("MEDIABRIDGE_LOG_LEVEL", "DEBUG")
	t.Setenv("MEDIABRIDGE_COLOR", "never")
	t.Setenv("MEDIABRIDGE_ARTWORK_MAX_BYTES", "2048")
	t.Setenv("MEDIABRIDGE_ARTWORK_TIMEOUT", "3s")
	t.Setenv("MEDIABRIDGE_ARTWORK_MAX_DIMENSION", "256")

	cfg, err := NewAppConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.GetLogLevel())
	assert.Equal(t, ColorNever, cfg.GetColorMode())
	assert.Equal(t, int64(2048), cfg.GetArtworkMaxBytes())
	assert.Equal(t, 3*time.Second, cfg.GetArtworkTimeout())
	assert.Equal(t, 256, cfg.GetArtworkMaxDimension())
}

func TestNewAppConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "Unknown Log Level", key: "MEDIABRIDGE_LOG_LEVEL", value: "chatty"},
		{name: "Unknown Color Mode", key: "MEDIABRIDGE_COLOR", value: "rainbow"},
		{name: "Zero Max Bytes", key: "MEDIABRIDGE_ARTWORK_MAX_BYTES", value: "0"},
		{name: "Negative Timeout", key: "MEDIABRIDGE_ARTWORK_TIMEOUT", value: "-1s"},
		{name: "Negative Dimension", key: "MEDIABRIDGE_ARTWORK_MAX_DIMENSION", value: "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := NewAppConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}
