package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	envPrefix = "MEDIABRIDGE"

	keyLogLevel            = "log_level"
	keyColor               = "color"
	keyArtworkMaxBytes     = "artwork_max_bytes"
	keyArtworkTimeout      = "artwork_timeout"
	keyArtworkMaxDimension = "artwork_max_dimension"

	defaultLogLevel        = "info"
	defaultColorMode       = ColorAuto
	defaultArtworkMaxBytes = 10 * 1024 * 1024 // 10 MB
	defaultArtworkTimeout  = 10 * time.Second
)

// Color modes for the output sink
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// AppConfig holds application configuration
type AppConfig struct {
	logLevel            string
	colorMode           string
	artworkMaxBytes     int64
	artworkTimeout      time.Duration
	artworkMaxDimension int
}

// NewAppConfig reads MEDIABRIDGE_* environment variables, falling back to defaults
func NewAppConfig() (*AppConfig, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*AppConfig, error) {
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault(keyLogLevel, defaultLogLevel)
	v.SetDefault(keyColor, defaultColorMode)
	v.SetDefault(keyArtworkMaxBytes, defaultArtworkMaxBytes)
	v.SetDefault(keyArtworkTimeout, defaultArtworkTimeout)
	v.SetDefault(keyArtworkMaxDimension, 0)

	cfg := &AppConfig{
		logLevel:            strings.ToLower(strings.TrimSpace(v.GetString(keyLogLevel))),
		colorMode:           strings.ToLower(strings.TrimSpace(v.GetString(keyColor))),
		artworkMaxBytes:     v.GetInt64(keyArtworkMaxBytes),
		artworkTimeout:      v.GetDuration(keyArtworkTimeout),
		artworkMaxDimension: v.GetInt(keyArtworkMaxDimension),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if _, err := zapcore.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("%s: %w", keyLogLevel, err)
	}

	switch c.colorMode {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%s: unknown mode %q", keyColor, c.colorMode)
	}

	if c.artworkMaxBytes <= 0 {
		return fmt.Errorf("%s must be positive, got %d", keyArtworkMaxBytes, c.artworkMaxBytes)
	}
	if c.artworkTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", keyArtworkTimeout, c.artworkTimeout)
	}
	if c.artworkMaxDimension < 0 {
		return fmt.Errorf("%s must not be negative, got %d", keyArtworkMaxDimension, c.artworkMaxDimension)
	}
	return nil
}

// GetLogLevel returns the configured zap level name
func (c *AppConfig) GetLogLevel() string {
	return c.logLevel
}

// GetColorMode returns the output colorization mode
func (c *AppConfig) GetColorMode() string {
	return c.colorMode
}

// GetArtworkMaxBytes returns the artwork read limit
func (c *AppConfig) GetArtworkMaxBytes() int64 {
	return c.artworkMaxBytes
}

// GetArtworkTimeout returns the remote artwork download timeout
func (c *AppConfig) GetArtworkTimeout() time.Duration {
	return c.artworkTimeout
}

// GetArtworkMaxDimension returns the thumbnail edge limit (0 = unchanged)
func (c *AppConfig) GetArtworkMaxDimension() int {
	return c.artworkMaxDimension
}
