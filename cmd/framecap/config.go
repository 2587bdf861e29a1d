package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/gogpu/framecap/capture"
	"github.com/gogpu/framecap/framebuffer"
	"github.com/gogpu/framecap/ingest"
)

// Config is the framecap.yaml layout. Every key can be overridden from the
// environment with the FRAMECAP_ prefix, dots replaced by underscores
// (FRAMECAP_POOL_IDLE_BUDGET_MB).
type Config struct {
	Position    string `mapstructure:"position"`
	FrameRate   int    `mapstructure:"fps"`
	Orientation string `mapstructure:"orientation"`

	// Frames stops a run after this many buffers. 0 runs until interrupted.
	Frames    int  `mapstructure:"frames"`
	Synthetic bool `mapstructure:"synthetic"`

	Log    LogConfig    `mapstructure:"log"`
	Pool   PoolConfig   `mapstructure:"pool"`
	Ingest IngestConfig `mapstructure:"ingest"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// PoolConfig sizes the frame buffer pool.
type PoolConfig struct {
	IdleBudgetMB uint64 `mapstructure:"idle_budget_mb"`
	Tag          string `mapstructure:"tag"`
}

// IngestConfig controls the hand-off from capture to the consumer.
type IngestConfig struct {
	QueueDepth   int  `mapstructure:"queue_depth"`
	DropWhenFull bool `mapstructure:"drop_when_full"`
}

const configName = "framecap"

// newViper returns a viper instance with framecap's search paths, env
// binding and defaults. path, if set, names the config file explicitly.
func newViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
	}

	v.SetEnvPrefix("FRAMECAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	def := capture.DefaultConfiguration()
	v.SetDefault("position", def.Position.String())
	v.SetDefault("fps", def.FrameRate)
	v.SetDefault("orientation", def.Orientation.String())
	v.SetDefault("frames", 0)
	v.SetDefault("synthetic", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("pool.idle_budget_mb", uint64(framebuffer.DefaultIdleBudget>>20))
	v.SetDefault("pool.tag", "frame")
	v.SetDefault("ingest.queue_depth", ingest.DefaultQueueDepth)
	v.SetDefault("ingest.drop_when_full", true)
}

// loadConfig reads the config file, if any, and decodes the merged
// settings. A missing file in the search path is not an error.
func loadConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return decodeConfig(v)
}

// decodeConfig unmarshals and validates the settings viper currently holds.
func decodeConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FrameRate <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FrameRate)
	}
	if c.Frames < 0 {
		return fmt.Errorf("frames must not be negative, got %d", c.Frames)
	}
	if c.Ingest.QueueDepth < 0 {
		return fmt.Errorf("ingest.queue_depth must not be negative, got %d", c.Ingest.QueueDepth)
	}
	if _, err := c.captureConfig(); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

// captureConfig converts the capture keys to a capture.Configuration.
func (c *Config) captureConfig() (capture.Configuration, error) {
	pos, err := capture.ParsePosition(strings.ToLower(c.Position))
	if err != nil {
		return capture.Configuration{}, err
	}
	orient, err := capture.ParseOrientation(strings.ToLower(c.Orientation))
	if err != nil {
		return capture.Configuration{}, err
	}
	return capture.Configuration{
		Position:    pos,
		FrameRate:   c.FrameRate,
		Orientation: orient,
	}, nil
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

func (c *Config) poolOptions() []framebuffer.PoolOption {
	return []framebuffer.PoolOption{
		framebuffer.WithIdleBudget(c.Pool.IdleBudgetMB << 20),
		framebuffer.WithTag(c.Pool.Tag),
	}
}
