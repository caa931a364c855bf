// Package config loads service configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/yourusername/chart-render-service/pkg/model"
)

// Config is the process-wide configuration consumed by the core.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Renderer struct {
		// Backend selects the engine: "chromium" (go-rod, default) or
		// "playwright".
		Backend        string `yaml:"backend"`
		BrowserPath    string `yaml:"browser_path"`
		PoolSize       int    `yaml:"pool_size"`
		SessionMaxUses int    `yaml:"session_max_uses"`

		AcquireTimeoutMS int `yaml:"acquire_timeout_ms"`
		LoadTimeoutMS    int `yaml:"load_timeout_ms"`
		RenderTimeoutMS  int `yaml:"render_timeout_ms"`
		MaxTimeoutMS     int `yaml:"max_timeout_ms"`
		PollIntervalMS   int `yaml:"poll_interval_ms"`

		MaxWidth  int `yaml:"max_width"`
		MaxHeight int `yaml:"max_height"`
	} `yaml:"renderer"`

	Store struct {
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"store"`

	Janitor struct {
		// Schedule is a cron expression with a seconds field.
		Schedule string `yaml:"schedule"`
	} `yaml:"janitor"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8000"
	cfg.Renderer.Backend = "chromium"
	cfg.Renderer.PoolSize = 4
	cfg.Renderer.SessionMaxUses = 32
	cfg.Renderer.AcquireTimeoutMS = 10000
	cfg.Renderer.LoadTimeoutMS = 10000
	cfg.Renderer.RenderTimeoutMS = 30000
	cfg.Renderer.MaxTimeoutMS = 60000
	cfg.Renderer.PollIntervalMS = 100
	cfg.Renderer.MaxWidth = 4000
	cfg.Renderer.MaxHeight = 4000
	cfg.Store.Path = "chart-renderd.db"
	cfg.Store.RetentionDays = 30
	cfg.Janitor.Schedule = "0 0 * * * *"
	return cfg
}

// Load reads configuration: defaults, then the YAML file at path (if any),
// then RENDERER_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("RENDERER_ADDR", &cfg.Server.Addr)
	setString("RENDERER_BACKEND", &cfg.Renderer.Backend)
	setString("RENDERER_BROWSER_PATH", &cfg.Renderer.BrowserPath)
	setInt("RENDERER_POOL_SIZE", &cfg.Renderer.PoolSize)
	setInt("RENDERER_SESSION_MAX_USES", &cfg.Renderer.SessionMaxUses)
	setInt("RENDERER_ACQUIRE_TIMEOUT_MS", &cfg.Renderer.AcquireTimeoutMS)
	setInt("RENDERER_LOAD_TIMEOUT_MS", &cfg.Renderer.LoadTimeoutMS)
	setInt("RENDERER_RENDER_TIMEOUT_MS", &cfg.Renderer.RenderTimeoutMS)
	setInt("RENDERER_MAX_TIMEOUT_MS", &cfg.Renderer.MaxTimeoutMS)
	setInt("RENDERER_POLL_INTERVAL_MS", &cfg.Renderer.PollIntervalMS)
	setInt("RENDERER_MAX_WIDTH", &cfg.Renderer.MaxWidth)
	setInt("RENDERER_MAX_HEIGHT", &cfg.Renderer.MaxHeight)
	setString("RENDERER_DB_PATH", &cfg.Store.Path)
	setInt("RENDERER_RETENTION_DAYS", &cfg.Store.RetentionDays)
	setString("RENDERER_JANITOR_SCHEDULE", &cfg.Janitor.Schedule)
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Renderer.Backend != "chromium" && c.Renderer.Backend != "playwright" {
		return fmt.Errorf("renderer.backend must be \"chromium\" or \"playwright\", got %q", c.Renderer.Backend)
	}
	if c.Renderer.PoolSize < 1 {
		return fmt.Errorf("renderer.pool_size must be at least 1, got %d", c.Renderer.PoolSize)
	}
	if c.Renderer.MaxWidth < model.MinDimension || c.Renderer.MaxHeight < model.MinDimension {
		return fmt.Errorf("renderer.max_width/max_height must be at least %d", model.MinDimension)
	}
	if c.Renderer.RenderTimeoutMS < model.MinTimeoutMS {
		return fmt.Errorf("renderer.render_timeout_ms must be at least %d, got %d",
			model.MinTimeoutMS, c.Renderer.RenderTimeoutMS)
	}
	if c.Renderer.MaxTimeoutMS < c.Renderer.RenderTimeoutMS {
		return fmt.Errorf("renderer.max_timeout_ms (%d) must not be below render_timeout_ms (%d)",
			c.Renderer.MaxTimeoutMS, c.Renderer.RenderTimeoutMS)
	}
	if c.Store.RetentionDays < 1 {
		return fmt.Errorf("store.retention_days must be at least 1, got %d", c.Store.RetentionDays)
	}
	return nil
}

// Limits exposes the option caps validation needs.
func (c *Config) Limits() model.Limits {
	return model.Limits{
		MaxWidth:         c.Renderer.MaxWidth,
		MaxHeight:        c.Renderer.MaxHeight,
		DefaultTimeoutMS: c.Renderer.RenderTimeoutMS,
		MaxTimeoutMS:     c.Renderer.MaxTimeoutMS,
	}
}
