// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/xkilldash9x/pagedriver/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Page() PageConfig
	Renderer() RendererConfig
	Metrics() MetricsConfig

	// Setters used by command line overrides.
	SetLoggerLevel(level string)
	SetRendererBackend(name string)
	SetPageViewport(width, height int)
	SetPageTimeout(d time.Duration)
	SetPageWait(d time.Duration)
	SetPageUserAgent(ua string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	PageCfg     PageConfig     `mapstructure:"page" yaml:"page"`
	RendererCfg RendererConfig `mapstructure:"renderer" yaml:"renderer"`
	MetricsCfg  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Page() PageConfig         { return c.PageCfg }
func (c *Config) Renderer() RendererConfig { return c.RendererCfg }
func (c *Config) Metrics() MetricsConfig   { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetLoggerLevel(level string)    { c.LoggerCfg.Level = level }
func (c *Config) SetRendererBackend(name string) { c.RendererCfg.Backend = name }
func (c *Config) SetPageViewport(width, height int) {
	c.PageCfg.Width = width
	c.PageCfg.Height = height
}
func (c *Config) SetPageTimeout(d time.Duration) { c.PageCfg.Timeout = d }
func (c *Config) SetPageWait(d time.Duration)    { c.PageCfg.Wait = d }
func (c *Config) SetPageUserAgent(ua string)     { c.PageCfg.UserAgent = ua }

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// PageConfig holds the defaults for every page session.
type PageConfig struct {
	Width     int           `mapstructure:"width" yaml:"width"`
	Height    int           `mapstructure:"height" yaml:"height"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Wait      time.Duration `mapstructure:"wait" yaml:"wait"`
	FullPage  bool          `mapstructure:"fullpage" yaml:"fullpage"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	// Popups enables capture of window.open sessions.
	Popups bool `mapstructure:"popups" yaml:"popups"`
	// BlockedURLs are substrings; matching requests are cancelled.
	BlockedURLs []string `mapstructure:"blocked_urls" yaml:"blocked_urls"`
}

// Options converts the page defaults into session options.
func (p PageConfig) Options() schemas.PageOptions {
	return schemas.PageOptions{
		Width:     p.Width,
		Height:    p.Height,
		Timeout:   p.Timeout,
		Wait:      p.Wait,
		FullPage:  p.FullPage,
		UserAgent: p.UserAgent,
	}
}

// RendererConfig selects and tunes the rendering backend.
type RendererConfig struct {
	// Backend is "sim" (embedded, pure Go) or "cdp" (headless Chrome).
	Backend  string   `mapstructure:"backend" yaml:"backend"`
	ExecPath string   `mapstructure:"exec_path" yaml:"exec_path"`
	Headless bool     `mapstructure:"headless" yaml:"headless"`
	Args     []string `mapstructure:"args" yaml:"args"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// NewDefaultConfig creates a new configuration populated with the defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagedriver")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Page --
	v.SetDefault("page.width", schemas.DefaultViewportWidth)
	v.SetDefault("page.height", schemas.DefaultViewportHeight)
	v.SetDefault("page.timeout", schemas.DefaultTimeout.String())
	v.SetDefault("page.wait", schemas.DefaultSettleWait.String())
	v.SetDefault("page.fullpage", false)
	v.SetDefault("page.user_agent", "")
	v.SetDefault("page.popups", false)
	v.SetDefault("page.blocked_urls", []string{})

	// -- Renderer --
	v.SetDefault("renderer.backend", "sim")
	v.SetDefault("renderer.exec_path", "")
	v.SetDefault("renderer.headless", true)
	v.SetDefault("renderer.args", []string{})

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9464")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.PageCfg.Validate(); err != nil {
		return fmt.Errorf("page configuration invalid: %w", err)
	}
	if c.RendererCfg.Backend == "" {
		return fmt.Errorf("renderer.backend is a required configuration field")
	}
	if c.MetricsCfg.Enabled && c.MetricsCfg.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// Validate checks the page defaults.
func (p *PageConfig) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("width and height must be positive integers (got %dx%d)", p.Width, p.Height)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if p.Wait < 0 {
		return fmt.Errorf("wait must not be negative")
	}
	return nil
}
