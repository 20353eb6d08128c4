// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Step    StepConfig    `mapstructure:"step" yaml:"step"`
	Script  ScriptConfig  `mapstructure:"script" yaml:"script"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the browser instances a session manager
// launches.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	ViewportWidth   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	// InstallDriver runs the driver's bundled browser download on startup
	// when the binaries are missing.
	InstallDriver bool `mapstructure:"install_driver" yaml:"install_driver"`
}

// StepConfig carries the session-wide step defaults applied whenever a
// request's own wait policy is zero.
type StepConfig struct {
	DefaultTimeout    time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	DefaultPoll       time.Duration `mapstructure:"default_poll" yaml:"default_poll"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// QueueSize bounds each session's pending step queue.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// ScriptConfig tunes the step-script runner.
type ScriptConfig struct {
	// Pace caps dispatched steps per second; zero disables pacing.
	Pace float64 `mapstructure:"pace" yaml:"pace"`
	// KeepGoing continues past non-fatal step failures.
	KeepGoing bool `mapstructure:"keep_going" yaml:"keep_going"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "stepwright")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.install_driver", false)

	// -- Step --
	v.SetDefault("step.default_timeout", "30s")
	v.SetDefault("step.default_poll", "100ms")
	v.SetDefault("step.navigation_timeout", "90s")
	v.SetDefault("step.queue_size", 64)

	// -- Script --
	v.SetDefault("script.pace", 0.0)
	v.SetDefault("script.keep_going", false)
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
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser.viewport dimensions must be positive")
	}
	if c.Step.DefaultTimeout <= 0 {
		return fmt.Errorf("step.default_timeout must be a positive duration")
	}
	if c.Step.DefaultPoll <= 0 {
		return fmt.Errorf("step.default_poll must be a positive duration")
	}
	if c.Step.DefaultPoll > c.Step.DefaultTimeout {
		return fmt.Errorf("step.default_poll must not exceed step.default_timeout")
	}
	if c.Step.NavigationTimeout <= 0 {
		return fmt.Errorf("step.navigation_timeout must be a positive duration")
	}
	if c.Step.QueueSize <= 0 {
		return fmt.Errorf("step.queue_size must be a positive integer")
	}
	if c.Script.Pace < 0 {
		return fmt.Errorf("script.pace must not be negative")
	}
	return nil
}
