// Package config loads e2ecore configuration from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (E2ECORE_DRIVER_TIMEOUT, ...).
const EnvPrefix = "E2ECORE"

// Config is the root configuration.
type Config struct {
	CLIPath string        `mapstructure:"cli_path"`
	Logging LoggingConfig `mapstructure:"logging"`
	Driver  DriverConfig  `mapstructure:"driver"`
	Events  EventsConfig  `mapstructure:"events"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	SSH     SSHConfig     `mapstructure:"ssh"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DriverConfig holds session driver defaults.
type DriverConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	StripColors     bool          `mapstructure:"strip_colors"`
	Echo            bool          `mapstructure:"echo"`
	TranscriptLines int           `mapstructure:"transcript_lines"`
}

// EventsConfig configures the SQLite session log.
type EventsConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// SSHConfig selects a remote host to launch commands on.
type SSHConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	KeyPath    string        `mapstructure:"key_path"`
	KnownHosts string        `mapstructure:"known_hosts"`
	Insecure   bool          `mapstructure:"insecure"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a remote host is configured.
func (c SSHConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		CLIPath: "amplify",
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		Driver: DriverConfig{
			Timeout:         5 * time.Minute,
			StripColors:     true,
			TranscriptLines: 50,
		},
		SSH: SSHConfig{
			Port:    22,
			Timeout: 10 * time.Second,
		},
	}
}

// New returns a viper instance with defaults and env binding applied.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (explicit path, or the user default when present)
// and unmarshals the merged result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = New()
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if dir, err := DefaultDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Driver.Timeout <= 0 {
		return fmt.Errorf("driver.timeout must be positive")
	}
	if c.Driver.TranscriptLines < 0 {
		return fmt.Errorf("driver.transcript_lines must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "text", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.SSH.Enabled() {
		if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
			return fmt.Errorf("ssh.port out of range: %d", c.SSH.Port)
		}
	}
	return nil
}

// DefaultDir returns ~/.config/e2ecore.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "e2ecore"), nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("cli_path", cfg.CLIPath)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("driver.timeout", cfg.Driver.Timeout)
	v.SetDefault("driver.strip_colors", cfg.Driver.StripColors)
	v.SetDefault("driver.echo", cfg.Driver.Echo)
	v.SetDefault("driver.transcript_lines", cfg.Driver.TranscriptLines)
	v.SetDefault("events.db_path", cfg.Events.DBPath)
	v.SetDefault("metrics.textfile", cfg.Metrics.Textfile)
	v.SetDefault("ssh.host", cfg.SSH.Host)
	v.SetDefault("ssh.port", cfg.SSH.Port)
	v.SetDefault("ssh.user", cfg.SSH.User)
	v.SetDefault("ssh.key_path", cfg.SSH.KeyPath)
	v.SetDefault("ssh.known_hosts", cfg.SSH.KnownHosts)
	v.SetDefault("ssh.insecure", cfg.SSH.Insecure)
	v.SetDefault("ssh.timeout", cfg.SSH.Timeout)
}
