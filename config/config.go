// Package config loads harness settings from defaults, an optional
// xmlharness.yaml and XMLHARNESS_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

const (
	// AppName names the config directory and the environment prefix.
	AppName = "xmlharness"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "xmlharness"
)

// Config is the resolved configuration.
type Config struct {
	// Home is XMLHARNESS_HOME; the samples directory defaults to Home/samples.
	Home string `mapstructure:"home"`
	// Test is the default scenario selection.
	Test string `mapstructure:"test"`
	// Ask turns on confirmation between scenarios.
	Ask      bool   `mapstructure:"ask"`
	LogLevel string `mapstructure:"log_level"`
	// Keyring enables OS keyring credentials for http(s) resources.
	Keyring bool `mapstructure:"keyring"`
	// Debounce is the quiet period of the watch command.
	Debounce time.Duration `mapstructure:"debounce"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Test:     "all",
		Ask:      true,
		LogLevel: "warn",
		Debounce: 500 * time.Millisecond,
	}
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// ConfigFile, when set, is the only file read and must exist.
	ConfigFile string
	// SearchPaths defaults to the working directory then ConfigDir().
	SearchPaths []string
}

// ConfigDir is $XDG_CONFIG_HOME/xmlharness, or ~/.config/xmlharness.
func ConfigDir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName), nil
}

// Load resolves the configuration. It returns the path of the file that was
// read, or "" when only defaults and the environment applied.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("home", defaults.Home)
	v.SetDefault("test", defaults.Test)
	v.SetDefault("ask", defaults.Ask)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("keyring", defaults.Keyring)
	v.SetDefault("debounce", defaults.Debounce)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	} else {
		paths := opts.SearchPaths
		if paths == nil {
			paths = []string{"."}
			if dir, err := ConfigDir(); err == nil {
				paths = append(paths, dir)
			}
		}
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("yaml")
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, "", fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Test == "" {
		cfg.Test = defaults.Test
	}
	if _, err := cfg.Level(); err != nil {
		return nil, "", err
	}
	return &cfg, v.ConfigFileUsed(), nil
}

// Level parses LogLevel.
func (c *Config) Level() (log.Level, error) {
	if c.LogLevel == "" {
		return log.WarnLevel, nil
	}
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
