// Package config provides daemon configuration for acpd.
// It supports loading configuration from environment variables, a config
// file, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kandev/acpd/internal/common/logger"
)

// Config holds all configuration sections for acpd.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Logging  logger.LoggingConfig `mapstructure:"logging"`
	ACP      ACPConfig            `mapstructure:"acp"`
	DataRoot string               `mapstructure:"dataRoot"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// ACPConfig points at the agent configuration file.
type ACPConfig struct {
	// ConfigPath is the path to the ACP agent config (acp.json).
	// Empty means <dataRoot>/acp.json.
	ConfigPath string `mapstructure:"configPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// AgentConfigPath resolves the effective path of the ACP agent config file.
func (c *Config) AgentConfigPath() string {
	if c.ACP.ConfigPath != "" {
		return c.ACP.ConfigPath
	}
	return filepath.Join(c.DataRoot, "acp.json")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("acp.configPath", "")
	v.SetDefault("dataRoot", defaultDataRoot())
}

func defaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".acpd"
	}
	return filepath.Join(home, ".acpd")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix ACPD_ with underscore
// separators (e.g. ACPD_SERVER_PORT).
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ACPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase keys to SNAKE_CASE env vars,
	// so bind the ones where the spellings differ.
	_ = v.BindEnv("acp.configPath", "ACPD_ACP_CONFIG_PATH")
	_ = v.BindEnv("dataRoot", "ACPD_DATA_ROOT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/acpd/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}
