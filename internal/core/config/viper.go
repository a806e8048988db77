package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// Environment > config file > defaults precedence; CLI flags override on
// top of the returned struct.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database_url", "sqlite://rulegov.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("max_tree_depth", DefaultConfig().MaxTreeDepth)

	// Bind environment variables with RG_ prefix
	v.SetEnvPrefix("RG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:  v.GetString("database_url"),
		LogLevel:     v.GetString("log_level"),
		LogFormat:    v.GetString("log_format"),
		MaxTreeDepth: v.GetInt("max_tree_depth"),
	}

	// The field catalog has no sensible flat default in viper; fall back to
	// the built-in catalog when the config file does not declare one.
	if v.IsSet("fields") {
		if err := v.UnmarshalKey("fields", &cfg.Fields); err != nil {
			return nil, fmt.Errorf("failed to parse field catalog: %w", err)
		}
	} else {
		cfg.Fields = defaultFields()
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks depth bounds and that the field catalog parses
// into a usable registry.
func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url cannot be empty")
	}
	if cfg.MaxTreeDepth <= 0 {
		return fmt.Errorf("max_tree_depth must be positive, got %d", cfg.MaxTreeDepth)
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", cfg.LogFormat)
	}
	if len(cfg.Fields) == 0 {
		return fmt.Errorf("field catalog cannot be empty")
	}
	if _, err := cfg.Registry(); err != nil {
		return err
	}
	return nil
}
