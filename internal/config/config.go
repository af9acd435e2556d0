// Package config loads engine configuration from a config file and
// PARLEY_-prefixed environment variables, with environment taking
// precedence.
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

const (
	configName = "config"
	configType = "yaml"
	configDir  = ".parley"
	envPrefix  = "PARLEY"
)

// Config is the resolved engine configuration.
type Config struct {
	// Provider selects the completion backend: "anthropic" or "gemini".
	Provider string
	Model    string
	APIKey   string

	TokenBudget   int
	ExecTimeout   time.Duration
	ReadyTimeout  time.Duration
	MaxSubQueries int

	// TokenEncoding names a BPE encoding (e.g. cl100k_base) used for
	// calibrated token reporting. Empty keeps the ceil(len/4) heuristic.
	TokenEncoding string

	// AgentsDir is scanned for agent JSON/YAML files by the CLI.
	AgentsDir string

	Debug bool
}

// Load reads configuration from ~/.parley/config.yaml (when present) and
// the environment. A missing config file is not an error; an unknown
// provider is.
func Load() (Config, error) {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, configDir))
	}
	v.AddConfigPath(".")

	v.SetDefault("provider", "anthropic")
	v.SetDefault("model", "")
	v.SetDefault("token_budget", 6000)
	v.SetDefault("exec_timeout", "30s")
	v.SetDefault("ready_timeout", "5s")
	v.SetDefault("max_sub_queries", 5)
	v.SetDefault("token_encoding", "")
	v.SetDefault("agents_dir", "agents")
	v.SetDefault("debug", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Config{
		Provider:      strings.ToLower(v.GetString("provider")),
		Model:         v.GetString("model"),
		APIKey:        v.GetString("api_key"),
		TokenBudget:   v.GetInt("token_budget"),
		ExecTimeout:   v.GetDuration("exec_timeout"),
		ReadyTimeout:  v.GetDuration("ready_timeout"),
		MaxSubQueries: v.GetInt("max_sub_queries"),
		TokenEncoding: v.GetString("token_encoding"),
		AgentsDir:     v.GetString("agents_dir"),
		Debug:         v.GetBool("debug"),
	}

	if cfg.Provider != "anthropic" && cfg.Provider != "gemini" {
		return Config{}, fmt.Errorf("unknown provider %q (want anthropic or gemini)", cfg.Provider)
	}
	return cfg, nil
}

// RequireAPIKey fails when no key is configured for the selected provider.
func (c Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return fmt.Errorf("no API key configured: set PARLEY_API_KEY or api_key in the config file")
	}
	return nil
}
