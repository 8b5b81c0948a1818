// Package config loads application configuration from the user's config
// directory and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	AppName     = "taskmaster"
	EnvFileName = "config.env"
)

// Config is the full application configuration, loaded from environment
// variables (optionally seeded from the config.env file).
type Config struct {
	// FirebaseAPIKey is the web API key of the Firebase project.
	FirebaseAPIKey string `env:"FIREBASE_API_KEY"`
	// FirebaseDatabaseURL is the root URL of the realtime database.
	FirebaseDatabaseURL string `env:"FIREBASE_DATABASE_URL"`

	// DataDir overrides where the session file, key file and task cache
	// live. Defaults to ~/.taskmaster.
	DataDir string `env:"TASKMASTER_DATA_DIR"`

	// TokenTTL is how long a minted id token is trusted before a proactive
	// refresh. Kept below the backend's own token lifetime.
	TokenTTL time.Duration `env:"TASKMASTER_TOKEN_TTL" envDefault:"55m"`

	// EncryptSession selects the encrypted session store.
	EncryptSession bool `env:"TASKMASTER_ENCRYPT_SESSION" envDefault:"true"`

	// RateLimit caps backend calls per RateWindow.
	RateLimit  int           `env:"TASKMASTER_RATE_LIMIT" envDefault:"100"`
	RateWindow time.Duration `env:"TASKMASTER_RATE_WINDOW" envDefault:"1m"`

	// KeepAliveInterval is how often the background refresh loop runs.
	KeepAliveInterval time.Duration `env:"TASKMASTER_KEEPALIVE_INTERVAL" envDefault:"30m"`
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// Load parses the configuration from the environment and fills defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, "."+AppName)
	}
	return cfg, nil
}

// Missing returns the names of required settings that are not set.
func (c *Config) Missing() []string {
	var missing []string
	if c.FirebaseAPIKey == "" {
		missing = append(missing, "FIREBASE_API_KEY")
	}
	if c.FirebaseDatabaseURL == "" {
		missing = append(missing, "FIREBASE_DATABASE_URL")
	}
	return missing
}
