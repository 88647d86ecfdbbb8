// Package config loads CLI configuration from an optional YAML file overlaid
// with PORTAL_* environment variables. A .env file in the working directory
// is honored when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrConfig = errors.New("unable to load configuration")

type Config struct {
	ServerURL string `yaml:"server_url"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Room      int64  `yaml:"room"`
	LogLevel  string `yaml:"log_level"`
}

func defaults() *Config {
	return &Config{
		ServerURL: "http://localhost:8000",
		LogLevel:  "info",
	}
}

// Load reads path (optional, "" skips the file), then applies environment
// overrides. A missing file is an error only when a path was given.
func Load(path string) (*Config, error) {
	cfg := defaults()

	// Ignore the error: a missing .env is normal.
	_ = godotenv.Load()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Join(ErrConfig, err)
		}
		if err = yaml.Unmarshal(b, cfg); err != nil {
			return nil, errors.Join(ErrConfig, err)
		}
	}

	if v := os.Getenv("PORTAL_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("PORTAL_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("PORTAL_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("PORTAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PORTAL_ROOM"); v != "" {
		room, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid PORTAL_ROOM %q", ErrConfig, v)
		}
		cfg.Room = room
	}
	return cfg, nil
}
