package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL     string `yaml:"ttl"`
		Catalog string `yaml:"catalog"`
	} `yaml:"quiz"`
	Leaderboard struct {
		DefaultLimit int `yaml:"defaultLimit" validate:"gte=0"`
		MaxLimit     int `yaml:"maxLimit" validate:"gte=0"`
	} `yaml:"leaderboard"`
}

// Load reads YAML config from path and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field formats and that limits are consistent.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Leaderboard.MaxLimit > 0 && c.Leaderboard.DefaultLimit > c.Leaderboard.MaxLimit {
		return fmt.Errorf("invalid config: leaderboard.defaultLimit %d exceeds maxLimit %d",
			c.Leaderboard.DefaultLimit, c.Leaderboard.MaxLimit)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
