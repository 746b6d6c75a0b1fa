package config

import (
	"os"
	"time"

	"archetype-chat-service/internal/domain"
	"archetype-chat-service/internal/scoring"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	ChatAPI struct {
		BaseURL string `yaml:"baseUrl"`
		Timeout string `yaml:"timeout"`
	} `yaml:"chatApi"`
	Scoring *domain.ScoringConfig `yaml:"scoring"`
	Log     struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ScoringConfig returns the configured scoring section, or the built-in
// archetype set when the section is absent.
func (c Config) ScoringConfig() domain.ScoringConfig {
	if c.Scoring == nil || len(c.Scoring.Categories) == 0 {
		return scoring.DefaultConfig()
	}
	cfg := *c.Scoring
	if len(cfg.TieBreakOrder) == 0 {
		cfg.TieBreakOrder = append([]domain.Category(nil), cfg.Categories...)
	}
	return cfg
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
