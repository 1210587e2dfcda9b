// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment-driven configuration of the service.
type Config struct {
	StorageConnectionString string `env:"STORAGE_CONNECTION_STRING,notEmpty"`
	EventsTable             string `env:"EVENTS_TABLE" envDefault:"incidentevents"`
	SummariesTable          string `env:"SUMMARIES_TABLE" envDefault:"incidentsummaries"`
	EventBusQueue           string `env:"EVENT_BUS_QUEUE" envDefault:"incident-events"`

	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING,notEmpty"`
	CacheTTL              time.Duration `env:"CACHE_TTL" envDefault:"12h"`
	UpdatesChannel        string        `env:"UPDATES_CHANNEL" envDefault:"incident-updates"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	Debug      bool   `env:"DEBUG" envDefault:"false"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
