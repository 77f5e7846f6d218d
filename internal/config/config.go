package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is process configuration, loaded from the environment (and a .env
// file when one is present).
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	StartCountdown   time.Duration `env:"START_COUNTDOWN" envDefault:"3s"`
	LatencyTolerance time.Duration `env:"MAX_LATENCY_TOLERANCE" envDefault:"300ms"`
	MaxOriginDrift   float64       `env:"MAX_ORIGIN_DRIFT" envDefault:"8.0"`
	StartingAmmo     int           `env:"STARTING_AMMO" envDefault:"30"`

	// Results archive. Driver "sqlite" (default) or "postgres"; DSN is a
	// file path for sqlite, a connection string for postgres. Empty driver
	// disables archiving.
	ResultsDriver string `env:"RESULTS_DRIVER" envDefault:"sqlite"`
	ResultsDSN    string `env:"RESULTS_DSN" envDefault:"cavalryfight.db"`
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
