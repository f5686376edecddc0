// Package config loads TLink's runtime configuration from the environment
// using caarlos0/env, the way dmitrymomot-saaskit and hayabusa-cloud-sess
// source their own service configuration.
package config

import "github.com/caarlos0/env/v11"

// Config holds the tunables tlinkctl and example programs read at startup.
type Config struct {
	LogLevel          string `env:"TLINK_LOG_LEVEL" envDefault:"info"`
	LogJSON           bool   `env:"TLINK_LOG_JSON" envDefault:"false"`
	DefaultBufferSize int    `env:"TLINK_DEFAULT_BUFFER_SIZE" envDefault:"16"`
	DefaultMode       string `env:"TLINK_DEFAULT_MODE" envDefault:"broadcast"`
}

// Load reads Config from the process environment, applying defaults for
// anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
