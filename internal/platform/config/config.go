// Package config loads server configuration from the environment so main
// stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr            string        `env:"GATECHECK_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"GATECHECK_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"GATECHECK_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Redis RedisConfig `envPrefix:"GATECHECK_REDIS_"`
	Kafka KafkaConfig `envPrefix:"GATECHECK_KAFKA_"`
}

// RedisConfig configures the guest store backend. An empty URL selects the
// in-memory store (single-instance dev mode).
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the notification dispatcher. Empty seeds select the
// log-only dispatcher.
type KafkaConfig struct {
	Seeds []string `env:"SEEDS" envSeparator:","`
	Topic string   `env:"TOPIC" envDefault:"gatecheck.notifications"`
}

// FromEnv parses the configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
