package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env is the configuration read from environment variables. Postgres
// connection settings use the libpq names.
type Env struct {
	PGHost     string `env:"PGHOST" envDefault:"localhost"`
	PGPort     int    `env:"PGPORT" envDefault:"5432"`
	PGUser     string `env:"PGUSER" envDefault:"stimuli"`
	PGDatabase string `env:"PGDATABASE" envDefault:"stimuli"`
	PGSSLMode  string `env:"PGSSLMODE" envDefault:"disable"`

	MQTTURL      string `env:"MQTT_URL"`
	MQTTUsername string `env:"MQTT_USERNAME"`
	TopicPrefix  string `env:"STIMULI_MQTT_PREFIX"`

	RunID        string `env:"STIMULI_RUN_ID"`
	Design       string `env:"STIMULI_DESIGN"`
	StoreBackend string `env:"STIMULI_STORE"`
	StorePath    string `env:"STIMULI_STORE_PATH"`
	HTTPPort     int    `env:"STIMULI_HTTP_PORT"`

	AlertWebhookURL string        `env:"STIMULI_ALERT_WEBHOOK_URL"`
	MQTTAlertDelay  time.Duration `env:"STIMULI_MQTT_ALERT_DELAY" envDefault:"30s"`
	StoreAlertDelay time.Duration `env:"STIMULI_STORE_ALERT_DELAY" envDefault:"5s"`

	TLSCert string `env:"STIMULI_TLS_CERT"`
	TLSKey  string `env:"STIMULI_TLS_KEY"`

	// Secrets are resolved with ResolveSecret, not parsed.
	PGPassword   string
	MQTTPassword string
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv parses Env and resolves its secrets.
func LoadEnv() (*Env, error) {
	var e Env
	if err := ParseEnv(&e); err != nil {
		return nil, err
	}
	secrets, err := ResolveSecrets("PGPASSWORD", "MQTT_PASSWORD")
	if err != nil {
		return nil, err
	}
	e.PGPassword = secrets["PGPASSWORD"]
	e.MQTTPassword = secrets["MQTT_PASSWORD"]
	return &e, nil
}
