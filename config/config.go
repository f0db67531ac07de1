package config

import (
	"errors"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all service configuration, read from the environment.
type Config struct {
	ListenAddr        string        `env:"LISTEN_ADDR" env-default:":8080"`
	StorageConnString string        `env:"STORAGE_CONNECTION_STRING"`
	TasksTable        string        `env:"TASKS_TABLE" env-default:"tasks"`
	AccountsTable     string        `env:"ACCOUNTS_TABLE" env-default:"accounts"`
	EventsQueue       string        `env:"EVENTS_QUEUE"`
	RedisConnString   string        `env:"REDIS_CONNECTION_STRING"`
	ChangeChannel     string        `env:"CHANGE_CHANNEL" env-default:"task-changes"`
	SessionSecret     string        `env:"SESSION_SECRET"`
	SessionTTL        time.Duration `env:"SESSION_TTL" env-default:"24h"`
	TokenIssuer       string        `env:"TOKEN_ISSUER" env-default:"taskflow"`
	TokenAudience     string        `env:"TOKEN_AUDIENCE" env-default:"taskflow"`
	FederatedJWKSURL  string        `env:"FEDERATED_JWKS_URL"`
	FederatedIssuer   string        `env:"FEDERATED_ISSUER"`
	FederatedAudience string        `env:"FEDERATED_AUDIENCE"`
	CacheTTL          time.Duration `env:"CACHE_TTL" env-default:"5m"`
	Debug             bool          `env:"DEBUG" env-default:"false"`
}

// Load reads configuration from the environment and validates the fields the
// service cannot run without.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.StorageConnString == "" {
		return Config{}, errors.New("STORAGE_CONNECTION_STRING is required")
	}
	if cfg.RedisConnString == "" {
		return Config{}, errors.New("REDIS_CONNECTION_STRING is required")
	}
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("SESSION_SECRET is required")
	}
	return cfg, nil
}
