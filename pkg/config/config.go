package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for alligator-engine.
// Everything comes from environment variables; secrets (Mongo credentials,
// API tokens) are never read from files.
type Config struct {
	// Server configuration
	BindAddr string `env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `env:"PORT" env-default:"5042"`
	Env      string `env:"ENVIRONMENT" env-default:"local"`
	Version  string // Set at load time, not from env

	// APIToken authenticates ingress requests (token query parameter).
	APIToken string `env:"ALLIGATOR_TOKEN"`

	Mongo  MongoConfig
	Redis  RedisConfig
	LamAPI LamAPIConfig
	Worker WorkerConfig
}

// MongoConfig holds document store configuration.
// MONGO_ENDPOINT is "host:port" to mirror the deployment contract.
type MongoConfig struct {
	Endpoint string `env:"MONGO_ENDPOINT" env-default:"localhost:27017"`
	Username string `env:"MONGO_INITDB_ROOT_USERNAME"`
	Password string `env:"MONGO_INITDB_ROOT_PASSWORD"`
	Database string `env:"MONGO_DBNAME" env-default:"alligator"`
	// AuthSource is the authentication database for the root user.
	AuthSource string `env:"MONGO_AUTH_SOURCE" env-default:"admin"`
}

// RedisConfig holds the job-signal store configuration.
// The only key used is STOP: set by an idle worker, cleared by the ingress
// when new work is enqueued.
type RedisConfig struct {
	Endpoint string `env:"REDIS_ENDPOINT" env-default:"localhost:6379"`
	JobDB    int    `env:"REDIS_JOB_DB" env-default:"1"`
	Password string `env:"REDIS_PASSWORD"`
}

// LamAPIConfig holds the KG lookup-service configuration.
type LamAPIConfig struct {
	Endpoint string `env:"LAMAPI_ENDPOINT"`
	Token    string `env:"LAMAPI_TOKEN"`
	// MaxConcurrentRequests bounds in-flight HTTP calls to the service.
	// Deployments that share a LamAPI instance run this as low as 4.
	MaxConcurrentRequests int `env:"MAX_CONCURRENT_REQUESTS" env-default:"50"`
	// RequestTimeoutSeconds is the total deadline for one call, in seconds.
	RequestTimeoutSeconds int `env:"LAMAPI_TIMEOUT_SECONDS" env-default:"1000"`
}

// WorkerConfig holds annotation worker tunables.
type WorkerConfig struct {
	// LookupLimit is the maximum number of candidates fetched per cell.
	LookupLimit int `env:"LOOKUP_LIMIT" env-default:"50"`
	// RowsPerPage is the page size used when splitting uploaded tables.
	RowsPerPage int `env:"ROWS_PER_PAGE" env-default:"100"`
	// PollIntervalSeconds is how long an idle worker sleeps between claims, in seconds.
	PollIntervalSeconds int `env:"WORKER_POLL_SECONDS" env-default:"5"`
	// PNModelPath and RNModelPath point at the serialized scoring models.
	PNModelPath string `env:"PN_MODEL_PATH" env-default:"ml_models/linker_pn.json"`
	RNModelPath string `env:"RN_MODEL_PATH" env-default:"ml_models/linker_rn.json"`
}

// Load reads configuration from the environment.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate fails fast on missing required settings so the worker never starts
// half-configured (taxonomy: configuration error, no partial state written).
func (c *Config) validate() error {
	var missing []string
	if c.APIToken == "" {
		missing = append(missing, "ALLIGATOR_TOKEN")
	}
	if c.LamAPI.Endpoint == "" {
		missing = append(missing, "LAMAPI_ENDPOINT")
	}
	if c.LamAPI.Token == "" {
		missing = append(missing, "LAMAPI_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.LamAPI.MaxConcurrentRequests < 1 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be >= 1, got %d", c.LamAPI.MaxConcurrentRequests)
	}
	if c.Worker.LookupLimit < 1 {
		return fmt.Errorf("LOOKUP_LIMIT must be >= 1, got %d", c.Worker.LookupLimit)
	}
	if c.Worker.RowsPerPage < 1 {
		return fmt.Errorf("ROWS_PER_PAGE must be >= 1, got %d", c.Worker.RowsPerPage)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// URI returns a MongoDB connection URI.
func (c *MongoConfig) URI() string {
	if c.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s/?authSource=%s", c.Username, c.Password, c.Endpoint, c.AuthSource)
	}
	return fmt.Sprintf("mongodb://%s", c.Endpoint)
}
