// Package config loads application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (REELCHAT_* overrides, DATABASE_URL)
//  2. Config file (./config.yaml)
//  3. Default values
//
// Validation uses sentinel errors so callers can dispatch with
// errors.Is(). GEMINI_API_KEY is read directly by the Genkit plugin,
// not through Viper; Load only checks that it is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the generation model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model name is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidRetrieval indicates the retrieval knobs are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval parameters")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidListenAddr indicates the HTTP listen address is empty.
	ErrInvalidListenAddr = errors.New("invalid listen address")
)

const (
	// DefaultModelName is the default generation model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default embedding model.
	// text-embedding-004 outputs 768 dimensions, matching the
	// vector(768) movies column.
	DefaultEmbedderModel = "text-embedding-004"

	// googleAIPrefix qualifies model names for the Genkit googlegenai
	// plugin.
	googleAIPrefix = "googleai/"

	// MaxNumCandidates is the upper bound pgvector accepts for
	// hnsw.ef_search. Larger values would fail every search at runtime,
	// so they are rejected at startup.
	MaxNumCandidates = 1000
)

// Config stores application configuration.
type Config struct {
	// Generation and embedding models.
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`

	// Retrieval knobs. NumCandidates is the index search breadth,
	// Limit the evidence set size per question.
	NumCandidates int `mapstructure:"num_candidates"`
	Limit         int `mapstructure:"limit"`

	// HTTP server.
	ListenAddr  string   `mapstructure:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Rate limiting, per client IP.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// TrustProxy enables X-Real-IP/X-Forwarded-For handling. Set it
	// only behind a reverse proxy.
	TrustProxy bool `mapstructure:"trust_proxy"`

	// PostgreSQL connection.
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Logging.
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from defaults, config.yaml and environment
// overrides, then validates it. Validation failures are fatal; the
// process should not start on a bad configuration.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("num_candidates", 100)
	v.SetDefault("limit", 5)

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("trust_proxy", false)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "reelchat")
	v.SetDefault("postgres_password", "reelchat_dev_password")
	v.SetDefault("postgres_db_name", "reelchat")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", true)
}

// bindEnvVariables binds REELCHAT_* environment overrides. The bound
// keys are hardcoded, so a bind error is a bug, not a runtime failure.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "REELCHAT_MODEL_NAME")
	mustBind("embedder_model", "REELCHAT_EMBEDDER_MODEL")
	mustBind("num_candidates", "REELCHAT_NUM_CANDIDATES")
	mustBind("limit", "REELCHAT_LIMIT")
	mustBind("listen_addr", "REELCHAT_LISTEN_ADDR")
	mustBind("cors_origins", "REELCHAT_CORS_ORIGINS")
	mustBind("rate_limit_rps", "REELCHAT_RATE_LIMIT_RPS")
	mustBind("rate_limit_burst", "REELCHAT_RATE_LIMIT_BURST")
	mustBind("trust_proxy", "REELCHAT_TRUST_PROXY")
	mustBind("log_level", "REELCHAT_LOG_LEVEL")
	mustBind("log_json", "REELCHAT_LOG_JSON")

	// GEMINI_API_KEY is read directly by the Genkit googlegenai
	// plugin; Validate only checks its presence.
}

// Validate checks the configuration for fatal problems. Each failure
// wraps the matching sentinel error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidEmbedderModel)
	}
	if c.NumCandidates <= 0 || c.Limit <= 0 {
		return fmt.Errorf("%w: num_candidates=%d limit=%d, both must be positive",
			ErrInvalidRetrieval, c.NumCandidates, c.Limit)
	}
	if c.NumCandidates > MaxNumCandidates {
		return fmt.Errorf("%w: num_candidates=%d exceeds the pgvector ef_search maximum %d",
			ErrInvalidRetrieval, c.NumCandidates, MaxNumCandidates)
	}
	if c.NumCandidates < c.Limit {
		return fmt.Errorf("%w: num_candidates=%d is below limit=%d",
			ErrInvalidRetrieval, c.NumCandidates, c.Limit)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: listen_addr is empty", ErrInvalidListenAddr)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: postgres_host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: postgres_db_name is empty", ErrInvalidPostgresDBName)
	}
	return nil
}

// RequireAPIKey checks that GEMINI_API_KEY is present. The key is read
// directly by the Genkit plugin, so commands that talk to the model
// call this before initialization; migrate-only invocations skip it.
func RequireAPIKey() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingAPIKey)
	}
	return nil
}

// FullModelName returns the provider-qualified generation model name
// for Genkit. Names already containing "/" pass through unchanged.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return googleAIPrefix + c.ModelName
}
