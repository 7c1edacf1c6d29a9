// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (SENSEI_* at runtime)
//  2. Config file (~/.sensei/config.yaml)
//  3. Default values
//
// Categories:
//   - AI: provider, generation model, embedder, tokenizer model
//   - Quota: daily request/token limits, per-request input/output budgets
//   - RAG: retrieval top-K and the relevance cutoff
//   - Postgres: connection settings (see ConnString)
//   - Server: HTTP listen address
//
// The quota limits and the relevance threshold are deliberately configuration,
// not constants: the threshold in particular is an empirically tuned value
// with no meaning beyond "tune to your embedding model".
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidQuotaLimit indicates a quota limit is out of range.
	ErrInvalidQuotaLimit = errors.New("invalid quota limit")

	// ErrInvalidTokenBudget indicates a per-request token budget is out of range.
	ErrInvalidTokenBudget = errors.New("invalid token budget")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidSimilarity indicates the relevance cutoff is out of range.
	ErrInvalidSimilarity = errors.New("invalid similarity threshold")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

// Defaults for the quota subsystem. These are the process-wide limits the
// rate limiter enforces; override via config file or SENSEI_QUOTA_* env vars.
const (
	DefaultDailyRequestsLimit = 20
	DefaultDailyTokensLimit   = 10000
	DefaultMaxInputTokens     = 300
	DefaultMaxOutputTokens    = 500
)

// Defaults for retrieval.
const (
	DefaultTopK = 5

	// DefaultMinSimilarity is the cosine-similarity cutoff below which a
	// retrieved chunk is not considered usable context.
	DefaultMinSimilarity = 0.55
)

// Quota holds the per-user daily limits and per-request budgets.
// Immutable after Load; shared by reference.
type Quota struct {
	DailyRequestsLimit int `mapstructure:"daily_requests_limit"`
	DailyTokensLimit   int `mapstructure:"daily_tokens_limit"`
	MaxInputTokens     int `mapstructure:"max_input_tokens"`
	MaxOutputTokens    int `mapstructure:"max_output_tokens"`
}

// RAG holds retrieval settings.
type RAG struct {
	TopK          int     `mapstructure:"top_k"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

// Postgres holds database connection settings.
type Postgres struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Server holds the HTTP API settings.
type Server struct {
	Addr string `mapstructure:"addr"`
}

// Config stores application configuration.
type Config struct {
	Provider       string `mapstructure:"provider"`
	ModelName      string `mapstructure:"model_name"`
	EmbedderModel  string `mapstructure:"embedder_model"`
	TokenizerModel string `mapstructure:"tokenizer_model"`

	Quota    Quota    `mapstructure:"quota"`
	RAG      RAG      `mapstructure:"rag"`
	Postgres Postgres `mapstructure:"postgres"`
	Server   Server   `mapstructure:"server"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from defaults, the config file and environment.
// A missing config file is not an error; invalid values are.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".sensei"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SENSEI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("tokenizer_model", "gpt-4o-mini")

	v.SetDefault("quota.daily_requests_limit", DefaultDailyRequestsLimit)
	v.SetDefault("quota.daily_tokens_limit", DefaultDailyTokensLimit)
	v.SetDefault("quota.max_input_tokens", DefaultMaxInputTokens)
	v.SetDefault("quota.max_output_tokens", DefaultMaxOutputTokens)

	v.SetDefault("rag.top_k", DefaultTopK)
	v.SetDefault("rag.min_similarity", DefaultMinSimilarity)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "sensei")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "sensei")
	v.SetDefault("postgres.sslmode", "prefer")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Validate checks all configuration values and returns the first violation.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGoogleAI, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)",
			ErrInvalidProvider, c.Provider, ProviderGoogleAI, ProviderOpenAI)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}

	if c.Quota.DailyRequestsLimit <= 0 {
		return fmt.Errorf("%w: daily_requests_limit must be positive, got %d",
			ErrInvalidQuotaLimit, c.Quota.DailyRequestsLimit)
	}
	if c.Quota.DailyTokensLimit <= 0 {
		return fmt.Errorf("%w: daily_tokens_limit must be positive, got %d",
			ErrInvalidQuotaLimit, c.Quota.DailyTokensLimit)
	}
	if c.Quota.MaxInputTokens <= 0 {
		return fmt.Errorf("%w: max_input_tokens must be positive, got %d",
			ErrInvalidTokenBudget, c.Quota.MaxInputTokens)
	}
	if c.Quota.MaxOutputTokens <= 0 {
		return fmt.Errorf("%w: max_output_tokens must be positive, got %d",
			ErrInvalidTokenBudget, c.Quota.MaxOutputTokens)
	}

	if c.RAG.TopK < 1 || c.RAG.TopK > 50 {
		return fmt.Errorf("%w: top_k must be in [1, 50], got %d", ErrInvalidTopK, c.RAG.TopK)
	}
	if c.RAG.MinSimilarity < 0 || c.RAG.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be in [0, 1], got %g",
			ErrInvalidSimilarity, c.RAG.MinSimilarity)
	}

	if strings.TrimSpace(c.Postgres.Host) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
		return fmt.Errorf("%w: port must be in [1, 65535], got %d",
			ErrInvalidPostgresPort, c.Postgres.Port)
	}
	if strings.TrimSpace(c.Postgres.DBName) == "" {
		return fmt.Errorf("%w: dbname must not be empty", ErrInvalidPostgresDBName)
	}

	return nil
}

// ConnString returns the PostgreSQL connection URL.
// The password is URL-escaped; never log the returned value.
func (p Postgres) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   p.DBName,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	q := u.Query()
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SlogLevel maps the configured log level string to a slog.Level.
// Unknown values default to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
