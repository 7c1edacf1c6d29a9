package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Provider:       ProviderGoogleAI,
		ModelName:      "gemini-2.5-flash",
		EmbedderModel:  "gemini-embedding-001",
		TokenizerModel: "gpt-4o-mini",
		Quota: Quota{
			DailyRequestsLimit: DefaultDailyRequestsLimit,
			DailyTokensLimit:   DefaultDailyTokensLimit,
			MaxInputTokens:     DefaultMaxInputTokens,
			MaxOutputTokens:    DefaultMaxOutputTokens,
		},
		RAG: RAG{TopK: DefaultTopK, MinSimilarity: DefaultMinSimilarity},
		Postgres: Postgres{
			Host:    "localhost",
			Port:    5432,
			User:    "sensei",
			DBName:  "sensei",
			SSLMode: "disable",
		},
		Server:   Server{Addr: ":8080"},
		LogLevel: "info",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "anthropic" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "  " },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "zero request limit",
			mutate:  func(c *Config) { c.Quota.DailyRequestsLimit = 0 },
			wantErr: ErrInvalidQuotaLimit,
		},
		{
			name:    "negative token limit",
			mutate:  func(c *Config) { c.Quota.DailyTokensLimit = -1 },
			wantErr: ErrInvalidQuotaLimit,
		},
		{
			name:    "zero max input tokens",
			mutate:  func(c *Config) { c.Quota.MaxInputTokens = 0 },
			wantErr: ErrInvalidTokenBudget,
		},
		{
			name:    "zero max output tokens",
			mutate:  func(c *Config) { c.Quota.MaxOutputTokens = 0 },
			wantErr: ErrInvalidTokenBudget,
		},
		{
			name:    "top-k too large",
			mutate:  func(c *Config) { c.RAG.TopK = 51 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "similarity above one",
			mutate:  func(c *Config) { c.RAG.MinSimilarity = 1.5 },
			wantErr: ErrInvalidSimilarity,
		},
		{
			name:    "similarity negative",
			mutate:  func(c *Config) { c.RAG.MinSimilarity = -0.1 },
			wantErr: ErrInvalidSimilarity,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.Postgres.Host = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "postgres port out of range",
			mutate:  func(c *Config) { c.Postgres.Port = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty dbname",
			mutate:  func(c *Config) { c.Postgres.DBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	t.Parallel()

	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Fatalf("Validate() on nil = %v, want ErrConfigNil", err)
	}
}

func TestConnString(t *testing.T) {
	t.Parallel()

	p := Postgres{
		Host:     "db.internal",
		Port:     5433,
		User:     "sensei",
		Password: "p@ss word",
		DBName:   "sensei",
		SSLMode:  "require",
	}
	got := p.ConnString()

	for _, want := range []string{"postgres://", "db.internal:5433", "/sensei", "sslmode=require"} {
		if !strings.Contains(got, want) {
			t.Errorf("ConnString() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "p@ss word") {
		t.Errorf("ConnString() = %q, password must be escaped", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Quota.DailyRequestsLimit != DefaultDailyRequestsLimit {
		t.Errorf("daily_requests_limit = %d, want %d",
			cfg.Quota.DailyRequestsLimit, DefaultDailyRequestsLimit)
	}
	if cfg.RAG.MinSimilarity != DefaultMinSimilarity {
		t.Errorf("min_similarity = %g, want %g", cfg.RAG.MinSimilarity, DefaultMinSimilarity)
	}
	if cfg.Provider != ProviderGoogleAI {
		t.Errorf("provider = %q, want %q", cfg.Provider, ProviderGoogleAI)
	}
}
