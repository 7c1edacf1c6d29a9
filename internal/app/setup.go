package app

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizuki0/sensei/internal/backend"
	"github.com/mizuki0/sensei/internal/config"
	"github.com/mizuki0/sensei/internal/database"
	"github.com/mizuki0/sensei/internal/explain"
	"github.com/mizuki0/sensei/internal/history"
	"github.com/mizuki0/sensei/internal/index"
	"github.com/mizuki0/sensei/internal/log"
	"github.com/mizuki0/sensei/internal/quota"
	"github.com/mizuki0/sensei/internal/router"
	"github.com/mizuki0/sensei/internal/token"
	"github.com/mizuki0/sensei/internal/validate"
)

// Setup creates and initializes the application. Call Close to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q",
			cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Index = index.New(index.NewPostgresQuerier(pool), embedder, logger.With("component", "index"))
	a.History = history.New(history.NewPostgresQuerier(pool), logger.With("component", "history"))

	limits := quota.Limits{
		DailyRequests:   cfg.Quota.DailyRequestsLimit,
		DailyTokens:     cfg.Quota.DailyTokensLimit,
		MaxInputTokens:  cfg.Quota.MaxInputTokens,
		MaxOutputTokens: cfg.Quota.MaxOutputTokens,
	}
	a.Quota = quota.NewStore(quota.NewPostgresQuerier(pool), logger.With("component", "quota"))
	a.Limiter = quota.NewLimiter(a.Quota, limits, logger.With("component", "quota"))

	gen, err := backend.New(backend.Config{
		Genkit:          g,
		ModelName:       modelName(cfg),
		MaxOutputTokens: cfg.Quota.MaxOutputTokens,
		Logger:          logger.With("component", "backend"),
	})
	if err != nil {
		return nil, err
	}

	rt, err := router.New(router.Config{
		Retriever:     a.Index,
		Generator:     gen,
		TopK:          cfg.RAG.TopK,
		MinSimilarity: cfg.RAG.MinSimilarity,
		Logger:        logger.With("component", "router"),
	})
	if err != nil {
		return nil, err
	}

	counter := token.NewCounter(cfg.TokenizerModel, logger.With("component", "token"))
	svc, err := explain.New(explain.Config{
		Validator: validate.New(counter, limits.MaxInputTokens, true, logger.With("component", "validate")),
		Counter:   counter,
		Limiter:   a.Limiter,
		Explainer: rt,
		History:   a.History,
		Logger:    logger.With("component", "explain"),
	})
	if err != nil {
		return nil, err
	}
	a.Service = svc

	logger.Info("application ready",
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"daily_requests_limit", limits.DailyRequests,
		"daily_tokens_limit", limits.DailyTokens)
	return a, nil
}

// provideDBPool connects to PostgreSQL and applies pending migrations.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connString := cfg.Postgres.ConnString()

	if err := database.Migrate(connString); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := database.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes genkit with the configured provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, fmt.Errorf("initializing genkit with openai provider")
		}
		return g, nil
	default:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, fmt.Errorf("initializing genkit with googleai provider")
		}
		return g, nil
	}
}

// provideEmbedder resolves the configured embedder for the provider.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// modelName qualifies the configured model with its provider prefix.
func modelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return "openai/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}
