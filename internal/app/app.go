// Package app provides application initialization and dependency wiring.
//
// App is the container holding every long-lived component: genkit, the
// database pool, the stores, the quota limiter and the explain service.
// Setup builds it in dependency order; Close releases it in reverse.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mizuki0/sensei/internal/config"
	"github.com/mizuki0/sensei/internal/explain"
	"github.com/mizuki0/sensei/internal/history"
	"github.com/mizuki0/sensei/internal/index"
	"github.com/mizuki0/sensei/internal/quota"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Index   *index.Store
	History *history.Store
	Limiter *quota.Limiter
	Quota   *quota.Store
	Service *explain.Service
}

// Close releases all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	return nil
}
