// Package cmd implements the sensei command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mizuki0/sensei/internal/app"
	"github.com/mizuki0/sensei/internal/config"
)

var userFlag string

var rootCmd = &cobra.Command{
	Use:   "sensei",
	Short: "sensei - quota-aware technical explanations in your terminal",
	Long: `Sensei explains technical topics, grounded in your own reference
documents when the index has relevant material and falling back to the
model's general knowledge when it does not.

Every explanation counts against a per-user daily quota of requests and
tokens. Run "sensei quota" to see where you stand.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "user identity (defaults to $SENSEI_USER, then $USER)")
}

// currentUser resolves the acting user from the flag or environment.
func currentUser() (string, error) {
	if userFlag != "" {
		return userFlag, nil
	}
	if u := os.Getenv("SENSEI_USER"); u != "" {
		return u, nil
	}
	if u := os.Getenv("USER"); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("no user identity: pass --user or set SENSEI_USER")
}

// setupApp loads and validates configuration, then wires the application.
func setupApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return app.Setup(ctx, cfg)
}
