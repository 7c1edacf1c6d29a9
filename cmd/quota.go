package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var showRequests int32

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's quota usage",
	Args:  cobra.NoArgs,
	RunE:  runQuota,
}

func init() {
	quotaCmd.Flags().Int32Var(&showRequests, "requests", 0,
		"also list the N most recent requests")
	rootCmd.AddCommand(quotaCmd)
}

func runQuota(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	userID, err := currentUser()
	if err != nil {
		return err
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.Service.QuotaStatus(ctx, userID)
	if err != nil {
		return fmt.Errorf("quota lookup: %w", err)
	}

	fmt.Printf("Quota for %s on %s\n\n", userID, s.Day.Format("2006-01-02"))
	fmt.Printf("  Requests  %d/%d (%d remaining)\n", s.RequestsUsed, s.RequestsLimit, s.RequestsRemaining)
	fmt.Printf("  Tokens    %d/%d (%d remaining)\n", s.TokensUsed, s.TokensLimit, s.TokensRemaining)
	fmt.Printf("  Resets    %s\n", s.ResetAt.Format("2006-01-02 15:04 MST"))
	switch {
	case s.Exhausted:
		fmt.Println("\n  Quota exhausted for today.")
	case s.Warning:
		fmt.Println("\n  Over 80% of the daily quota is used.")
	}

	if showRequests <= 0 {
		return nil
	}

	entries, err := a.Quota.RecentRequests(ctx, userID, showRequests)
	if err != nil {
		return fmt.Errorf("request log lookup: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("\nNo requests yet.")
		return nil
	}

	fmt.Println("\nRecent requests:")
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed: " + e.ErrorMessage
		}
		fmt.Printf("  %s  [%s] %-30s %d+%d tokens  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04"), e.Mode, e.Topic,
			e.InputTokens, e.OutputTokens, status)
	}
	return nil
}
