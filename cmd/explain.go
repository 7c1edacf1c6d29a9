package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mizuki0/sensei/internal/explain"
)

var separateHistory bool

var explainCmd = &cobra.Command{
	Use:   "explain <topic>[,topic...]",
	Short: "Explain one or more technical topics",
	Long: `Explain streams an answer for each topic to the terminal. Topics are
comma separated, five at most. Each topic is charged against the daily
quota as its own request.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().BoolVar(&separateHistory, "separate", false,
		"save one history entry per topic instead of a single aggregate entry")
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
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

	mode := explain.HistoryAggregate
	if separateHistory {
		mode = explain.HistorySeparate
	}

	// Chunks carry the accumulated answer so far; track what is already
	// on screen per topic and print only the delta.
	printed := map[string]int{}
	current := ""
	outcome, err := a.Service.Explain(ctx, userID, strings.Join(args, ","), mode,
		func(_ context.Context, topic, accumulated, genMode string) error {
			if topic != current {
				if current != "" {
					fmt.Println()
					fmt.Println()
				}
				fmt.Printf("## %s [%s]\n\n", topic, genMode)
				current = topic
			}
			fmt.Print(accumulated[printed[topic]:])
			printed[topic] = len(accumulated)
			return nil
		})
	if err != nil {
		if outcome != nil && outcome.OutputTokens > 0 {
			fmt.Fprintln(os.Stderr)
			fmt.Fprintf(os.Stderr, "generation interrupted, %d output tokens charged\n", outcome.OutputTokens)
		}
		return err
	}

	fmt.Println()
	fmt.Println()
	if outcome.Truncated {
		fmt.Fprintln(os.Stderr, "note: input was truncated to fit the token budget")
	}
	s := outcome.Status
	fmt.Printf("[%s] %d input + %d output tokens | today: %d/%d requests, %d/%d tokens\n",
		outcome.Badge, outcome.InputTokens, outcome.OutputTokens,
		s.RequestsUsed, s.RequestsLimit, s.TokensUsed, s.TokensLimit)
	if s.Warning {
		fmt.Fprintf(os.Stderr, "warning: over 80%% of your daily quota is used (resets %s)\n",
			s.ResetAt.Format("15:04 MST"))
	}
	return nil
}
