package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mizuki0/sensei/internal/index"
)

var docTopic string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the reference document index",
}

var indexAddCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Index a reference document (reads stdin when no argument is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndexAdd,
}

var indexCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show how many documents are indexed",
	Args:  cobra.NoArgs,
	RunE:  runIndexCount,
}

var indexClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runIndexClear,
}

func init() {
	indexAddCmd.Flags().StringVar(&docTopic, "topic", "", "topic label for the document")
	indexCmd.AddCommand(indexAddCmd, indexCountCmd, indexClearCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexAdd(cmd *cobra.Command, args []string) error {
	var content string
	if len(args) == 1 {
		content = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		content = string(data)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Index.Add(ctx, index.Document{Topic: docTopic, Content: content}); err != nil {
		return err
	}
	fmt.Println("Document indexed.")
	return nil
}

func runIndexCount(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.Index.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d documents indexed.\n", count)
	return nil
}

func runIndexClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Index.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("Index cleared.")
	return nil
}
