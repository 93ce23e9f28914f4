package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run the historical crawl until it reaches the floor date",
		Long: `Runs the crawl loop in the foreground. The loop walks backward from the
start date (or the stored cursor) to the configured floor date, one
(category, day) unit at a time. SIGINT/SIGTERM stop it cleanly; a later run
resumes from the last completed unit.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.scheduler.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Info("crawl interrupted, progress saved")
			return nil
		}
		return fmt.Errorf("run crawl: %w", err)
	}
	return nil
}
