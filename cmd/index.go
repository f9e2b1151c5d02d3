package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/orchestrator"
)

// newIndexCmd creates the 'index' subcommand, a one-shot run for a single
// store.
func newIndexCmd() *cobra.Command {
	var (
		name  string
		slug  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "index <store-url>",
		Short: "Indexes a single store and waits for completion",
		Long: `Runs the full pipeline against one storefront URL and blocks until the
run reaches a terminal state. Useful for ad hoc indexing and for cron-style
refresh jobs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexCommand(cmd, args[0], name, slug, force)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name for the store")
	cmd.Flags().StringVar(&slug, "slug", "", "store slug (derived from the URL when empty)")
	cmd.Flags().BoolVar(&force, "force", false, "recrawl and re-enrich even when content is unchanged")
	return cmd
}

func runIndexCommand(cmd *cobra.Command, storeURL, name, slug string, force bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	logger := svc.logger

	status, err := svc.orchestrator.Start(ctx, orchestrator.StartRequest{
		URL:   storeURL,
		Name:  name,
		Slug:  slug,
		Force: force,
	})
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	logger.Info("run started",
		zap.String("slug", status.Slug),
		zap.String("run_id", status.RunID),
	)

	final, err := waitForRun(ctx, svc, status.Slug)
	if err != nil {
		return err
	}

	logger.Info("run finished",
		zap.String("slug", final.Slug),
		zap.String("state", string(final.State)),
		zap.Int("discovered", final.Discovered),
		zap.Int("crawled", final.Crawled),
		zap.Int("skipped_unchanged", final.SkippedUnchanged),
	)
	if final.Warning != "" {
		logger.Warn("run warning", zap.String("warning", final.Warning))
	}
	if final.State == catalog.RunFailed {
		return fmt.Errorf("run failed: %s", final.LastError)
	}
	return nil
}

// waitForRun polls run status until the run reaches a terminal state or the
// context is canceled.
func waitForRun(ctx context.Context, svc *services, slug string) (catalog.StoreStatus, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return catalog.StoreStatus{}, context.Cause(ctx)
		case <-ticker.C:
			status, ok := svc.orchestrator.Status(slug)
			if !ok {
				return catalog.StoreStatus{}, fmt.Errorf("run for %q disappeared", slug)
			}
			if status.State == catalog.RunCompleted || status.State == catalog.RunFailed {
				return status, nil
			}
		}
	}
}
