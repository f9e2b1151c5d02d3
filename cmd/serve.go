package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/api"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP service.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the indexer HTTP service",
		Long: `Runs the indexer as a long-lived HTTP service. Index runs are started
via POST /v1/stores and execute in the background; status and the indexed
catalog are served from the same API.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()
	logger := svc.logger

	apiKey := ""
	if svc.cfg.Auth.Enabled {
		apiKey = svc.cfg.Auth.APIKey
	}
	apiServer := api.NewServer(svc.orchestrator, svc.gateway, svc.gateway, api.Options{
		RequestTimeout: svc.cfg.RequestTimeout(),
		APIKey:         apiKey,
		MaxPreview:     svc.cfg.Server.MaxPreview,
		MaxPageSize:    svc.cfg.Server.MaxPageSize,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", svc.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", svc.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
