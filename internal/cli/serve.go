package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/handlers"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/utils"
)

const sweepInterval = time.Minute

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and the embedded judge worker unless disabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, noWorker)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not run the judge worker and sweeper in this process")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, noWorker bool) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpLogger := utils.NewSlogLogger(logger)
	router := gin.New()
	handlers.SetupMiddleware(router, httpLogger)
	authMiddleware := handlers.NewCasdoorAuthMiddleware(cfg.Casdoor, a.repo.User())
	handlers.NewHandlerManager(a.services, httpLogger, authMiddleware).SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.EmbeddedWorker && !noWorker {
		g.Go(func() error { return a.judgeWorker().Run(gctx) })
		g.Go(func() error { return a.sweeper(sweepInterval).Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	a.close(closeCtx)

	logger.Info("Server exited")
	return err
}
