package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the judge worker and the expiry sweeper without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}
}

func runWorker(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}
	// The local queue only carries jobs within one process
	if cfg.JudgeQueue != "redis" {
		return errors.New("standalone worker requires JUDGE_QUEUE=redis")
	}
	if cfg.Judge.BaseURL == "" {
		return errors.New("standalone worker requires JUDGE_URL")
	}

	a, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.judgeWorker().Run(gctx) })
	g.Go(func() error { return a.sweeper(sweepInterval).Run(gctx) })
	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	a.close(closeCtx)

	logger.Info("Worker exited")
	return err
}
