package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Time out every active attempt past its deadline, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), cmd, opts, batch)
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "attempts per transaction (defaults to SWEEP_BATCH_SIZE)")
	return cmd
}

func runSweep(ctx context.Context, cmd *cobra.Command, opts *rootOptions, batch int) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if batch > 0 {
		cfg.Worker.SweepBatchSize = batch
	}

	a, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	n := a.sweeper(sweepInterval).SweepOnce(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "timed out %d attempts\n", n)
	return nil
}
