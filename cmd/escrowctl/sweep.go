package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/payment_processor/archival"
)

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Archive eligible transactions once and exit",
		Long: `Run a single archival sweep against the transaction ledger.

Transactions older than two years are archived. With --expire, archived
transactions past the seven year retention period are deleted as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			expire, err := cmd.Flags().GetBool("expire")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			env, err := openLedger(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close(context.WithoutCancel(ctx))

			cfg := env.cfg.Archival
			cfg.EnforceRetentionExpiry = cfg.EnforceRetentionExpiry || expire

			clock := shared.SystemClock{}
			sweeper := archival.NewSweeper(env.txRepo, env.ledger, nil, cfg, clock, env.log)
			result, err := sweeper.ArchiveEligible(ctx, clock.Now())
			printSweepResult(cmd.OutOrStdout(), result)
			return err
		},
	}

	cmd.Flags().Bool("expire", false, "also delete archived transactions past retention")

	return cmd
}

func printSweepResult(out io.Writer, result archival.SweepResult) {
	fmt.Fprintf(out, "scanned:  %d\n", result.Scanned)
	fmt.Fprintf(out, "archived: %d\n", result.Archived)
	fmt.Fprintf(out, "skipped:  %d\n", result.Skipped)
	fmt.Fprintf(out, "expired:  %d\n", result.Expired)
}
