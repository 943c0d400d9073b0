package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

type reportGenerator interface {
	GenerateRegulatoryReport(ctx context.Context, transactionID uuid.UUID) (transaction.Report, error)
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [transaction-id]",
		Short: "Print the regulatory report of a transaction as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transaction id %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			env, err := openLedger(ctx, cmd)
			if err != nil {
				return err
			}
			defer env.Close(context.WithoutCancel(ctx))

			return writeReport(ctx, cmd.OutOrStdout(), env.ledger, id)
		},
	}
}

func writeReport(ctx context.Context, out io.Writer, reports reportGenerator, id uuid.UUID) error {
	report, err := reports.GenerateRegulatoryReport(ctx, id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
