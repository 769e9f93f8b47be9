package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func sweepCmd(flags *globalFlags) *cobra.Command {
	var dispatch bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Release expired reservations once",
		Long: `Runs a single reservation expiry sweep. Sub-orders whose escrow was
never funded are cancelled; reservations backing funded escrows are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, db, err := openEngine(flags, stderrLogger())
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			result, err := engine.Coordinator.SweepExpiredReservations(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "released reservations: %d\n", result.Released)
			if len(result.Cancelled) > 0 {
				fmt.Fprintf(out, "cancelled sub-orders: %s\n", strings.Join(result.Cancelled, ", "))
			}
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			if dispatch {
				res, err := engine.Dispatcher.Dispatch(ctx, engine.Config.Outbox.Batch)
				if err != nil {
					return fmt.Errorf("dispatch: %w", err)
				}
				fmt.Fprintf(out, "outbox: sent=%d failed=%d dlq=%d\n", res.Sent, res.Failed, res.DLQ)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "Also dispatch one outbox batch")
	return cmd
}
