package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func outboxCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair event delivery",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Count outbox records by delivery state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, db, err := openEngine(flags, stderrLogger())
			if err != nil {
				return err
			}
			defer db.Close()
			stats, err := engine.Maintenance.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending=%d failed=%d exhausted=%d sent=%d\n", stats.Pending, stats.Failed, stats.Exhausted, stats.Sent)
			return nil
		},
	})

	var limit int
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "List dead-lettered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, db, err := openEngine(flags, stderrLogger())
			if err != nil {
				return err
			}
			defer db.Close()
			letters, err := engine.Maintenance.DeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EVENT ID\tTYPE\tATTEMPTS\tLAST SEEN\tERROR")
			for _, l := range letters {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", l.EventID, l.EventType, l.Attempts, l.LastSeenAt.Format(time.RFC3339), l.Error)
			}
			return w.Flush()
		},
	}
	dlq.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	cmd.AddCommand(dlq)

	cmd.AddCommand(&cobra.Command{
		Use:   "replay <event-id>",
		Short: "Requeue a failed event and clear its dead letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, db, err := openEngine(flags, stderrLogger())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := engine.Maintenance.Replay(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return nil
		},
	})

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete consumer processed markers past retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, db, err := openEngine(flags, stderrLogger())
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := engine.Maintenance.PurgeProcessed(cmd.Context(), olderThan, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d processed markers\n", n)
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Retention for processed markers")
	cmd.AddCommand(purge)
	return cmd
}
