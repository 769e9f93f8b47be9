package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	reporting "marketplace-settlement/internal/reporting/domain"
	reportinginterfaces "marketplace-settlement/internal/reporting/interfaces"
)

type reportFlags struct {
	vendor string
	format string
	out    string
	month  string
	from   string
	to     string
}

func reportCmd(flags *globalFlags) *cobra.Command {
	rf := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export a vendor revenue report",
		Long: `Builds the revenue report of one vendor for a calendar month or a
from/to date range (to exclusive) and writes it as pdf, xlsx or json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(rf.vendor) == "" {
				return errors.New("--vendor is required")
			}
			format := strings.ToLower(rf.format)
			switch format {
			case "pdf", "xlsx", "json":
			default:
				return fmt.Errorf("unknown format %q", rf.format)
			}
			period, err := parsePeriod(rf.month, rf.from, rf.to, time.Now())
			if err != nil {
				return err
			}

			engine, db, err := openEngine(flags, stderrLogger())
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := engine.Revenue.VendorRevenue(cmd.Context(), rf.vendor, period)
			if err != nil {
				return fmt.Errorf("report: %w", err)
			}
			data, _, err := reportinginterfaces.Render(report, format)
			if err != nil {
				return err
			}
			if rf.out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			path := rf.out
			if path == "" {
				path = reportinginterfaces.FileName(report, format)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (net payout %s %s)\n", path, report.NetPayout.StringFixed(2), report.Currency)
			return nil
		},
	}
	cmd.Flags().StringVar(&rf.vendor, "vendor", "", "Vendor id")
	cmd.Flags().StringVarP(&rf.format, "format", "f", "pdf", "Output format (pdf, xlsx, json)")
	cmd.Flags().StringVarP(&rf.out, "out", "o", "", "Output file, - for stdout (default revenue-<vendor>-<month>.<format>)")
	cmd.Flags().StringVar(&rf.month, "month", "", "Calendar month YYYY-MM (default current month)")
	cmd.Flags().StringVar(&rf.from, "from", "", "Range start YYYY-MM-DD")
	cmd.Flags().StringVar(&rf.to, "to", "", "Range end YYYY-MM-DD, exclusive")
	return cmd
}

func parsePeriod(month, from, to string, now time.Time) (reporting.Period, error) {
	if month != "" {
		if from != "" || to != "" {
			return reporting.Period{}, errors.New("--month cannot be combined with --from/--to")
		}
		t, err := time.Parse("2006-01", month)
		if err != nil {
			return reporting.Period{}, fmt.Errorf("%w: month %q", reporting.ErrInvalidPeriod, month)
		}
		return reporting.MonthPeriod(t), nil
	}
	if from == "" && to == "" {
		return reporting.MonthPeriod(now), nil
	}
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return reporting.Period{}, fmt.Errorf("%w: from %q", reporting.ErrInvalidPeriod, from)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return reporting.Period{}, fmt.Errorf("%w: to %q", reporting.ErrInvalidPeriod, to)
	}
	period := reporting.Period{From: start, To: end}
	return period, period.Validate()
}
