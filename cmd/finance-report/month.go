package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/graminate/finance-bfa-go/internal/domain"

	"github.com/spf13/cobra"
)

func newMonthCmd(opts *options) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "month",
		Short: "Print the headline cards of one month",
		Long: `Prints the five headline figures of one calendar month together with
their breakdowns. Defaults to the current month.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := requestContext(cmd, opts)
			defer cancel()

			report, err := svc.GetReport(ctx, opts.userID, opts.subType, month, true)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printMonth(out, report)
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default current month)")
	return cmd
}

func printMonth(out io.Writer, report *domain.FinancialReport) error {
	s := report.Summary
	fmt.Fprintf(out, "%s / %s  %s (%s .. %s, %d active days)\n\n", report.UserID, report.SubType, s.Month, s.From, s.To, s.ActiveDays)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, card := range s.Cards {
		fmt.Fprintf(tw, "%s\t%s\t\n", card.Title, card.Value.StringFixed(2))
		for _, item := range card.Breakdown {
			fmt.Fprintf(tw, "  %s\t%s\t\n", item.Name, item.Value.StringFixed(2))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	printWarnings(out, report.Normalization, report.Errors)
	return nil
}

func printWarnings(out io.Writer, n domain.NormalizationReport, errs []domain.SourceError) {
	for _, e := range errs {
		fmt.Fprintf(out, "\nwarning: %s unavailable: %s", e.Source, e.Message)
	}
	if n.SkippedRecords+n.CoercedFields+n.ClampedValues > 0 {
		fmt.Fprintf(out, "\nnote: %d records skipped, %d fields coerced to zero, %d negative values clamped",
			n.SkippedRecords, n.CoercedFields, n.ClampedValues)
	}
	if len(errs) > 0 || n.SkippedRecords+n.CoercedFields+n.ClampedValues > 0 {
		fmt.Fprintln(out)
	}
}
