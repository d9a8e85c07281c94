package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/graminate/finance-bfa-go/internal/domain"

	"github.com/spf13/cobra"
)

func newTrendCmd(opts *options) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Print one row of headline figures per month",
		Long: `Prints Revenue, COGS, Gross Profit, Expenses and Net Profit for every
month between --from and --to (YYYY-MM, inclusive). Defaults to the last six
months.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newService(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := requestContext(cmd, opts)
			defer cancel()

			months, sourceErrs, err := svc.GetMonthlyTrend(ctx, opts.userID, opts.subType, from, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(months)
			}
			if err := printTrend(out, months); err != nil {
				return err
			}
			printWarnings(out, domain.NormalizationReport{}, sourceErrs)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first month, YYYY-MM")
	cmd.Flags().StringVar(&to, "to", "", "last month, YYYY-MM (default current month)")
	return cmd
}

func printTrend(out io.Writer, months []domain.MonthlySummary) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "MONTH\tREVENUE\tCOGS\tGROSS PROFIT\tEXPENSES\tNET PROFIT\t")
	for _, m := range months {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			m.Month,
			m.Revenue.StringFixed(2),
			m.COGS.StringFixed(2),
			m.GrossProfit.StringFixed(2),
			m.Expenses.StringFixed(2),
			m.NetProfit.StringFixed(2),
		)
	}
	return tw.Flush()
}
