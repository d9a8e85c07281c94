// Command finance-report prints the monthly financial summary of a Graminate
// user straight from the backend API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/graminate/finance-bfa-go/internal/config"
	"github.com/graminate/finance-bfa-go/internal/domain"
	"github.com/graminate/finance-bfa-go/internal/infra/client"
	"github.com/graminate/finance-bfa-go/internal/infra/observability"
	"github.com/graminate/finance-bfa-go/internal/infra/resilience"
	"github.com/graminate/finance-bfa-go/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	backendURL   string
	token        string
	userID       string
	subType      string
	categoryPath string
	timeout      time.Duration
	logLevel     string
	asJSON       bool
}

func main() {
	_ = config.LoadDotEnv(".env")
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "finance-report",
		Short: "Monthly revenue, COGS and profit for a Graminate user",
		Long: `finance-report fetches a user's sales and expenses from the Graminate
backend, builds the per-day ledger for one business sub-type and prints the
headline figures: Revenue, COGS, Gross Profit, Expenses and Net Profit.

Example:
  finance-report month --user 42 --sub-type Poultry --month 2024-03 --token $TOKEN`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.backendURL, "backend-url", cfg.BackendAPIURL, "Graminate backend API base URL")
	pf.StringVar(&opts.token, "token", os.Getenv("GRAMINATE_TOKEN"), "bearer token forwarded to the backend")
	pf.StringVar(&opts.userID, "user", "", "user id")
	pf.StringVar(&opts.subType, "sub-type", "", "business sub-type, e.g. Poultry")
	pf.StringVar(&opts.categoryPath, "categories", cfg.CategoryConfigPath, "YAML file overriding the category tables")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall request timeout")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")

	rootCmd.AddCommand(newMonthCmd(opts), newTrendCmd(opts), newTokenCmd(cfg))
	return rootCmd
}

// newService wires the same pipeline the HTTP server uses, without the cache.
func newService(opts *options) (*service.FinancialService, *zap.Logger, error) {
	if opts.userID == "" || opts.subType == "" {
		return nil, nil, fmt.Errorf("--user and --sub-type are required")
	}

	categories, err := config.LoadCategoryConfig(opts.categoryPath)
	if err != nil {
		return nil, nil, err
	}

	logger := observability.NewLogger(opts.logLevel)
	rcfg := resilience.Config{MaxRetries: 2, InitialBackoff: 200 * time.Millisecond, MaxConcurrency: 4}
	backend := client.NewBackend(
		&http.Client{Timeout: opts.timeout},
		opts.backendURL,
		resilience.NewCircuitBreaker("graminate-backend", client.IsBreakerSuccess),
		rcfg,
		logger,
	)

	svc := service.NewFinancialService(
		client.NewSalesClient(backend),
		client.NewExpensesClient(backend),
		client.NewUsersClient(backend),
		categories,
		observability.NewMetrics(),
		logger,
	)
	return svc, logger, nil
}

func requestContext(cmd *cobra.Command, opts *options) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	if opts.token != "" {
		ctx = domain.ContextWithToken(ctx, opts.token)
	}
	return ctx, cancel
}
