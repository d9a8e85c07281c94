package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/graminate/finance-bfa-go/internal/domain"
	"github.com/graminate/finance-bfa-go/internal/infra/observability"
	"github.com/graminate/finance-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/financial")

const ledgerCache = "ledger"

// FinancialService builds financial ledgers and monthly summaries from the
// backend's sales and expenses.
type FinancialService struct {
	sales      port.SalesFetcher
	expenses   port.ExpensesFetcher
	users      port.UserFetcher
	categories *domain.CategoryConfig
	cache      port.Cache[*domain.FinancialLedger]
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// Option customises a FinancialService.
type Option func(*FinancialService)

// WithClock replaces time.Now, which decides the default month.
func WithClock(now func() time.Time) Option {
	return func(s *FinancialService) { s.now = now }
}

// WithCache memoises complete ledgers per (user, sub-type).
func WithCache(c port.Cache[*domain.FinancialLedger]) Option {
	return func(s *FinancialService) { s.cache = c }
}

// NewFinancialService creates the service with all dependencies injected.
func NewFinancialService(
	sales port.SalesFetcher,
	expenses port.ExpensesFetcher,
	users port.UserFetcher,
	categories *domain.CategoryConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *FinancialService {
	if categories == nil {
		categories = domain.DefaultCategoryConfig()
	}
	s := &FinancialService{
		sales:      sales,
		expenses:   expenses,
		users:      users,
		categories: categories,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Categories returns the classification table of subType.
func (s *FinancialService) Categories(subType string) domain.SubTypeCategories {
	return s.categories.For(subType)
}

// GetProfile fetches the user profile.
func (s *FinancialService) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "FinancialService.GetProfile")
	defer span.End()

	if err := validateUser(userID); err != nil {
		return nil, err
	}
	p, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user fetch: %w", err)
	}
	return p, nil
}

// GetReport returns the headline metrics of month ("YYYY-MM", empty for the
// current month) together with the full daily series.
func (s *FinancialService) GetReport(ctx context.Context, userID, subType, month string, refresh bool) (*domain.FinancialReport, error) {
	ctx, span := tracer.Start(ctx, "FinancialService.GetReport")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("sub_type", subType),
	)

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("report", time.Since(start))
	}()

	target, err := s.parseMonth(month)
	if err != nil {
		return nil, err
	}

	ledger, sourceErrs, cached, err := s.loadLedger(ctx, userID, subType, refresh)
	if err != nil {
		return nil, err
	}

	return &domain.FinancialReport{
		UserID:        ledger.UserID,
		SubType:       ledger.SubType,
		Summary:       RollupMonth(ledger.Daily, target),
		Daily:         ledger.Daily,
		Normalization: ledger.Normalization,
		Errors:        sourceErrs,
		Partial:       len(sourceErrs) > 0,
		Cached:        cached,
		GeneratedAt:   s.now(),
	}, nil
}

// GetDaily returns the daily series restricted to from..to (YYYY-MM-DD,
// either may be empty).
func (s *FinancialService) GetDaily(ctx context.Context, userID, subType, from, to string) ([]domain.DailyFinancialEntry, []domain.SourceError, error) {
	ctx, span := tracer.Start(ctx, "FinancialService.GetDaily")
	defer span.End()

	if from != "" && to != "" && from > to {
		return nil, nil, &domain.ErrValidation{Field: "from", Message: "must not be after 'to'"}
	}

	ledger, sourceErrs, _, err := s.loadLedger(ctx, userID, subType, false)
	if err != nil {
		return nil, nil, err
	}
	return FilterDays(ledger.Daily, from, to), sourceErrs, nil
}

// GetMonthlyTrend returns one summary per month between from and to
// ("YYYY-MM"). Defaults: to = current month, from = five months before to.
func (s *FinancialService) GetMonthlyTrend(ctx context.Context, userID, subType, from, to string) ([]domain.MonthlySummary, []domain.SourceError, error) {
	ctx, span := tracer.Start(ctx, "FinancialService.GetMonthlyTrend")
	defer span.End()

	end, err := s.parseMonth(to)
	if err != nil {
		return nil, nil, err
	}
	begin := end.AddDate(0, -5, 0)
	if from != "" {
		if begin, err = parseMonthField("from", from); err != nil {
			return nil, nil, err
		}
	}
	if begin.After(end) {
		return nil, nil, &domain.ErrValidation{Field: "from", Message: "must not be after 'to'"}
	}
	if monthsBetween(begin, end) > maxTrendMonths {
		return nil, nil, &domain.ErrValidation{Field: "from", Message: fmt.Sprintf("range exceeds %d months", maxTrendMonths)}
	}

	ledger, sourceErrs, _, err := s.loadLedger(ctx, userID, subType, false)
	if err != nil {
		return nil, nil, err
	}
	return RollupRange(ledger.Daily, begin, end), sourceErrs, nil
}

const maxTrendMonths = 36

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month()) + 1
}

// loadLedger serves the ledger from cache or rebuilds it. Only complete
// ledgers are cached.
func (s *FinancialService) loadLedger(ctx context.Context, userID, subType string, refresh bool) (*domain.FinancialLedger, []domain.SourceError, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, false, err
	}
	if err := validateUser(userID); err != nil {
		return nil, nil, false, err
	}
	subType = strings.TrimSpace(subType)
	if subType == "" {
		return nil, nil, false, &domain.ErrValidation{Field: "sub_type", Message: "required"}
	}

	key := cacheKey(ctx, userID, subType)
	if s.cache != nil && !refresh {
		if l, ok := s.cache.Get(key); ok {
			s.metrics.IncrCacheHit(ledgerCache)
			return l, nil, true, nil
		}
		s.metrics.IncrCacheMiss(ledgerCache)
	}

	ledger, sourceErrs, err := s.buildLedger(ctx, userID, subType)
	if err != nil {
		return nil, nil, false, err
	}

	if len(sourceErrs) == 0 {
		s.metrics.IncrReport("complete")
		if s.cache != nil {
			s.cache.Set(key, ledger)
		}
	} else {
		s.metrics.IncrReport("partial")
	}
	return ledger, sourceErrs, false, nil
}

func (s *FinancialService) buildLedger(ctx context.Context, userID, subType string) (*domain.FinancialLedger, []domain.SourceError, error) {
	ctx, span := tracer.Start(ctx, "FinancialService.buildLedger")
	defer span.End()

	sales, expenses, sourceErrs, err := s.fetch(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	events, report := MergeTimeline(subType, sales, expenses)
	daily := BuildDailyEntries(events, s.categories, subType, &report)
	s.metrics.RecordNormalization(report)

	if report.CoercedFields > 0 || report.SkippedRecords > 0 || report.ClampedValues > 0 {
		s.logger.Warn("malformed records normalized",
			zap.String("user_id", userID),
			zap.String("sub_type", subType),
			zap.Int("skipped", report.SkippedRecords),
			zap.Int("coerced", report.CoercedFields),
			zap.Int("clamped", report.ClampedValues),
		)
	}

	return &domain.FinancialLedger{
		UserID:        userID,
		SubType:       subType,
		Daily:         daily,
		Normalization: report,
		FetchedAt:     s.now(),
	}, sourceErrs, nil
}

// fetch loads sales and expenses concurrently. A failure of one source does
// not cancel the other; it is reported as a SourceError. A 404 means the user
// has no records yet. Only when both sources fail is an error returned.
func (s *FinancialService) fetch(ctx context.Context, userID string) ([]domain.SaleRecord, []domain.ExpenseRecord, []domain.SourceError, error) {
	var (
		sales                []domain.SaleRecord
		expenses             []domain.ExpenseRecord
		salesErr, expenseErr error
	)

	var g errgroup.Group

	g.Go(func() error {
		start := time.Now()
		sales, salesErr = s.sales.GetSales(ctx, userID)
		s.metrics.RecordRequestDuration("sales", time.Since(start))
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		expenses, expenseErr = s.expenses.GetExpenses(ctx, userID)
		s.metrics.RecordRequestDuration("expenses", time.Since(start))
		return nil
	})

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	salesErr = s.absorbNotFound(salesErr)
	expenseErr = s.absorbNotFound(expenseErr)

	var sourceErrs []domain.SourceError
	if salesErr != nil {
		s.logger.Error("failed to fetch sales",
			zap.String("user_id", userID),
			zap.Error(salesErr),
		)
		s.metrics.IncrExternalError("sales")
		sourceErrs = append(sourceErrs, domain.SourceError{Source: "sales", Message: salesErr.Error()})
		sales = nil
	}
	if expenseErr != nil {
		s.logger.Error("failed to fetch expenses",
			zap.String("user_id", userID),
			zap.Error(expenseErr),
		)
		s.metrics.IncrExternalError("expenses")
		sourceErrs = append(sourceErrs, domain.SourceError{Source: "expenses", Message: expenseErr.Error()})
		expenses = nil
	}

	if salesErr != nil && expenseErr != nil {
		return nil, nil, nil, fmt.Errorf("sales and expenses fetch: %w", errors.Join(salesErr, expenseErr))
	}
	return sales, expenses, sourceErrs, nil
}

func (s *FinancialService) absorbNotFound(err error) error {
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		s.logger.Debug("no records yet", zap.String("resource", notFound.Resource), zap.String("user_id", notFound.ID))
		return nil
	}
	return err
}

func (s *FinancialService) parseMonth(month string) (time.Time, error) {
	if strings.TrimSpace(month) == "" {
		first, _ := MonthBounds(s.now())
		return first, nil
	}
	return parseMonthField("month", month)
}

func parseMonthField(field, value string) (time.Time, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: field, Message: "must be formatted YYYY-MM"}
	}
	return t, nil
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return &domain.ErrValidation{Field: "user_id", Message: "required"}
	}
	return nil
}

// cacheKey scopes a ledger to the bearer token it was fetched with. A hit
// never reaches the backend, so a ledger is only served to a credential the
// backend has already accepted.
func cacheKey(ctx context.Context, userID, subType string) string {
	key := fmt.Sprintf("ledger:%s:%s", strings.TrimSpace(userID), domain.NormalizeKey(subType))
	if token := domain.TokenFromContext(ctx); token != "" {
		sum := sha256.Sum256([]byte(token))
		key += ":" + hex.EncodeToString(sum[:12])
	}
	return key
}
