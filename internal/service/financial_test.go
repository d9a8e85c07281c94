package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graminate/finance-bfa-go/internal/domain"
	"github.com/graminate/finance-bfa-go/internal/infra/cache"
	"github.com/graminate/finance-bfa-go/internal/infra/observability"
	"github.com/graminate/finance-bfa-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockSalesClient struct {
	sales []domain.SaleRecord
	err   error
	calls atomic.Int32
}

func (m *mockSalesClient) GetSales(_ context.Context, _ string) ([]domain.SaleRecord, error) {
	m.calls.Add(1)
	return m.sales, m.err
}

type mockExpensesClient struct {
	expenses []domain.ExpenseRecord
	err      error
	calls    atomic.Int32
}

func (m *mockExpensesClient) GetExpenses(_ context.Context, _ string) ([]domain.ExpenseRecord, error) {
	m.calls.Add(1)
	return m.expenses, m.err
}

type mockUsersClient struct {
	user *domain.UserProfile
	err  error
}

func (m *mockUsersClient) GetUser(_ context.Context, _ string) (*domain.UserProfile, error) {
	return m.user, m.err
}

// --- Fixtures ---

var fixedNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func poultrySales() []domain.SaleRecord {
	return []domain.SaleRecord{{
		ID: 1, SalesDate: "2024-03-05", Occupation: "Poultry",
		ItemsSold:      []string{"Eggs"},
		QuantitiesSold: []domain.Numeric{num(10)},
		PricesPerUnit:  []domain.Numeric{num(50)},
	}}
}

func poultryExpenses() []domain.ExpenseRecord {
	return []domain.ExpenseRecord{
		{ID: 1, DateCreated: "2024-03-06", Occupation: "Poultry", Category: "Feed", Expense: num(200)},
		{ID: 2, DateCreated: "2024-02-11", Occupation: "Poultry", Category: "Rent", Expense: num(75)},
	}
}

func newService(t *testing.T, sales *mockSalesClient, expenses *mockExpensesClient, withCache bool) (*service.FinancialService, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	opts := []service.Option{service.WithClock(func() time.Time { return fixedNow })}
	if withCache {
		c := cache.New[*domain.FinancialLedger](time.Minute)
		t.Cleanup(c.Stop)
		opts = append(opts, service.WithCache(c))
	}
	svc := service.NewFinancialService(
		sales,
		expenses,
		&mockUsersClient{user: &domain.UserProfile{UserID: 42, FirstName: "Asha"}},
		domain.DefaultCategoryConfig(),
		metrics,
		zap.NewNop(),
		opts...,
	)
	return svc, metrics
}

// --- Tests ---

func TestGetReport_Success(t *testing.T) {
	svc, metrics := newService(t,
		&mockSalesClient{sales: poultrySales()},
		&mockExpensesClient{expenses: poultryExpenses()},
		false,
	)

	report, err := svc.GetReport(context.Background(), "42", "Poultry", "", false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if report.Summary.Month != "2024-03" {
		t.Errorf("expected current month 2024-03, got %s", report.Summary.Month)
	}
	if report.Summary.NetProfit.String() != "300" {
		t.Errorf("expected net profit 300, got %s", report.Summary.NetProfit)
	}
	if len(report.Daily) != 3 {
		t.Errorf("expected 3 daily entries, got %d", len(report.Daily))
	}
	if report.Partial || len(report.Errors) != 0 {
		t.Errorf("expected complete report, got partial=%v errors=%v", report.Partial, report.Errors)
	}
	if got := metrics.GetPipelineSnapshot().TotalReports; got != 1 {
		t.Errorf("expected 1 report counted, got %d", got)
	}
}

func TestGetReport_ExplicitMonth(t *testing.T) {
	svc, _ := newService(t,
		&mockSalesClient{sales: poultrySales()},
		&mockExpensesClient{expenses: poultryExpenses()},
		false,
	)

	report, err := svc.GetReport(context.Background(), "42", "Poultry", "2024-02", false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.Summary.NetProfit.String() != "-75" {
		t.Errorf("expected net profit -75, got %s", report.Summary.NetProfit)
	}
}

func TestGetReport_SalesFailureIsPartial(t *testing.T) {
	svc, metrics := newService(t,
		&mockSalesClient{err: &domain.ErrExternalService{Service: "sales", Err: errors.New("connection refused")}},
		&mockExpensesClient{expenses: poultryExpenses()},
		false,
	)

	report, err := svc.GetReport(context.Background(), "42", "Poultry", "2024-03", false)
	if err != nil {
		t.Fatalf("expected partial report, got error %v", err)
	}
	if !report.Partial {
		t.Error("expected partial=true")
	}
	if len(report.Errors) != 1 || report.Errors[0].Source != "sales" {
		t.Errorf("expected one sales error, got %+v", report.Errors)
	}
	if report.Summary.COGS.String() != "200" {
		t.Errorf("expected expenses to still be aggregated, COGS=%s", report.Summary.COGS)
	}
	if !report.Summary.Revenue.IsZero() {
		t.Errorf("expected zero revenue, got %s", report.Summary.Revenue)
	}

	snap := metrics.GetPipelineSnapshot()
	if snap.PartialReports != 1 || snap.SalesErrors != 1 {
		t.Errorf("expected partial and sales error counted, got %+v", snap)
	}
}

func TestGetReport_ExpensesFailureIsPartial(t *testing.T) {
	svc, _ := newService(t,
		&mockSalesClient{sales: poultrySales()},
		&mockExpensesClient{err: &domain.ErrTimeout{Operation: "expenses"}},
		false,
	)

	report, err := svc.GetReport(context.Background(), "42", "Poultry", "2024-03", false)
	if err != nil {
		t.Fatalf("expected partial report, got error %v", err)
	}
	if len(report.Errors) != 1 || report.Errors[0].Source != "expenses" {
		t.Errorf("expected one expenses error, got %+v", report.Errors)
	}
	if report.Summary.Revenue.String() != "500" {
		t.Errorf("expected revenue 500, got %s", report.Summary.Revenue)
	}
}

func TestGetReport_BothSourcesFail(t *testing.T) {
	timeout := &domain.ErrTimeout{Operation: "sales"}
	svc, _ := newService(t,
		&mockSalesClient{err: timeout},
		&mockExpensesClient{err: &domain.ErrCircuitOpen{Service: "expenses"}},
		false,
	)

	_, err := svc.GetReport(context.Background(), "42", "Poultry", "", false)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var te *domain.ErrTimeout
	if !errors.As(err, &te) {
		t.Errorf("expected joined error to contain ErrTimeout, got %v", err)
	}
	var co *domain.ErrCircuitOpen
	if !errors.As(err, &co) {
		t.Errorf("expected joined error to contain ErrCircuitOpen, got %v", err)
	}
}

func TestGetReport_NotFoundMeansNoRecords(t *testing.T) {
	svc, metrics := newService(t,
		&mockSalesClient{err: &domain.ErrNotFound{Resource: "sales", ID: "42"}},
		&mockExpensesClient{err: &domain.ErrNotFound{Resource: "expenses", ID: "42"}},
		false,
	)

	report, err := svc.GetReport(context.Background(), "42", "Poultry", "", false)
	if err != nil {
		t.Fatalf("expected empty report, got error %v", err)
	}
	if report.Partial || len(report.Daily) != 0 {
		t.Errorf("expected empty complete report, got partial=%v daily=%d", report.Partial, len(report.Daily))
	}
	if !report.Summary.NetProfit.IsZero() {
		t.Errorf("expected zero net profit, got %s", report.Summary.NetProfit)
	}
	if got := metrics.GetPipelineSnapshot().SalesErrors; got != 0 {
		t.Errorf("expected not-found not to count as an error, got %d", got)
	}
}

func TestGetReport_CachesCompleteLedger(t *testing.T) {
	sales := &mockSalesClient{sales: poultrySales()}
	expenses := &mockExpensesClient{expenses: poultryExpenses()}
	svc, metrics := newService(t, sales, expenses, true)

	first, err := svc.GetReport(context.Background(), "42", "Poultry", "", false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := svc.GetReport(context.Background(), "42", " poultry ", "", false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if first.Cached || !second.Cached {
		t.Errorf("expected second call to be served from cache, got cached=%v,%v", first.Cached, second.Cached)
	}
	if sales.calls.Load() != 1 || expenses.calls.Load() != 1 {
		t.Errorf("expected one backend call each, got sales=%d expenses=%d", sales.calls.Load(), expenses.calls.Load())
	}
	if !first.Summary.NetProfit.Equal(second.Summary.NetProfit) {
		t.Errorf("cached summary differs: %s vs %s", first.Summary.NetProfit, second.Summary.NetProfit)
	}
	if rate := metrics.GetPipelineSnapshot().CacheHitRate; rate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", rate)
	}

	if _, err := svc.GetReport(context.Background(), "42", "Poultry", "", true); err != nil {
		t.Fatalf("expected no error on refresh, got %v", err)
	}
	if sales.calls.Load() != 2 {
		t.Errorf("expected refresh to bypass cache, sales calls=%d", sales.calls.Load())
	}
}

func TestGetReport_CacheIsScopedToToken(t *testing.T) {
	sales := &mockSalesClient{sales: poultrySales()}
	expenses := &mockExpensesClient{expenses: poultryExpenses()}
	svc, _ := newService(t, sales, expenses, true)

	owner := domain.ContextWithToken(context.Background(), "owner-token")
	other := domain.ContextWithToken(context.Background(), "other-token")

	if _, err := svc.GetReport(owner, "42", "Poultry", "", false); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	report, err := svc.GetReport(other, "42", "Poultry", "", false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.Cached {
		t.Error("expected a different token not to be served the cached ledger")
	}
	if sales.calls.Load() != 2 {
		t.Errorf("expected the second token to reach the backend, sales calls=%d", sales.calls.Load())
	}

	report, err = svc.GetReport(owner, "42", "Poultry", "", false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !report.Cached {
		t.Error("expected the owner's token to hit its cached ledger")
	}
}

func TestGetReport_PartialNotCached(t *testing.T) {
	sales := &mockSalesClient{err: errors.New("boom")}
	expenses := &mockExpensesClient{expenses: poultryExpenses()}
	svc, _ := newService(t, sales, expenses, true)

	for i := 0; i < 2; i++ {
		if _, err := svc.GetReport(context.Background(), "42", "Poultry", "", false); err != nil {
			t.Fatalf("expected partial report, got %v", err)
		}
	}
	if sales.calls.Load() != 2 {
		t.Errorf("expected partial ledger not to be cached, sales calls=%d", sales.calls.Load())
	}
}

func TestGetReport_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sales := &mockSalesClient{sales: poultrySales()}
	svc, _ := newService(t, sales, &mockExpensesClient{}, false)

	_, err := svc.GetReport(ctx, "42", "Poultry", "", false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sales.calls.Load() != 0 {
		t.Errorf("expected no backend call, got %d", sales.calls.Load())
	}
}

func TestGetReport_Validation(t *testing.T) {
	svc, _ := newService(t, &mockSalesClient{}, &mockExpensesClient{}, false)

	tests := []struct {
		name    string
		userID  string
		subType string
		month   string
		field   string
	}{
		{"missing user", " ", "Poultry", "", "user_id"},
		{"missing sub-type", "42", "", "", "sub_type"},
		{"bad month", "42", "Poultry", "03-2024", "month"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetReport(context.Background(), tt.userID, tt.subType, tt.month, false)
			var ve *domain.ErrValidation
			if !errors.As(err, &ve) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
}

func TestGetDaily_FiltersRange(t *testing.T) {
	svc, _ := newService(t,
		&mockSalesClient{sales: poultrySales()},
		&mockExpensesClient{expenses: poultryExpenses()},
		false,
	)

	days, errs, err := svc.GetDaily(context.Background(), "42", "Poultry", "2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(errs) != 0 {
		t.Errorf("expected no source errors, got %v", errs)
	}
	if len(days) != 2 || days[0].Date != "2024-03-05" || days[1].Date != "2024-03-06" {
		t.Errorf("unexpected days: %+v", days)
	}

	if _, _, err := svc.GetDaily(context.Background(), "42", "Poultry", "2024-04-01", "2024-03-01"); err == nil {
		t.Error("expected validation error for inverted range")
	}
}

func TestGetMonthlyTrend(t *testing.T) {
	svc, _ := newService(t,
		&mockSalesClient{sales: poultrySales()},
		&mockExpensesClient{expenses: poultryExpenses()},
		false,
	)

	months, _, err := svc.GetMonthlyTrend(context.Background(), "42", "Poultry", "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(months) != 6 {
		t.Fatalf("expected six months by default, got %d", len(months))
	}
	if months[0].Month != "2023-10" || months[5].Month != "2024-03" {
		t.Errorf("unexpected window %s..%s", months[0].Month, months[5].Month)
	}
	if months[4].NetProfit.String() != "-75" || months[5].NetProfit.String() != "300" {
		t.Errorf("unexpected net profit feb=%s mar=%s", months[4].NetProfit, months[5].NetProfit)
	}

	if _, _, err := svc.GetMonthlyTrend(context.Background(), "42", "Poultry", "2020-01", "2024-03"); err == nil {
		t.Error("expected validation error for a range longer than the limit")
	}
}

func TestGetProfile(t *testing.T) {
	svc, _ := newService(t, &mockSalesClient{}, &mockExpensesClient{}, false)

	p, err := svc.GetProfile(context.Background(), "42")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.UserID != 42 || p.FirstName != "Asha" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestCategories_FallsBackToDefault(t *testing.T) {
	svc, _ := newService(t, &mockSalesClient{}, &mockExpensesClient{}, false)

	if got := svc.Categories("Poultry").COGS; len(got) == 0 || got[1] != "Feed" {
		t.Errorf("unexpected poultry COGS %v", got)
	}
	if got := svc.Categories("Mushrooms").COGS; len(got) != 3 {
		t.Errorf("expected default COGS table, got %v", got)
	}
}
