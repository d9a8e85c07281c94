package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Source records (owned by the backend, read-only here)
// ============================================================

// SaleRecord is one logged sale: parallel arrays of items, quantities and
// per-unit prices, tagged with the business sub-type it belongs to.
type SaleRecord struct {
	ID             RecordID  `json:"sales_id"`
	UserID         RecordID  `json:"user_id"`
	SalesName      string    `json:"sales_name"`
	SalesDate      string    `json:"sales_date"`
	Occupation     string    `json:"occupation"`
	ItemsSold      []string  `json:"items_sold"`
	QuantitiesSold []Numeric `json:"quantities_sold"`
	PricesPerUnit  []Numeric `json:"prices_per_unit"`
	QuantityUnit   string    `json:"quantity_unit,omitempty"`
	InvoiceNumber  string    `json:"invoice_number,omitempty"`

	// Malformed marks an array element that could not be decoded at all.
	Malformed bool `json:"-"`
}

// ExpenseRecord is one logged expense.
type ExpenseRecord struct {
	ID          RecordID `json:"expense_id"`
	UserID      RecordID `json:"user_id"`
	Title       string   `json:"title"`
	Occupation  string   `json:"occupation"`
	Category    string   `json:"category"`
	Expense     Numeric  `json:"expense"`
	DateCreated string   `json:"date_created"`

	// Malformed marks an array element that could not be decoded at all.
	Malformed bool `json:"-"`
}

// ============================================================
// Derived ledger
// ============================================================

// EventKind distinguishes timeline entries.
type EventKind string

const (
	EventSale    EventKind = "sale"
	EventExpense EventKind = "expense"
)

// LedgerEvent is one element of the merged, chronological timeline.
type LedgerEvent struct {
	Date    string         `json:"date"` // YYYY-MM-DD
	Kind    EventKind      `json:"kind"`
	Sale    *SaleRecord    `json:"sale,omitempty"`
	Expense *ExpenseRecord `json:"expense,omitempty"`
}

// BreakdownItem is a named contribution to a bucket.
type BreakdownItem struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

// DailyFinancialEntry aggregates one calendar day of activity.
type DailyFinancialEntry struct {
	Date     string          `json:"date"`
	Revenue  []BreakdownItem `json:"revenue"`
	COGS     []BreakdownItem `json:"cogs"`
	Expenses []BreakdownItem `json:"expenses"`
}

// TotalRevenue sums the revenue bucket.
func (e DailyFinancialEntry) TotalRevenue() decimal.Decimal { return SumItems(e.Revenue) }

// TotalCOGS sums the cost-of-goods-sold bucket.
func (e DailyFinancialEntry) TotalCOGS() decimal.Decimal { return SumItems(e.COGS) }

// TotalExpenses sums the operating expense bucket.
func (e DailyFinancialEntry) TotalExpenses() decimal.Decimal { return SumItems(e.Expenses) }

// SumItems adds up the values of a breakdown.
func SumItems(items []BreakdownItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Value)
	}
	return total
}

// NormalizationReport counts what the normalization stage had to forgive.
type NormalizationReport struct {
	SalesMatched    int `json:"sales_matched"`
	ExpensesMatched int `json:"expenses_matched"`
	SkippedRecords  int `json:"skipped_records"` // unparseable date
	CoercedFields   int `json:"coerced_fields"`  // malformed or missing numeric -> 0
	ClampedValues   int `json:"clamped_values"`  // negative -> 0
}

// FinancialLedger is the memoised product of the fetch and normalization
// stages for one (user, sub-type) pair.
type FinancialLedger struct {
	UserID        string                `json:"user_id"`
	SubType       string                `json:"sub_type"`
	Daily         []DailyFinancialEntry `json:"daily"`
	Normalization NormalizationReport   `json:"normalization"`
	FetchedAt     time.Time             `json:"fetched_at"`
}

// ============================================================
// Monthly rollup
// ============================================================

// Headline metric titles, in display order.
const (
	MetricRevenue     = "Revenue"
	MetricCOGS        = "COGS"
	MetricGrossProfit = "Gross Profit"
	MetricExpenses    = "Expenses"
	MetricNetProfit   = "Net Profit"
)

// MetricCard is one summary card shown on the dashboard.
type MetricCard struct {
	Title     string          `json:"title"`
	Value     decimal.Decimal `json:"value"`
	Breakdown []BreakdownItem `json:"breakdown"`
}

// MonthlySummary holds the five headline figures for one calendar month.
type MonthlySummary struct {
	Month       string          `json:"month"` // YYYY-MM
	From        string          `json:"from"`
	To          string          `json:"to"`
	ActiveDays  int             `json:"active_days"`
	Revenue     decimal.Decimal `json:"revenue"`
	COGS        decimal.Decimal `json:"cogs"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	Expenses    decimal.Decimal `json:"expenses"`
	NetProfit   decimal.Decimal `json:"net_profit"`
	Cards       []MetricCard    `json:"cards"`
}

// SourceError reports one upstream fetch that failed.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// FinancialReport is returned by GET /v1/users/{userId}/financials/{subType}.
type FinancialReport struct {
	UserID        string                `json:"user_id"`
	SubType       string                `json:"sub_type"`
	Summary       MonthlySummary        `json:"summary"`
	Daily         []DailyFinancialEntry `json:"daily"`
	Normalization NormalizationReport   `json:"normalization"`
	Errors        []SourceError         `json:"errors,omitempty"`
	Partial       bool                  `json:"partial"`
	Cached        bool                  `json:"cached"`
	GeneratedAt   time.Time             `json:"generated_at"`
}
