package service

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/graminate/finance-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"

	unnamedItem   = "Unnamed item"
	uncategorized = "Uncategorized"
)

// ============================================================
// Merge: filter by sub-type and order chronologically
// ============================================================

// MergeTimeline keeps the records whose occupation matches subType and
// returns them as one timeline ordered by day, then sales before expenses,
// then id. Records with an unparseable date, and elements the client could
// not decode, are dropped and counted.
func MergeTimeline(subType string, sales []domain.SaleRecord, expenses []domain.ExpenseRecord) ([]domain.LedgerEvent, domain.NormalizationReport) {
	var report domain.NormalizationReport
	want := domain.NormalizeKey(subType)
	events := make([]domain.LedgerEvent, 0, len(sales)+len(expenses))

	for i := range sales {
		s := &sales[i]
		if s.Malformed {
			report.SkippedRecords++
			continue
		}
		if domain.NormalizeKey(s.Occupation) != want {
			continue
		}
		day, ok := NormalizeDate(s.SalesDate)
		if !ok {
			report.SkippedRecords++
			continue
		}
		report.SalesMatched++
		events = append(events, domain.LedgerEvent{Date: day, Kind: domain.EventSale, Sale: s})
	}

	for i := range expenses {
		e := &expenses[i]
		if e.Malformed {
			report.SkippedRecords++
			continue
		}
		if domain.NormalizeKey(e.Occupation) != want {
			continue
		}
		day, ok := NormalizeDate(e.DateCreated)
		if !ok {
			report.SkippedRecords++
			continue
		}
		report.ExpensesMatched++
		events = append(events, domain.LedgerEvent{Date: day, Kind: domain.EventExpense, Expense: e})
	}

	slices.SortStableFunc(events, func(a, b domain.LedgerEvent) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		if a.Kind != b.Kind {
			if a.Kind == domain.EventSale {
				return -1
			}
			return 1
		}
		return cmp.Compare(eventID(a), eventID(b))
	})

	return events, report
}

func eventID(e domain.LedgerEvent) domain.RecordID {
	if e.Sale != nil {
		return e.Sale.ID
	}
	if e.Expense != nil {
		return e.Expense.ID
	}
	return 0
}

// NormalizeDate reduces a backend date to YYYY-MM-DD. Timestamps are taken
// in UTC; plain dates are kept as-is.
func NormalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if t, err := time.Parse(dayLayout, raw); err == nil {
		return t.Format(dayLayout), true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(dayLayout), true
		}
	}
	return "", false
}

// ============================================================
// Normalize: timeline -> one entry per active day
// ============================================================

type dayBuckets struct {
	revenue  map[string]decimal.Decimal
	cogs     map[string]decimal.Decimal
	expenses map[string]decimal.Decimal
}

func newDayBuckets() *dayBuckets {
	return &dayBuckets{
		revenue:  make(map[string]decimal.Decimal),
		cogs:     make(map[string]decimal.Decimal),
		expenses: make(map[string]decimal.Decimal),
	}
}

// BuildDailyEntries folds the timeline into daily entries. Sales contribute
// quantity x price per line item to Revenue; expenses go to COGS or Expenses
// according to categories. Malformed or missing numbers count as zero and
// negative amounts are clamped to zero; both are tallied in report.
// Days without any non-zero contribution are omitted. The output is sorted
// by date with breakdowns sorted by name.
func BuildDailyEntries(events []domain.LedgerEvent, categories *domain.CategoryConfig, subType string, report *domain.NormalizationReport) []domain.DailyFinancialEntry {
	days := make(map[string]*dayBuckets)
	bucketsFor := func(day string) *dayBuckets {
		b, ok := days[day]
		if !ok {
			b = newDayBuckets()
			days[day] = b
		}
		return b
	}

	for _, ev := range events {
		switch ev.Kind {
		case domain.EventSale:
			if ev.Sale == nil {
				continue
			}
			b := bucketsFor(ev.Date)
			for name, amount := range saleContribution(ev.Sale, report) {
				b.revenue[name] = b.revenue[name].Add(amount)
			}
		case domain.EventExpense:
			if ev.Expense == nil {
				continue
			}
			amount := nonNegative(ev.Expense.Expense, report)
			name := strings.TrimSpace(ev.Expense.Category)
			if name == "" {
				name = uncategorized
			}
			b := bucketsFor(ev.Date)
			if categories.Classify(subType, ev.Expense.Category) == domain.ClassCOGS {
				b.cogs[name] = b.cogs[name].Add(amount)
			} else {
				b.expenses[name] = b.expenses[name].Add(amount)
			}
		}
	}

	entries := make([]domain.DailyFinancialEntry, 0, len(days))
	for day, b := range days {
		entry := domain.DailyFinancialEntry{
			Date:     day,
			Revenue:  toItems(b.revenue),
			COGS:     toItems(b.cogs),
			Expenses: toItems(b.expenses),
		}
		if len(entry.Revenue)+len(entry.COGS)+len(entry.Expenses) == 0 {
			continue
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b domain.DailyFinancialEntry) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return entries
}

// saleContribution returns revenue per item name for one sale. The three
// parallel arrays may be ragged; missing cells count as malformed.
func saleContribution(s *domain.SaleRecord, report *domain.NormalizationReport) map[string]decimal.Decimal {
	lines := max(len(s.ItemsSold), len(s.QuantitiesSold), len(s.PricesPerUnit))
	out := make(map[string]decimal.Decimal, lines)

	for i := 0; i < lines; i++ {
		qty := cell(s.QuantitiesSold, i, report)
		price := cell(s.PricesPerUnit, i, report)

		name := ""
		if i < len(s.ItemsSold) {
			name = strings.TrimSpace(s.ItemsSold[i])
		}
		if name == "" {
			name = strings.TrimSpace(s.SalesName)
		}
		if name == "" {
			name = unnamedItem
		}
		out[name] = out[name].Add(qty.Mul(price))
	}
	return out
}

func cell(values []domain.Numeric, i int, report *domain.NormalizationReport) decimal.Decimal {
	if i >= len(values) {
		report.CoercedFields++
		return decimal.Zero
	}
	return nonNegative(values[i], report)
}

func nonNegative(n domain.Numeric, report *domain.NormalizationReport) decimal.Decimal {
	if !n.Valid {
		report.CoercedFields++
		return decimal.Zero
	}
	if n.Value.IsNegative() {
		report.ClampedValues++
		return decimal.Zero
	}
	return n.Value
}

func toItems(m map[string]decimal.Decimal) []domain.BreakdownItem {
	items := make([]domain.BreakdownItem, 0, len(m))
	for name, v := range m {
		if v.IsZero() {
			continue
		}
		items = append(items, domain.BreakdownItem{Name: name, Value: v})
	}
	slices.SortFunc(items, func(a, b domain.BreakdownItem) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return items
}

// ============================================================
// Rollup: daily series -> monthly headline metrics
// ============================================================

// MonthBounds returns the first and last calendar day of month.
func MonthBounds(month time.Time) (first, last time.Time) {
	first = time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	last = first.AddDate(0, 1, -1)
	return first, last
}

// RollupMonth sums the entries dated within month (both ends inclusive)
// into the five headline figures:
//
//	Gross Profit = Revenue - COGS
//	Net Profit   = Gross Profit - Expenses
//
// An empty series yields all zeros.
func RollupMonth(series []domain.DailyFinancialEntry, month time.Time) domain.MonthlySummary {
	first, last := MonthBounds(month)
	from, to := first.Format(dayLayout), last.Format(dayLayout)

	revenue := make(map[string]decimal.Decimal)
	cogs := make(map[string]decimal.Decimal)
	expenses := make(map[string]decimal.Decimal)
	active := 0

	for _, e := range series {
		if e.Date < from || e.Date > to {
			continue
		}
		active++
		accumulate(revenue, e.Revenue)
		accumulate(cogs, e.COGS)
		accumulate(expenses, e.Expenses)
	}

	revItems, cogsItems, expItems := toItems(revenue), toItems(cogs), toItems(expenses)
	totalRevenue := domain.SumItems(revItems)
	totalCOGS := domain.SumItems(cogsItems)
	totalExpenses := domain.SumItems(expItems)
	gross := totalRevenue.Sub(totalCOGS)
	net := gross.Sub(totalExpenses)

	return domain.MonthlySummary{
		Month:       first.Format(monthLayout),
		From:        from,
		To:          to,
		ActiveDays:  active,
		Revenue:     totalRevenue,
		COGS:        totalCOGS,
		GrossProfit: gross,
		Expenses:    totalExpenses,
		NetProfit:   net,
		Cards: []domain.MetricCard{
			{Title: domain.MetricRevenue, Value: totalRevenue, Breakdown: revItems},
			{Title: domain.MetricCOGS, Value: totalCOGS, Breakdown: cogsItems},
			{Title: domain.MetricGrossProfit, Value: gross, Breakdown: []domain.BreakdownItem{
				{Name: domain.MetricRevenue, Value: totalRevenue},
				{Name: domain.MetricCOGS, Value: totalCOGS},
			}},
			{Title: domain.MetricExpenses, Value: totalExpenses, Breakdown: expItems},
			{Title: domain.MetricNetProfit, Value: net, Breakdown: []domain.BreakdownItem{
				{Name: domain.MetricGrossProfit, Value: gross},
				{Name: domain.MetricExpenses, Value: totalExpenses},
			}},
		},
	}
}

// RollupRange returns one summary per calendar month from..to inclusive.
// from after to yields nil.
func RollupRange(series []domain.DailyFinancialEntry, from, to time.Time) []domain.MonthlySummary {
	start, _ := MonthBounds(from)
	end, _ := MonthBounds(to)
	if start.After(end) {
		return nil
	}

	var out []domain.MonthlySummary
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		out = append(out, RollupMonth(series, m))
	}
	return out
}

// FilterDays keeps entries with from <= date <= to. Empty bounds are open.
func FilterDays(series []domain.DailyFinancialEntry, from, to string) []domain.DailyFinancialEntry {
	out := make([]domain.DailyFinancialEntry, 0, len(series))
	for _, e := range series {
		if from != "" && e.Date < from {
			continue
		}
		if to != "" && e.Date > to {
			continue
		}
		out = append(out, e)
	}
	return out
}

func accumulate(into map[string]decimal.Decimal, items []domain.BreakdownItem) {
	for _, it := range items {
		into[it.Name] = into[it.Name].Add(it.Value)
	}
}
