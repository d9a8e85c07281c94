package domain

import (
	"sort"
	"strings"
)

// CostClass is how an expense category is treated in the rollup.
type CostClass string

const (
	ClassCOGS    CostClass = "cogs"
	ClassExpense CostClass = "expense"
)

// DefaultSubType is the fallback entry for sub-types with no table of their own.
const DefaultSubType = "default"

// SubTypeCategories lists the expense categories of one business vertical.
type SubTypeCategories struct {
	COGS     []string `json:"cogs" yaml:"cogs"`
	Expenses []string `json:"expenses" yaml:"expenses"`
}

// CategoryConfig classifies raw expense categories as COGS or operating
// expense, per sub-type. Lookups are case-insensitive. A category that is
// not listed as COGS is an expense.
type CategoryConfig struct {
	entries map[string]SubTypeCategories
	cogs    map[string]map[string]bool
}

// NewCategoryConfig indexes the given table. Keys are sub-type names.
func NewCategoryConfig(entries map[string]SubTypeCategories) *CategoryConfig {
	c := &CategoryConfig{
		entries: make(map[string]SubTypeCategories, len(entries)),
		cogs:    make(map[string]map[string]bool, len(entries)),
	}
	for subType, cats := range entries {
		key := NormalizeKey(subType)
		c.entries[key] = cats
		set := make(map[string]bool, len(cats.COGS))
		for _, name := range cats.COGS {
			set[NormalizeKey(name)] = true
		}
		c.cogs[key] = set
	}
	return c
}

// Classify returns the cost class of category for subType.
func (c *CategoryConfig) Classify(subType, category string) CostClass {
	set, ok := c.cogs[NormalizeKey(subType)]
	if !ok {
		set = c.cogs[DefaultSubType]
	}
	if set[NormalizeKey(category)] {
		return ClassCOGS
	}
	return ClassExpense
}

// For returns the category table for subType, falling back to the default table.
func (c *CategoryConfig) For(subType string) SubTypeCategories {
	if cats, ok := c.entries[NormalizeKey(subType)]; ok {
		return cats
	}
	return c.entries[DefaultSubType]
}

// Merge returns a new config with overrides replacing whole sub-type tables.
func (c *CategoryConfig) Merge(overrides map[string]SubTypeCategories) *CategoryConfig {
	merged := make(map[string]SubTypeCategories, len(c.entries)+len(overrides))
	for k, v := range c.entries {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[NormalizeKey(k)] = v
	}
	return NewCategoryConfig(merged)
}

// SubTypes lists configured sub-types, sorted.
func (c *CategoryConfig) SubTypes() []string {
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeKey folds case and surrounding whitespace for tag comparison.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DefaultCategoryConfig is the built-in classification table.
func DefaultCategoryConfig() *CategoryConfig {
	operating := []string{"Salaries", "Rent", "Office Supplies", "Marketing", "Transport", "Maintenance", "Insurance", "Miscellaneous"}
	return NewCategoryConfig(map[string]SubTypeCategories{
		DefaultSubType: {
			COGS:     []string{"Goods Purchase", "Raw Materials", "Utilities"},
			Expenses: operating,
		},
		"Poultry": {
			COGS:     []string{"Goods Purchase", "Feed", "Chicks", "Vaccines", "Medicine", "Litter", "Utilities"},
			Expenses: operating,
		},
		"Fishery": {
			COGS:     []string{"Goods Purchase", "Feed", "Fingerlings", "Water Treatment", "Utilities"},
			Expenses: operating,
		},
		"Apiculture": {
			COGS:     []string{"Goods Purchase", "Bee Colonies", "Hive Equipment", "Sugar Feed", "Utilities"},
			Expenses: operating,
		},
		"Cattle Rearing": {
			COGS:     []string{"Goods Purchase", "Fodder", "Calves", "Veterinary Care", "Utilities"},
			Expenses: operating,
		},
	})
}
