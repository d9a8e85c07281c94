package config

import (
	"fmt"
	"os"

	"github.com/graminate/finance-bfa-go/internal/domain"

	"gopkg.in/yaml.v3"
)

// categoryFile is the on-disk shape of CATEGORY_CONFIG_PATH:
//
//	sub_types:
//	  Poultry:
//	    cogs: [Feed, Chicks]
//	    expenses: [Salaries]
type categoryFile struct {
	SubTypes map[string]domain.SubTypeCategories `yaml:"sub_types"`
}

// LoadCategoryConfig returns the built-in category tables, with whole
// sub-type tables replaced by those in the YAML file at path. An empty path
// returns the defaults.
func LoadCategoryConfig(path string) (*domain.CategoryConfig, error) {
	defaults := domain.DefaultCategoryConfig()
	if path == "" {
		return defaults, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category config: %w", err)
	}
	return ParseCategoryConfig(raw, defaults)
}

// ParseCategoryConfig merges the YAML document raw over base.
func ParseCategoryConfig(raw []byte, base *domain.CategoryConfig) (*domain.CategoryConfig, error) {
	var f categoryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse category config: %w", err)
	}
	for name, cats := range f.SubTypes {
		if domain.NormalizeKey(name) == "" {
			return nil, fmt.Errorf("parse category config: empty sub-type name")
		}
		if len(cats.COGS) == 0 && len(cats.Expenses) == 0 {
			return nil, fmt.Errorf("parse category config: sub-type %q has no categories", name)
		}
	}
	return base.Merge(f.SubTypes), nil
}
