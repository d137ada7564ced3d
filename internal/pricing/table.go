package pricing

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/codeai-platform/task-engine/internal/models"
)

// Table holds every rate the rule engine applies. All amounts are in whole
// Ghana cedis unless noted. The zero value is unusable; start from
// DefaultTable and optionally override from a YAML file.
type Table struct {
	Currency string `yaml:"currency"`

	// Base price per academic level tier, indexed by AcademicLevel.Rank().
	Tiers [4]float64 `yaml:"tiers"`

	// Flat bonus for heavy categories.
	CategoryBonus   float64           `yaml:"category_bonus"`
	HeavyCategories []models.Category `yaml:"heavy_categories"`

	// Urgency bonuses derived from the deadline at pricing time.
	UrgencyVeryUrgent float64 `yaml:"urgency_very_urgent"`
	UrgencyUrgent     float64 `yaml:"urgency_urgent"`
	UrgencyStandard   float64 `yaml:"urgency_standard"`

	// Per-rank complexity bonus, indexed by Complexity.Rank().
	ComplexityBonus [4]float64 `yaml:"complexity_bonus"`

	// Per-item technology rates for coding-style categories.
	PerLanguage  float64 `yaml:"per_language"`
	PerFramework float64 `yaml:"per_framework"`
	PerDatabase  float64 `yaml:"per_database"`

	// Page-count tiers for research-style categories. The higher tier
	// replaces the lower one, they do not stack.
	PagesOver10Bonus float64 `yaml:"pages_over_10_bonus"`
	PagesOver20Bonus float64 `yaml:"pages_over_20_bonus"`

	// Special requirement bonuses.
	HostingBonus    float64 `yaml:"hosting_bonus"`
	UIDesignBonus   float64 `yaml:"ui_design_bonus"`
	PlagiarismBonus float64 `yaml:"plagiarism_bonus"`

	// Volume discounts. Crossing T2 applies MultiplierT2 alone, never
	// stacked with MultiplierT1. Thresholds are strict: a subtotal of
	// exactly ThresholdT1 receives no discount.
	ThresholdT1  float64 `yaml:"threshold_t1"`
	MultiplierT1 float64 `yaml:"multiplier_t1"`
	ThresholdT2  float64 `yaml:"threshold_t2"`
	MultiplierT2 float64 `yaml:"multiplier_t2"`
}

// DefaultTable returns the built-in rate table.
func DefaultTable() Table {
	return Table{
		Currency:      "GHS",
		Tiers:         [4]float64{80, 250, 450, 450},
		CategoryBonus: 100,
		HeavyCategories: []models.Category{
			models.CategoryFinalYearProject,
			models.CategoryAIML,
			models.CategoryWeb,
			models.CategoryDatabase,
		},
		UrgencyVeryUrgent: 150,
		UrgencyUrgent:     100,
		UrgencyStandard:   50,
		ComplexityBonus:   [4]float64{0, 50, 100, 150},
		PerLanguage:       25,
		PerFramework:      50,
		PerDatabase:       40,
		PagesOver10Bonus:  50,
		PagesOver20Bonus:  150,
		HostingBonus:      80,
		UIDesignBonus:     60,
		PlagiarismBonus:   40,
		ThresholdT1:       500,
		MultiplierT1:      0.97,
		ThresholdT2:       1000,
		MultiplierT2:      0.93,
	}
}

// LoadTable reads a rate table from a YAML file, layered over the defaults.
// A missing path is not an error — the defaults are returned and a warning
// logged, so the engine always has a usable table.
func LoadTable(path string) (Table, error) {
	table := DefaultTable()

	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("pricing table file not found, using defaults", "path", path)
			return table, nil
		}
		return table, fmt.Errorf("failed to read pricing table: %w", err)
	}

	if err := yaml.Unmarshal(data, &table); err != nil {
		return table, fmt.Errorf("failed to parse pricing table %s: %w", path, err)
	}

	if err := table.Validate(); err != nil {
		return table, fmt.Errorf("pricing table %s invalid: %w", path, err)
	}

	slog.Info("pricing table loaded", "path", path, "currency", table.Currency)
	return table, nil
}

// Validate checks the table for values that would break pricing guarantees.
func (t Table) Validate() error {
	for i := 1; i < len(t.Tiers); i++ {
		if t.Tiers[i] < t.Tiers[i-1] {
			return fmt.Errorf("tier %d (%v) is below tier %d (%v)", i, t.Tiers[i], i-1, t.Tiers[i-1])
		}
	}
	for i := 1; i < len(t.ComplexityBonus); i++ {
		if t.ComplexityBonus[i] < t.ComplexityBonus[i-1] {
			return fmt.Errorf("complexity bonus rank %d is below rank %d", i, i-1)
		}
	}
	if t.MultiplierT1 <= 0 || t.MultiplierT1 > 1 || t.MultiplierT2 <= 0 || t.MultiplierT2 > 1 {
		return fmt.Errorf("discount multipliers must be in (0, 1]")
	}
	if t.ThresholdT2 <= t.ThresholdT1 {
		return fmt.Errorf("threshold T2 (%v) must exceed T1 (%v)", t.ThresholdT2, t.ThresholdT1)
	}
	if t.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	return nil
}

// IsHeavyCategory reports whether the category receives the flat category bonus.
// Unrecognized categories simply get no bonus, never an error.
func (t Table) IsHeavyCategory(c models.Category) bool {
	for _, h := range t.HeavyCategories {
		if h == c {
			return true
		}
	}
	return false
}
