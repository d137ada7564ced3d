// Package pricing implements the deterministic rule engine that turns a task
// specification into an itemized price breakdown. The engine holds no mutable
// state and is safe to call from any number of goroutines.
package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/codeai-platform/task-engine/internal/models"
)

// Engine prices task specifications against a fixed rate table.
type Engine struct {
	table Table
}

// NewEngine creates an engine over the given rate table.
func NewEngine(table Table) *Engine {
	return &Engine{table: table}
}

// Table returns the engine's rate table.
func (e *Engine) Table() Table {
	return e.table
}

// Price computes the breakdown for a specification. It is pure: identical
// (spec, now) inputs always yield an identical breakdown. Urgency is derived
// from the deadline against now, never read from a stored field.
//
// Modifier order is fixed for reproducibility: category, urgency, complexity,
// technology/pages, special requirements.
func (e *Engine) Price(spec *models.TaskSpecification, now time.Time) models.PriceBreakdown {
	t := e.table

	base := t.Tiers[spec.AcademicLevel.Rank()]
	urgency := models.UrgencyFromDeadline(spec.Deadline, now)

	var mods []models.Modifier
	add := func(name string, amount float64) {
		if amount != 0 {
			mods = append(mods, models.Modifier{Name: name, Amount: amount})
		}
	}

	if t.IsHeavyCategory(spec.Category) {
		add("category", t.CategoryBonus)
	}

	switch urgency {
	case models.UrgencyVeryUrgent:
		add("urgency", t.UrgencyVeryUrgent)
	case models.UrgencyUrgent:
		add("urgency", t.UrgencyUrgent)
	case models.UrgencyStandard:
		add("urgency", t.UrgencyStandard)
	}

	add("complexity", t.ComplexityBonus[spec.EffectiveComplexity().Rank()])

	if spec.Category.IsCodingStyle() {
		stack := spec.TechnologyStack
		add("languages", float64(len(stack.Languages))*t.PerLanguage)
		add("frameworks", float64(len(stack.Frameworks))*t.PerFramework)
		add("databases", float64(len(stack.Databases))*t.PerDatabase)
	} else if spec.Category.IsResearchStyle() {
		switch {
		case spec.PageCount > 20:
			add("pages", t.PagesOver20Bonus)
		case spec.PageCount > 10:
			add("pages", t.PagesOver10Bonus)
		}
	}

	if spec.Special.HostingRequired {
		add("hosting", t.HostingBonus)
	}
	if spec.Special.UIDesignRequired {
		add("ui_design", t.UIDesignBonus)
	}
	if spec.Special.PlagiarismCheck {
		add("plagiarism_check", t.PlagiarismBonus)
	}

	subtotal := base
	for _, m := range mods {
		subtotal += m.Amount
	}

	// The larger discount replaces the smaller one, it never stacks.
	multiplier := 1.0
	switch {
	case subtotal > t.ThresholdT2:
		multiplier = t.MultiplierT2
	case subtotal > t.ThresholdT1:
		multiplier = t.MultiplierT1
	}

	final := int64(math.Round(subtotal * multiplier))

	return models.PriceBreakdown{
		BasePrice:          base,
		Modifiers:          mods,
		Urgency:            urgency,
		Subtotal:           subtotal,
		DiscountMultiplier: multiplier,
		FinalPrice:         final,
		Currency:           t.Currency,
	}
}

// FormatPrice renders a final price the way the platform displays it,
// e.g. "GHS 631.00".
func (e *Engine) FormatPrice(amount int64) string {
	return fmt.Sprintf("%s %d.00", e.table.Currency, amount)
}
