package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/codeai-platform/task-engine/internal/models"
)

// maxExcerptLen caps the extracted-text prefix included in the price prompt.
const maxExcerptLen = 500

const priceSystemPrompt = `You are a pricing assistant for a Ghanaian university I.T. task platform.
Reply with ONLY a single price in the form "GHS <amount>", for example "GHS 450.00".
Do not explain. Do not add any other text.`

// pricePattern is the only reply shape accepted from the model.
var pricePattern = regexp.MustCompile(`GHS\s?\d+(\.\d{1,2})?`)

// Suggest asks the model for a secondary price estimate. The returned string
// is opaque to the caller: it is shown beside the rule-engine price and never
// substituted into it. One attempt, no retry; the caller may let the user
// re-trigger manually.
func (a *Advisor) Suggest(ctx context.Context, spec *models.TaskSpecification) (string, error) {
	prompt := buildPricePrompt(spec)

	reply, err := a.chat(ctx, priceSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAdvisorUnavailable, err)
	}

	price := pricePattern.FindString(reply)
	if price == "" {
		slog.Warn("price advisor returned malformed reply", "reply", truncate(reply, 80))
		return "", fmt.Errorf("%w: malformed reply", ErrAdvisorUnavailable)
	}

	return price, nil
}

func buildPricePrompt(spec *models.TaskSpecification) string {
	urgency := models.UrgencyFromDeadline(spec.Deadline, time.Now())

	var b strings.Builder
	fmt.Fprintf(&b, "Estimate a fair price in Ghana cedis for this academic I.T. task.\n\n")
	fmt.Fprintf(&b, "Category: %s\n", spec.Category)
	fmt.Fprintf(&b, "Academic level: %s\n", spec.AcademicLevel)
	fmt.Fprintf(&b, "Urgency: %s\n", urgency)
	fmt.Fprintf(&b, "Complexity: %s\n", spec.EffectiveComplexity())

	if n := spec.TechnologyStack.Size(); n > 0 {
		var tech []string
		tech = append(tech, spec.TechnologyStack.Languages...)
		tech = append(tech, spec.TechnologyStack.Frameworks...)
		tech = append(tech, spec.TechnologyStack.Databases...)
		fmt.Fprintf(&b, "Technologies: %s\n", strings.Join(tech, ", "))
	}
	if spec.PageCount > 0 {
		fmt.Fprintf(&b, "Pages: %d\n", spec.PageCount)
	}
	if spec.WorkType == models.WorkGroup {
		fmt.Fprintf(&b, "Group project, %d members\n", spec.GroupSize)
	}
	if spec.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s\n", truncate(spec.Description, maxExcerptLen))
	}
	if spec.ExtractedText != "" {
		fmt.Fprintf(&b, "\nDocument excerpt:\n%s\n", truncate(spec.ExtractedText, maxExcerptLen))
	}

	return b.String()
}
