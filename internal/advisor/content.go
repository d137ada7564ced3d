package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeai-platform/task-engine/internal/models"
)

// maxContentLen caps the document excerpt sent for classification.
const maxContentLen = 2000

const contentSystemPrompt = `You are a document validator for a Ghanaian university I.T. task platform.
Respond with only "yes" or "no" based on whether the content matches the expected category.`

const contentPromptTemplate = `Analyze the following document content and determine if it matches the expected task category: %q

Document content:
%q

Consider these I.T. task categories:
- coding: code, programming concepts, software development tasks
- web-development: HTML, CSS, JavaScript, web frameworks, responsive design
- database: SQL, database design, data modeling, queries
- networking: network protocols, security, infrastructure, routing
- ai-ml: algorithms, data science, machine learning models
- mobile: iOS, Android, Flutter, mobile frameworks
- mini-project: small-scale I.T. projects, prototypes
- final-year-project: large-scale capstone projects, research
- research: academic papers, literature review, theoretical concepts

IMPORTANT:
- Return ONLY "yes" if the content clearly matches the expected category
- Return ONLY "no" if the content doesn't match or seems unrelated
- Be strict but fair; consider partial matches valid if core concepts align`

// CheckContent classifies whether the extracted document text matches the
// declared category. Texts below the minimum length are skipped outright —
// too little signal to classify. The result is advisory only: callers must
// treat any error as a soft warning and let the submission proceed, because a
// false negative here must never deny a legitimate submission.
func (a *Advisor) CheckContent(ctx context.Context, text string, category models.Category) (models.ContentCheck, error) {
	if len(text) < a.minContentLen {
		return models.ContentCheck{Skipped: true}, nil
	}

	prompt := fmt.Sprintf(contentPromptTemplate, category, truncate(text, maxContentLen))

	reply, err := a.chat(ctx, contentSystemPrompt, prompt)
	if err != nil {
		return models.ContentCheck{}, fmt.Errorf("%w: %v", ErrValidatorUnavailable, err)
	}

	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "yes":
		return models.ContentCheck{Matches: true, Confidence: "high"}, nil
	case "no":
		return models.ContentCheck{Matches: false, Confidence: "low"}, nil
	default:
		return models.ContentCheck{}, fmt.Errorf("%w: unexpected reply %q", ErrValidatorUnavailable, truncate(reply, 40))
	}
}
