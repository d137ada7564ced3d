package tasks

import (
	"fmt"

	"github.com/codeai-platform/task-engine/internal/models"
)

// MaxFileSize is the ceiling for an attached document (10 MiB).
const MaxFileSize = 10 << 20

// Validation error codes
const (
	CodeMissingField      = "missing_field"
	CodeInconsistentField = "inconsistent_field"
	CodeFileTooLarge      = "file_too_large"
)

// ValidationError reports a specification that cannot be submitted. Field
// names the offending item so the caller can surface an actionable message.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func missing(field string) *ValidationError {
	return &ValidationError{Code: CodeMissingField, Field: field, Message: field + " is required"}
}

func inconsistent(field, msg string) *ValidationError {
	return &ValidationError{Code: CodeInconsistentField, Field: field, Message: msg}
}

// Validate checks a specification for completeness and consistency before
// pricing or persistence. It is a pure check with no side effects; a failed
// specification never reaches the store.
func Validate(spec *models.TaskSpecification) error {
	if spec == nil {
		return missing("spec")
	}
	if spec.Category == "" {
		return missing("category")
	}
	if spec.AcademicLevel == "" {
		return missing("academic_level")
	}
	if spec.Deadline.IsZero() {
		return missing("deadline")
	}

	// Complexity must be declared unless it can be inferred from the
	// technology selections.
	if spec.Complexity == "" && spec.TechnologyStack.Size() == 0 {
		return missing("complexity")
	}

	if spec.Category.IsCodingStyle() && len(spec.TechnologyStack.Languages) == 0 {
		return missing("technology_stack.languages")
	}

	if spec.Category.IsResearchStyle() && spec.PageCount <= 0 {
		return missing("page_count")
	}

	if spec.WorkType == models.WorkGroup && spec.GroupSize < 2 {
		return inconsistent("group_size", "group work requires a group size of at least 2")
	}

	if spec.AttachedFile == nil {
		return missing("attached_file")
	}
	if spec.AttachedFile.Size > MaxFileSize {
		return &ValidationError{
			Code:    CodeFileTooLarge,
			Field:   "attached_file",
			Message: fmt.Sprintf("file exceeds the %d MiB limit", MaxFileSize>>20),
		}
	}

	return nil
}
