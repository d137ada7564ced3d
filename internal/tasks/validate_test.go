package tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/codeai-platform/task-engine/internal/models"
)

// validSpec returns a specification that passes every check. Tests knock out
// one field at a time.
func validSpec() *models.TaskSpecification {
	return &models.TaskSpecification{
		Category:      models.CategoryCoding,
		AcademicLevel: models.Level300,
		Deadline:      time.Now().Add(5 * 24 * time.Hour),
		Complexity:    models.ComplexityModerate,
		TechnologyStack: models.TechnologyStack{
			Languages: []string{"Go"},
		},
		AttachedFile: &models.AttachedFile{
			Name: "assignment.pdf",
			Size: 300 * 1024,
			MIME: "application/pdf",
		},
	}
}

func TestValidateOk(t *testing.T) {
	if err := Validate(validSpec()); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}
}

func TestValidateMissingFields(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.TaskSpecification)
		wantField string
		wantCode  string
	}{
		{
			name:      "no category",
			mutate:    func(s *models.TaskSpecification) { s.Category = "" },
			wantField: "category",
			wantCode:  CodeMissingField,
		},
		{
			name:      "no academic level",
			mutate:    func(s *models.TaskSpecification) { s.AcademicLevel = "" },
			wantField: "academic_level",
			wantCode:  CodeMissingField,
		},
		{
			name:      "no deadline",
			mutate:    func(s *models.TaskSpecification) { s.Deadline = time.Time{} },
			wantField: "deadline",
			wantCode:  CodeMissingField,
		},
		{
			name: "no complexity and nothing to infer it from",
			mutate: func(s *models.TaskSpecification) {
				s.Category = models.CategoryResearch
				s.PageCount = 12
				s.Complexity = ""
				s.TechnologyStack = models.TechnologyStack{}
			},
			wantField: "complexity",
			wantCode:  CodeMissingField,
		},
		{
			name: "coding category without languages",
			mutate: func(s *models.TaskSpecification) {
				s.TechnologyStack.Languages = nil
			},
			wantField: "technology_stack.languages",
			wantCode:  CodeMissingField,
		},
		{
			name: "research category without page count",
			mutate: func(s *models.TaskSpecification) {
				s.Category = models.CategoryResearch
				s.PageCount = 0
			},
			wantField: "page_count",
			wantCode:  CodeMissingField,
		},
		{
			name: "research category with negative page count",
			mutate: func(s *models.TaskSpecification) {
				s.Category = models.CategoryResearch
				s.PageCount = -3
			},
			wantField: "page_count",
			wantCode:  CodeMissingField,
		},
		{
			name: "group work of one",
			mutate: func(s *models.TaskSpecification) {
				s.WorkType = models.WorkGroup
				s.GroupSize = 1
			},
			wantField: "group_size",
			wantCode:  CodeInconsistentField,
		},
		{
			name:      "no attached file",
			mutate:    func(s *models.TaskSpecification) { s.AttachedFile = nil },
			wantField: "attached_file",
			wantCode:  CodeMissingField,
		},
		{
			name: "oversized file",
			mutate: func(s *models.TaskSpecification) {
				s.AttachedFile.Size = MaxFileSize + 1
			},
			wantField: "attached_file",
			wantCode:  CodeFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)

			err := Validate(spec)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, verr.Field)
			}
			if verr.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, verr.Code)
			}
		})
	}
}

func TestValidateComplexityInferred(t *testing.T) {
	spec := validSpec()
	spec.Complexity = ""

	// one language is enough to infer a complexity
	if err := Validate(spec); err != nil {
		t.Fatalf("complexity should be inferable from the tech stack: %v", err)
	}
}

func TestValidateGroupWork(t *testing.T) {
	spec := validSpec()
	spec.WorkType = models.WorkGroup
	spec.GroupSize = 4

	if err := Validate(spec); err != nil {
		t.Fatalf("expected valid group spec, got %v", err)
	}
}

func TestValidateFileAtLimit(t *testing.T) {
	spec := validSpec()
	spec.AttachedFile.Size = MaxFileSize

	if err := Validate(spec); err != nil {
		t.Fatalf("a file of exactly the limit is allowed, got %v", err)
	}
}
