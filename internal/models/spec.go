package models

import (
	"time"
)

// Category is the declared kind of academic I.T. task.
type Category string

const (
	CategoryCoding           Category = "coding"
	CategoryWeb              Category = "web-development"
	CategoryDatabase         Category = "database"
	CategoryNetworking       Category = "networking"
	CategoryAIML             Category = "ai-ml"
	CategoryMobile           Category = "mobile"
	CategoryMiniProject      Category = "mini-project"
	CategoryFinalYearProject Category = "final-year-project"
	CategoryResearch         Category = "research"
)

// IsCodingStyle reports whether the category is priced and validated on the
// technology stack rather than page count.
func (c Category) IsCodingStyle() bool {
	switch c {
	case CategoryCoding, CategoryWeb, CategoryDatabase, CategoryNetworking,
		CategoryAIML, CategoryMobile, CategoryMiniProject, CategoryFinalYearProject:
		return true
	}
	return false
}

// IsResearchStyle reports whether the category requires a page count.
func (c Category) IsResearchStyle() bool {
	return c == CategoryResearch
}

// AcademicLevel is the institution level of the submitting student.
// Levels are ordered; Rank gives the pricing tier index.
type AcademicLevel string

const (
	Level100     AcademicLevel = "100-200"
	Level300     AcademicLevel = "300-400"
	LevelMasters AcademicLevel = "masters"
	LevelPhD     AcademicLevel = "phd"
)

// Rank returns the tier index for the level, 0..3. Unknown levels rank lowest.
func (l AcademicLevel) Rank() int {
	switch l {
	case Level300:
		return 1
	case LevelMasters:
		return 2
	case LevelPhD:
		return 3
	default:
		return 0
	}
}

// Complexity describes how involved the task is. It may be declared by the
// student or inferred from the technology selections.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityAdvanced Complexity = "advanced"
)

// Rank returns the ordering of the complexity, 0..3. Unknown values rank as
// simple so pricing never faults on an unmapped enum.
func (c Complexity) Rank() int {
	switch c {
	case ComplexityModerate:
		return 1
	case ComplexityComplex:
		return 2
	case ComplexityAdvanced:
		return 3
	default:
		return 0
	}
}

// Urgency is derived from the deadline at pricing time. It is never stored
// independently of the deadline, so a stored value cannot drift from it.
type Urgency string

const (
	UrgencyFlexible   Urgency = "flexible"
	UrgencyStandard   Urgency = "standard"
	UrgencyUrgent     Urgency = "urgent"
	UrgencyVeryUrgent Urgency = "very-urgent"
)

// UrgencyFromDeadline computes urgency from the distance between now and the
// deadline. A deadline already in the past counts as very urgent.
func UrgencyFromDeadline(deadline, now time.Time) Urgency {
	days := int(deadline.Sub(now).Hours() / 24)
	switch {
	case days <= 1:
		return UrgencyVeryUrgent
	case days <= 3:
		return UrgencyUrgent
	case days <= 7:
		return UrgencyStandard
	default:
		return UrgencyFlexible
	}
}

// WorkType distinguishes individual submissions from group work.
type WorkType string

const (
	WorkIndividual WorkType = "individual"
	WorkGroup      WorkType = "group"
)

// TechnologyStack holds the chosen languages, frameworks and databases.
// Cardinality drives per-item price modifiers.
type TechnologyStack struct {
	Languages  []string `json:"languages,omitempty"`
	Frameworks []string `json:"frameworks,omitempty"`
	Databases  []string `json:"databases,omitempty"`
}

// Size returns the total number of selected technology items.
func (t TechnologyStack) Size() int {
	return len(t.Languages) + len(t.Frameworks) + len(t.Databases)
}

// SpecialRequirements are flat-bonus add-ons selected by the student.
// ReferencingStyle is collected for the fulfillment team but carries no bonus.
type SpecialRequirements struct {
	HostingRequired  bool   `json:"hosting_required,omitempty"`
	UIDesignRequired bool   `json:"ui_design_required,omitempty"`
	PlagiarismCheck  bool   `json:"plagiarism_check,omitempty"`
	ReferencingStyle string `json:"referencing_style,omitempty"`
}

// AttachedFile is metadata for the uploaded document. Text extraction from the
// binary happens upstream; ExtractedText on the specification is best-effort
// and may be empty.
type AttachedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	MIME string `json:"mime_type"`
}

// TaskSpecification is the structured description of the work requested.
type TaskSpecification struct {
	Title         string        `json:"title,omitempty"`
	Category      Category      `json:"category"`
	AcademicLevel AcademicLevel `json:"academic_level"`
	Deadline      time.Time     `json:"deadline"`
	Complexity    Complexity    `json:"complexity,omitempty"`

	TechnologyStack TechnologyStack `json:"technology_stack"`
	PageCount       int             `json:"page_count,omitempty"`

	WorkType  WorkType `json:"work_type,omitempty"`
	GroupSize int      `json:"group_size,omitempty"`

	Special SpecialRequirements `json:"special_requirements"`

	AttachedFile  *AttachedFile `json:"attached_file,omitempty"`
	Description   string        `json:"description,omitempty"`
	ExtractedText string        `json:"extracted_text,omitempty"`
}

// EffectiveComplexity returns the declared complexity, or infers one from the
// size of the technology selection when none was declared.
func (s *TaskSpecification) EffectiveComplexity() Complexity {
	if s.Complexity != "" {
		return s.Complexity
	}
	switch n := s.TechnologyStack.Size(); {
	case n >= 6:
		return ComplexityAdvanced
	case n >= 4:
		return ComplexityComplex
	case n >= 2:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}
