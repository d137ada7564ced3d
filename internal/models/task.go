package models

import (
	"time"
)

// TaskStatus represents the fulfillment state of a task
type TaskStatus string

const (
	StatusSubmitted  TaskStatus = "submitted"
	StatusProcessing TaskStatus = "processing"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether the status is one of the three known values
func (s TaskStatus) Valid() bool {
	return s == StatusSubmitted || s == StatusProcessing || s == StatusDone
}

// IsTerminal returns true if no further work is expected
func (s TaskStatus) IsTerminal() bool {
	return s == StatusDone
}

// Modifier is one applied pricing adjustment. Modifiers are kept as an
// ordered slice so a breakdown serializes the same way every time.
type Modifier struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// PriceBreakdown is the itemized output of the pricing rule engine.
// AISuggestedPrice is an opaque string from the advisor; it is never
// substituted into FinalPrice.
type PriceBreakdown struct {
	BasePrice          float64    `json:"base_price"`
	Modifiers          []Modifier `json:"modifiers"`
	Urgency            Urgency    `json:"urgency"`
	Subtotal           float64    `json:"subtotal"`
	DiscountMultiplier float64    `json:"discount_multiplier"`
	FinalPrice         int64      `json:"final_price"`
	Currency           string     `json:"currency"`
	AISuggestedPrice   string     `json:"ai_suggested_price,omitempty"`
}

// ContentCheck is the advisory result of matching the extracted document text
// against the declared category. Skipped is true when there was too little
// text to classify.
type ContentCheck struct {
	Matches    bool   `json:"matches"`
	Confidence string `json:"confidence,omitempty"` // "high" or "low"
	Skipped    bool   `json:"skipped,omitempty"`
}

// Task is the persisted record of a submission. The specification and price
// breakdown are snapshots taken at creation; only Status (and the
// late-arriving AI suggestion inside the breakdown) change afterwards.
type Task struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Spec      TaskSpecification `json:"spec"`
	Breakdown PriceBreakdown    `json:"breakdown"`
	Status    TaskStatus        `json:"status"`
	Content   *ContentCheck     `json:"content_check,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ListFilters defines filters for listing tasks
type ListFilters struct {
	OwnerID string
	Status  TaskStatus
	Limit   int
	Offset  int
}
