package storage

import (
	"context"
	"time"

	"github.com/codeai-platform/task-engine/internal/models"
)

// Repository defines the interface for task and principal persistence.
// Lookup methods return (nil, nil) when the record does not exist; any
// returned error is a store-level failure the caller may retry.
type Repository interface {
	// Tasks
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, at time.Time) (*models.Task, error)
	SetAISuggestion(ctx context.Context, id, price string) error
	SetContentCheck(ctx context.Context, id string, check models.ContentCheck) error
	ListTasks(ctx context.Context, filters models.ListFilters) ([]*models.Task, error)

	// Principals
	GetPrincipalByAPIKey(ctx context.Context, apiKey string) (*models.Principal, error)
	UpdatePrincipalLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
