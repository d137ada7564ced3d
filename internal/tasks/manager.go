// Package tasks contains the submission validator and the lifecycle manager
// that orchestrates pricing, persistence, advisory calls and notifications.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeai-platform/task-engine/internal/models"
	"github.com/codeai-platform/task-engine/internal/notify"
	"github.com/codeai-platform/task-engine/internal/pricing"
	"github.com/codeai-platform/task-engine/internal/storage"
)

// Common errors
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrNotAuthorized = errors.New("not authorized")
	ErrBadStatus     = errors.New("unknown status value")
)

// PriceAdvisor is the boundary to the AI advisory services. Both calls are
// advisory: any failure is logged and the submission proceeds without them.
type PriceAdvisor interface {
	Suggest(ctx context.Context, spec *models.TaskSpecification) (string, error)
	CheckContent(ctx context.Context, text string, category models.Category) (models.ContentCheck, error)
}

// Notifier receives every committed create and status change for fan-out to
// subscribed viewers.
type Notifier interface {
	Publish(event notify.TaskEvent)
}

// Manager defines the interface for task lifecycle management
type Manager interface {
	Submit(ctx context.Context, spec *models.TaskSpecification, owner *models.Principal) (*SubmitResult, error)
	Quote(ctx context.Context, spec *models.TaskSpecification) (*SubmitResult, error)
	Get(ctx context.Context, id string, principal *models.Principal) (*models.Task, error)
	List(ctx context.Context, principal *models.Principal, filters models.ListFilters) ([]*models.Task, error)
	SetStatus(ctx context.Context, id string, status models.TaskStatus, principal *models.Principal) (*models.Task, error)
	Snapshot(ctx context.Context, scope notify.Scope) ([]*models.Task, error)
	Ping(ctx context.Context) error
}

// SubmitResult is what a submission (or quote) returns to the caller. Warnings
// carry advisory-service failures; they never indicate a failed submission.
type SubmitResult struct {
	Task      *models.Task          `json:"task,omitempty"`
	Breakdown models.PriceBreakdown `json:"breakdown"`
	Content   *models.ContentCheck  `json:"content_check,omitempty"`
	Warnings  []string              `json:"warnings,omitempty"`
}

// TaskManager implements Manager over a repository, the pricing engine, the
// advisory boundary and the lifecycle notifier.
type TaskManager struct {
	repo           storage.Repository
	engine         *pricing.Engine
	advisor        PriceAdvisor
	notifier       Notifier
	advisorTimeout time.Duration
	now            func() time.Time // swappable for tests
}

// NewManager creates a new TaskManager. advisor may be nil, in which case
// submissions carry no AI suggestion or content check.
func NewManager(
	repo storage.Repository,
	engine *pricing.Engine,
	advisor PriceAdvisor,
	notifier Notifier,
	advisorTimeout time.Duration,
) *TaskManager {
	if advisorTimeout <= 0 {
		advisorTimeout = 15 * time.Second
	}
	return &TaskManager{
		repo:           repo,
		engine:         engine,
		advisor:        advisor,
		notifier:       notifier,
		advisorTimeout: advisorTimeout,
		now:            time.Now,
	}
}

// Ping checks that the manager's backing store is reachable.
func (m *TaskManager) Ping(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

type suggestReply struct {
	price string
	err   error
}

type contentReply struct {
	check models.ContentCheck
	err   error
}

// Submit validates, prices and persists a new task. The advisory calls start
// before pricing and run in parallel with it; the store write never waits on
// them. Their results, when they arrive within the advisor timeout, enrich
// the response and are backfilled onto the stored record.
func (m *TaskManager) Submit(ctx context.Context, spec *models.TaskSpecification, owner *models.Principal) (*SubmitResult, error) {
	if owner == nil {
		return nil, ErrNotAuthorized
	}
	if err := Validate(spec); err != nil {
		return nil, err
	}

	advisorCtx, cancel := context.WithTimeout(ctx, m.advisorTimeout)
	defer cancel()
	suggestCh, contentCh := m.startAdvisory(advisorCtx, spec)

	now := m.now().UTC()
	breakdown := m.engine.Price(spec, now)

	task := &models.Task{
		ID:        uuid.New().String(),
		OwnerID:   owner.ID,
		Spec:      *spec,
		Breakdown: breakdown,
		Status:    models.StatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Store errors are fatal to the submission and retryable by the caller.
	if err := m.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to persist task: %w", err)
	}

	slog.Info("task submitted",
		"task_id", task.ID,
		"owner", owner.ID,
		"category", spec.Category,
		"final_price", breakdown.FinalPrice,
	)

	m.publish(notify.EventCreated, task)

	result := &SubmitResult{Task: task, Breakdown: breakdown}
	m.collectAdvisory(ctx, result, task, suggestCh, contentCh)

	return result, nil
}

// Quote prices a specification without persisting anything. Used by the
// review step before the student commits a submission; the attached-file
// requirement does not apply yet.
func (m *TaskManager) Quote(ctx context.Context, spec *models.TaskSpecification) (*SubmitResult, error) {
	switch {
	case spec == nil || spec.Category == "":
		return nil, missing("category")
	case spec.AcademicLevel == "":
		return nil, missing("academic_level")
	case spec.Deadline.IsZero():
		return nil, missing("deadline")
	}

	advisorCtx, cancel := context.WithTimeout(ctx, m.advisorTimeout)
	defer cancel()
	suggestCh, contentCh := m.startAdvisory(advisorCtx, spec)

	result := &SubmitResult{Breakdown: m.engine.Price(spec, m.now().UTC())}
	m.collectAdvisory(ctx, result, nil, suggestCh, contentCh)
	return result, nil
}

// startAdvisory launches the AI price suggestion and the content check in
// parallel. Each makes exactly one attempt; the returned channels always
// deliver once the bounded context expires.
func (m *TaskManager) startAdvisory(ctx context.Context, spec *models.TaskSpecification) (<-chan suggestReply, <-chan contentReply) {
	if m.advisor == nil {
		return nil, nil
	}

	suggestCh := make(chan suggestReply, 1)
	go func() {
		price, err := m.advisor.Suggest(ctx, spec)
		suggestCh <- suggestReply{price: price, err: err}
	}()

	contentCh := make(chan contentReply, 1)
	go func() {
		check, err := m.advisor.CheckContent(ctx, spec.ExtractedText, spec.Category)
		contentCh <- contentReply{check: check, err: err}
	}()

	return suggestCh, contentCh
}

// collectAdvisory waits (bounded by the advisor context those goroutines
// carry) for the advisory results and folds them into the result. When task
// is non-nil the successful results are also backfilled onto the stored
// record. Advisory failures become warnings, never errors.
func (m *TaskManager) collectAdvisory(ctx context.Context, result *SubmitResult, task *models.Task, suggestCh <-chan suggestReply, contentCh <-chan contentReply) {
	if suggestCh == nil {
		return
	}

	deadline := time.After(m.advisorTimeout + time.Second)

	for suggestCh != nil || contentCh != nil {
		select {
		case reply := <-suggestCh:
			suggestCh = nil
			if reply.err != nil {
				slog.Warn("price advisor unavailable", "error", reply.err)
				result.Warnings = append(result.Warnings, "AI price suggestion is unavailable")
				continue
			}
			result.Breakdown.AISuggestedPrice = reply.price
			if task != nil {
				task.Breakdown.AISuggestedPrice = reply.price
				if err := m.repo.SetAISuggestion(ctx, task.ID, reply.price); err != nil {
					slog.Warn("failed to store ai suggestion", "task_id", task.ID, "error", err)
				}
			}

		case reply := <-contentCh:
			contentCh = nil
			if reply.err != nil {
				slog.Warn("content validator unavailable", "error", reply.err)
				result.Warnings = append(result.Warnings, "document content could not be checked")
				continue
			}
			check := reply.check
			result.Content = &check
			if !check.Skipped && !check.Matches {
				result.Warnings = append(result.Warnings,
					"the uploaded document may not match the selected category")
			}
			if task != nil {
				task.Content = &check
				if err := m.repo.SetContentCheck(ctx, task.ID, check); err != nil {
					slog.Warn("failed to store content check", "task_id", task.ID, "error", err)
				}
			}

		case <-deadline:
			// Should not happen: the goroutines are bounded by their own
			// context. Abandon whatever is still pending.
			slog.Warn("advisory collection timed out")
			return
		}
	}
}

// Get returns a task visible to the principal: its owner, or any admin.
func (m *TaskManager) Get(ctx context.Context, id string, principal *models.Principal) (*models.Task, error) {
	task, err := m.repo.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	if principal == nil || (!principal.IsAdmin && task.OwnerID != principal.ID) {
		return nil, ErrNotAuthorized
	}
	return task, nil
}

// List returns tasks scoped to the principal's visibility. Students always
// see only their own tasks regardless of the filters they pass; admins see
// everything unless they filter by owner.
func (m *TaskManager) List(ctx context.Context, principal *models.Principal, filters models.ListFilters) ([]*models.Task, error) {
	if principal == nil {
		return nil, ErrNotAuthorized
	}
	if !principal.IsAdmin {
		filters.OwnerID = principal.ID
	}
	list, err := m.repo.ListTasks(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return list, nil
}

// SetStatus sets a task's status. Only an administrator may call this. The
// store accepts any of the three values in any order (last write wins, no
// version check); re-setting the current status is a no-op, not an error.
func (m *TaskManager) SetStatus(ctx context.Context, id string, status models.TaskStatus, principal *models.Principal) (*models.Task, error) {
	if principal == nil || !principal.IsAdmin {
		return nil, ErrNotAuthorized
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadStatus, status)
	}

	task, err := m.repo.UpdateTaskStatus(ctx, id, status, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}

	slog.Info("task status updated",
		"task_id", id,
		"status", status,
		"admin", principal.ID,
	)

	m.publish(notify.EventStatus, task)
	return task, nil
}

// Snapshot returns the current task set visible to a subscription scope.
// Used by the notifier to replay state to a (re)connecting viewer.
func (m *TaskManager) Snapshot(ctx context.Context, scope notify.Scope) ([]*models.Task, error) {
	filters := models.ListFilters{}
	if !scope.All {
		filters.OwnerID = scope.OwnerID
	}
	return m.repo.ListTasks(ctx, filters)
}

func (m *TaskManager) publish(eventType notify.EventType, task *models.Task) {
	if m.notifier == nil {
		return
	}
	snapshot := *task
	m.notifier.Publish(notify.TaskEvent{Type: eventType, Task: &snapshot})
}
