package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codeai-platform/task-engine/internal/models"
	"github.com/codeai-platform/task-engine/internal/notify"
	"github.com/codeai-platform/task-engine/internal/pricing"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

// fakeRepo is a mutex-guarded in-memory Repository.
type fakeRepo struct {
	mu        sync.Mutex
	tasks     map[string]*models.Task
	createErr error
	updateErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tasks: make(map[string]*models.Task)}
}

func (r *fakeRepo) CreateTask(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	copied := *task
	r.tasks[task.ID] = &copied
	return nil
}

func (r *fakeRepo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

func (r *fakeRepo) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, at time.Time) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	task, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	task.Status = status
	task.UpdatedAt = at
	copied := *task
	return &copied, nil
}

func (r *fakeRepo) SetAISuggestion(ctx context.Context, id, price string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	task.Breakdown.AISuggestedPrice = price
	return nil
}

func (r *fakeRepo) SetContentCheck(ctx context.Context, id string, check models.ContentCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	task.Content = &check
	return nil
}

func (r *fakeRepo) ListTasks(ctx context.Context, filters models.ListFilters) ([]*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Task
	for _, task := range r.tasks {
		if filters.OwnerID != "" && task.OwnerID != filters.OwnerID {
			continue
		}
		if filters.Status != "" && task.Status != filters.Status {
			continue
		}
		copied := *task
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeRepo) GetPrincipalByAPIKey(ctx context.Context, apiKey string) (*models.Principal, error) {
	return nil, nil
}

func (r *fakeRepo) UpdatePrincipalLastUsed(ctx context.Context, apiKey string) error { return nil }
func (r *fakeRepo) Ping(ctx context.Context) error                                   { return nil }
func (r *fakeRepo) Close() error                                                     { return nil }

// fakeAdvisor simulates the LLM boundary. With block set, calls hang until
// the bounded context expires — the advisor-timeout scenario.
type fakeAdvisor struct {
	price    string
	priceErr error
	check    models.ContentCheck
	checkErr error
	block    bool
}

func (a *fakeAdvisor) Suggest(ctx context.Context, spec *models.TaskSpecification) (string, error) {
	if a.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return a.price, a.priceErr
}

func (a *fakeAdvisor) CheckContent(ctx context.Context, text string, category models.Category) (models.ContentCheck, error) {
	if a.block {
		<-ctx.Done()
		return models.ContentCheck{}, ctx.Err()
	}
	return a.check, a.checkErr
}

// fakeNotifier records published events in order.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.TaskEvent
}

func (n *fakeNotifier) Publish(ev notify.TaskEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *fakeNotifier) all() []notify.TaskEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.TaskEvent(nil), n.events...)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

var (
	student = &models.Principal{ID: "student-1", Name: "Ama", IsActive: true}
	other   = &models.Principal{ID: "student-2", Name: "Kofi", IsActive: true}
	admin   = &models.Principal{ID: "admin-1", Name: "Ops", IsAdmin: true, IsActive: true}
)

func newTestManager(repo *fakeRepo, adv PriceAdvisor, n Notifier) *TaskManager {
	m := NewManager(repo, pricing.NewEngine(pricing.DefaultTable()), adv, n, 100*time.Millisecond)
	m.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return m
}

// ---------------------------------------------------------------------------
// Submit
// ---------------------------------------------------------------------------

func TestSubmitCreatesTask(t *testing.T) {
	repo := newFakeRepo()
	adv := &fakeAdvisor{
		price: "GHS 600.00",
		check: models.ContentCheck{Matches: true, Confidence: "high"},
	}
	notifier := &fakeNotifier{}
	m := newTestManager(repo, adv, notifier)

	result, err := m.Submit(context.Background(), validSpec(), student)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if result.Task == nil || result.Task.ID == "" {
		t.Fatal("expected a created task with an id")
	}
	if result.Task.Status != models.StatusSubmitted {
		t.Errorf("expected status submitted, got %s", result.Task.Status)
	}
	if result.Task.OwnerID != student.ID {
		t.Errorf("expected owner %s, got %s", student.ID, result.Task.OwnerID)
	}
	if result.Breakdown.FinalPrice <= 0 {
		t.Errorf("expected a positive final price, got %d", result.Breakdown.FinalPrice)
	}
	if result.Breakdown.AISuggestedPrice != "GHS 600.00" {
		t.Errorf("expected AI suggestion in breakdown, got %q", result.Breakdown.AISuggestedPrice)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", result.Warnings)
	}

	// the suggestion was backfilled onto the stored record
	stored, _ := repo.GetTask(context.Background(), result.Task.ID)
	if stored == nil {
		t.Fatal("task not persisted")
	}
	if stored.Breakdown.AISuggestedPrice != "GHS 600.00" {
		t.Errorf("expected stored suggestion, got %q", stored.Breakdown.AISuggestedPrice)
	}

	events := notifier.all()
	if len(events) != 1 || events[0].Type != notify.EventCreated {
		t.Fatalf("expected one created event, got %+v", events)
	}
}

// Simulating an advisor that never answers inside its budget must still
// yield a created task whose breakdown lacks the AI suggestion.
func TestSubmitAdvisorTimeoutNonBlocking(t *testing.T) {
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	m := newTestManager(repo, &fakeAdvisor{block: true}, notifier)

	start := time.Now()
	result, err := m.Submit(context.Background(), validSpec(), student)
	if err != nil {
		t.Fatalf("Submit must not fail on advisor timeout: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Submit blocked too long on the advisor: %v", elapsed)
	}

	if result.Task == nil {
		t.Fatal("expected a created task")
	}
	if result.Breakdown.AISuggestedPrice != "" {
		t.Errorf("expected no AI suggestion, got %q", result.Breakdown.AISuggestedPrice)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected advisory warnings")
	}

	stored, _ := repo.GetTask(context.Background(), result.Task.ID)
	if stored == nil {
		t.Fatal("task not persisted despite advisor timeout")
	}
}

func TestSubmitWithoutAdvisor(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo, nil, &fakeNotifier{})

	result, err := m.Submit(context.Background(), validSpec(), student)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Breakdown.AISuggestedPrice != "" || result.Content != nil {
		t.Error("expected no advisory results without an advisor")
	}
	if len(result.Warnings) != 0 {
		t.Errorf("a disabled advisor is not a warning, got %v", result.Warnings)
	}
}

func TestSubmitContentMismatchWarns(t *testing.T) {
	repo := newFakeRepo()
	adv := &fakeAdvisor{
		price: "GHS 300.00",
		check: models.ContentCheck{Matches: false, Confidence: "low"},
	}
	m := newTestManager(repo, adv, &fakeNotifier{})

	result, err := m.Submit(context.Background(), validSpec(), student)
	if err != nil {
		t.Fatalf("a content mismatch must never fail the submission: %v", err)
	}
	if result.Content == nil || result.Content.Matches {
		t.Fatalf("expected a mismatching content check, got %+v", result.Content)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a non-blocking warning for the mismatch")
	}
}

func TestSubmitInvalidSpecNotPersisted(t *testing.T) {
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	m := newTestManager(repo, nil, notifier)

	spec := validSpec()
	spec.AttachedFile = nil

	if _, err := m.Submit(context.Background(), spec, student); err == nil {
		t.Fatal("expected validation error")
	}
	if len(repo.tasks) != 0 {
		t.Error("invalid submission must not reach the store")
	}
	if len(notifier.all()) != 0 {
		t.Error("invalid submission must not publish events")
	}
}

func TestSubmitStoreErrorSurfaces(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr = errors.New("connection refused")
	notifier := &fakeNotifier{}
	m := newTestManager(repo, nil, notifier)

	if _, err := m.Submit(context.Background(), validSpec(), student); err == nil {
		t.Fatal("store errors must surface to the caller")
	}
	if len(notifier.all()) != 0 {
		t.Error("failed create must not publish events")
	}
}

// ---------------------------------------------------------------------------
// Quote
// ---------------------------------------------------------------------------

func TestQuoteDoesNotPersist(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(repo, &fakeAdvisor{price: "GHS 500.00"}, &fakeNotifier{})

	spec := validSpec()
	spec.AttachedFile = nil // no file needed at the review step

	result, err := m.Quote(context.Background(), spec)
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if result.Task != nil {
		t.Error("a quote must not create a task")
	}
	if result.Breakdown.FinalPrice <= 0 {
		t.Errorf("expected a priced quote, got %d", result.Breakdown.FinalPrice)
	}
	if result.Breakdown.AISuggestedPrice != "GHS 500.00" {
		t.Errorf("expected AI suggestion on the quote, got %q", result.Breakdown.AISuggestedPrice)
	}
	if len(repo.tasks) != 0 {
		t.Error("quote persisted a task")
	}
}

func TestQuoteRequiresCoreFields(t *testing.T) {
	m := newTestManager(newFakeRepo(), nil, &fakeNotifier{})

	spec := validSpec()
	spec.Deadline = time.Time{}

	if _, err := m.Quote(context.Background(), spec); err == nil {
		t.Fatal("expected validation error for missing deadline")
	}
}

// ---------------------------------------------------------------------------
// SetStatus
// ---------------------------------------------------------------------------

func submitOne(t *testing.T, m *TaskManager, owner *models.Principal) *models.Task {
	t.Helper()
	result, err := m.Submit(context.Background(), validSpec(), owner)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return result.Task
}

func TestSetStatusRequiresAdmin(t *testing.T) {
	m := newTestManager(newFakeRepo(), nil, &fakeNotifier{})
	task := submitOne(t, m, student)

	// not even the owner may change status
	if _, err := m.SetStatus(context.Background(), task.ID, models.StatusProcessing, student); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := m.SetStatus(context.Background(), task.ID, models.StatusProcessing, nil); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for nil principal, got %v", err)
	}
}

func TestSetStatusByAdmin(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newTestManager(newFakeRepo(), nil, notifier)
	task := submitOne(t, m, student)

	updated, err := m.SetStatus(context.Background(), task.ID, models.StatusProcessing, admin)
	if err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if updated.Status != models.StatusProcessing {
		t.Errorf("expected processing, got %s", updated.Status)
	}

	events := notifier.all()
	if len(events) != 2 {
		t.Fatalf("expected created + status events, got %d", len(events))
	}
	if events[1].Type != notify.EventStatus || events[1].Task.Status != models.StatusProcessing {
		t.Errorf("unexpected status event %+v", events[1])
	}
}

func TestSetStatusUnknownTask(t *testing.T) {
	m := newTestManager(newFakeRepo(), nil, &fakeNotifier{})

	if _, err := m.SetStatus(context.Background(), "nope", models.StatusDone, admin); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSetStatusRejectsUnknownValue(t *testing.T) {
	m := newTestManager(newFakeRepo(), nil, &fakeNotifier{})
	task := submitOne(t, m, student)

	if _, err := m.SetStatus(context.Background(), task.ID, "archived", admin); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus, got %v", err)
	}
}

// Re-setting the current status is a no-op, not an error, and admins may set
// any of the three values in any order.
func TestSetStatusUnconstrainedTransitions(t *testing.T) {
	m := newTestManager(newFakeRepo(), nil, &fakeNotifier{})
	task := submitOne(t, m, student)

	sequence := []models.TaskStatus{
		models.StatusSubmitted, // identity transition
		models.StatusDone,      // skipping processing is allowed at the data layer
		models.StatusProcessing,
		models.StatusProcessing, // identity again
		models.StatusDone,
	}

	for _, status := range sequence {
		updated, err := m.SetStatus(context.Background(), task.ID, status, admin)
		if err != nil {
			t.Fatalf("SetStatus(%s) failed: %v", status, err)
		}
		if updated.Status != status {
			t.Fatalf("expected %s, got %s", status, updated.Status)
		}
	}
}

// ---------------------------------------------------------------------------
// Get / List scoping
// ---------------------------------------------------------------------------

func TestGetAuthorization(t *testing.T) {
	m := newTestManager(newFakeRepo(), nil, &fakeNotifier{})
	task := submitOne(t, m, student)

	if _, err := m.Get(context.Background(), task.ID, student); err != nil {
		t.Errorf("owner must see its task: %v", err)
	}
	if _, err := m.Get(context.Background(), task.ID, admin); err != nil {
		t.Errorf("admin must see every task: %v", err)
	}
	if _, err := m.Get(context.Background(), task.ID, other); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized for a different owner, got %v", err)
	}
	if _, err := m.Get(context.Background(), "nope", admin); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestListScoping(t *testing.T) {
	m := newTestManager(newFakeRepo(), nil, &fakeNotifier{})
	submitOne(t, m, student)
	submitOne(t, m, student)
	submitOne(t, m, other)

	mine, err := m.List(context.Background(), student, models.ListFilters{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 tasks for student, got %d", len(mine))
	}
	for _, task := range mine {
		if task.OwnerID != student.ID {
			t.Errorf("student list leaked task of %s", task.OwnerID)
		}
	}

	// a student cannot widen its scope via filters
	sneaky, _ := m.List(context.Background(), student, models.ListFilters{OwnerID: other.ID})
	for _, task := range sneaky {
		if task.OwnerID != student.ID {
			t.Errorf("filter override leaked task of %s", task.OwnerID)
		}
	}

	everything, err := m.List(context.Background(), admin, models.ListFilters{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(everything) != 3 {
		t.Errorf("expected 3 tasks for admin, got %d", len(everything))
	}
}

// Snapshot feeds the replay frame of a (re)connecting viewer, so its scoping
// must mirror the subscription scopes.
func TestSnapshotScoping(t *testing.T) {
	m := newTestManager(newFakeRepo(), nil, &fakeNotifier{})
	submitOne(t, m, student)
	submitOne(t, m, student)
	submitOne(t, m, other)

	owned, err := m.Snapshot(context.Background(), notify.Scope{OwnerID: student.ID})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(owned) != 2 {
		t.Errorf("expected 2 tasks in the owner snapshot, got %d", len(owned))
	}
	for _, task := range owned {
		if task.OwnerID != student.ID {
			t.Errorf("owner snapshot leaked task of %s", task.OwnerID)
		}
	}

	all, err := m.Snapshot(context.Background(), notify.Scope{All: true})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 tasks in the all snapshot, got %d", len(all))
	}
}
