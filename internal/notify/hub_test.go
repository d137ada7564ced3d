package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/codeai-platform/task-engine/internal/models"
)

func event(eventType EventType, taskID, ownerID string, status models.TaskStatus) TaskEvent {
	return TaskEvent{
		Type: eventType,
		Task: &models.Task{ID: taskID, OwnerID: ownerID, Status: status},
	}
}

func drain(t *testing.T, sub *Subscriber, want int) []TaskEvent {
	t.Helper()
	var got []TaskEvent
	for len(got) < want {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("stream closed after %d of %d events", len(got), want)
			}
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d events", len(got), want)
		}
	}
	return got
}

func assertEmpty(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
	}
}

func TestScopeCovers(t *testing.T) {
	owned := Scope{OwnerID: "student-1"}
	if !owned.Covers("student-1") {
		t.Error("scope must cover its own owner")
	}
	if owned.Covers("student-2") {
		t.Error("scope must not cover another owner")
	}

	all := Scope{All: true}
	if !all.Covers("student-1") || !all.Covers("student-2") {
		t.Error("the all scope must cover every owner")
	}
}

// A status change is visible to the task's owner and to admin-scoped viewers,
// and to nobody else.
func TestPublishScoping(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	owner := hub.Subscribe(Scope{OwnerID: "student-1"})
	stranger := hub.Subscribe(Scope{OwnerID: "student-2"})
	watcher := hub.Subscribe(Scope{All: true})

	hub.Publish(event(EventStatus, "t1", "student-1", models.StatusProcessing))

	if got := drain(t, owner, 1); got[0].Task.ID != "t1" {
		t.Errorf("owner received wrong task %s", got[0].Task.ID)
	}
	if got := drain(t, watcher, 1); got[0].Type != EventStatus {
		t.Errorf("watcher received wrong type %s", got[0].Type)
	}
	assertEmpty(t, stranger)
}

func TestPublishPerTaskOrder(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()

	sub := hub.Subscribe(Scope{OwnerID: "student-1"})

	hub.Publish(event(EventCreated, "t1", "student-1", models.StatusSubmitted))
	hub.Publish(event(EventStatus, "t1", "student-1", models.StatusProcessing))
	hub.Publish(event(EventStatus, "t1", "student-1", models.StatusDone))

	got := drain(t, sub, 3)
	wantStatuses := []models.TaskStatus{models.StatusSubmitted, models.StatusProcessing, models.StatusDone}
	for i, want := range wantStatuses {
		if got[i].Task.Status != want {
			t.Errorf("event %d: expected status %s, got %s", i, want, got[i].Task.Status)
		}
	}
}

func TestPublishNilTaskIgnored(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	sub := hub.Subscribe(Scope{All: true})
	hub.Publish(TaskEvent{Type: EventCreated})
	assertEmpty(t, sub)
}

// A subscriber that stops reading gets its stream torn down instead of
// silently losing individual events.
func TestSlowSubscriberDisconnected(t *testing.T) {
	hub := NewHub(2)
	defer hub.Close()

	slow := hub.Subscribe(Scope{OwnerID: "student-1"})

	for i := 0; i < 3; i++ {
		hub.Publish(event(EventStatus, fmt.Sprintf("t%d", i), "student-1", models.StatusProcessing))
	}

	// buffer depth 2: the third publish kills the subscriber
	drained := 0
	for range slow.Events() {
		drained++
	}
	if drained != 2 {
		t.Errorf("expected the 2 buffered events before close, got %d", drained)
	}

	// teardown leaves the slot registered until the next sweep
	if hub.Len() != 1 {
		t.Fatalf("expected the dead subscriber to stay registered, hub has %d", hub.Len())
	}
	if pruned := hub.sweep(); pruned != 1 {
		t.Errorf("expected the sweep to collect 1 subscriber, got %d", pruned)
	}
	if hub.Len() != 0 {
		t.Errorf("expected an empty hub after the sweep, got %d", hub.Len())
	}
}

func TestSweepKeepsLiveSubscribers(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	live := hub.Subscribe(Scope{All: true})
	if pruned := hub.sweep(); pruned != 0 {
		t.Errorf("expected nothing to prune, got %d", pruned)
	}
	if hub.Len() != 1 {
		t.Fatalf("sweep removed a live subscriber")
	}

	hub.Publish(event(EventCreated, "t1", "student-1", models.StatusSubmitted))
	drain(t, live, 1)
}

func TestUnsubscribe(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	sub := hub.Subscribe(Scope{All: true})
	if hub.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Len())
	}

	hub.Unsubscribe(sub)
	if hub.Len() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.Len())
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("expected a closed stream after unsubscribe")
	}

	// publishing afterwards must not panic or deliver
	hub.Publish(event(EventCreated, "t1", "student-1", models.StatusSubmitted))

	// double unsubscribe is harmless
	hub.Unsubscribe(sub)
}

func TestCloseDisconnectsAll(t *testing.T) {
	hub := NewHub(8)

	a := hub.Subscribe(Scope{All: true})
	b := hub.Subscribe(Scope{OwnerID: "student-1"})

	hub.Close()

	if _, ok := <-a.Events(); ok {
		t.Error("expected a closed")
	}
	if _, ok := <-b.Events(); ok {
		t.Error("expected b closed")
	}
	if hub.Len() != 0 {
		t.Errorf("expected empty hub, got %d", hub.Len())
	}
}
