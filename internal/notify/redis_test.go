package notify

import (
	"encoding/json"
	"testing"

	"github.com/codeai-platform/task-engine/internal/models"
)

func encode(t *testing.T, origin string, ev TaskEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(bridgeMessage{Origin: origin, Event: ev})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return payload
}

// The bridge must drop its own channel echo: local subscribers already saw
// the event via the hub, and republishing the echo would reorder a task's
// stream behind events published in between.
func TestBridgeDropsOwnEcho(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	bridge := &Bridge{hub: hub, origin: "instance-a"}
	sub := hub.Subscribe(Scope{OwnerID: "student-1"})

	hub.Publish(event(EventCreated, "t1", "student-1", models.StatusSubmitted))
	hub.Publish(event(EventStatus, "t1", "student-1", models.StatusDone))

	// the echo of the first publish arrives after newer local events
	bridge.handleMessage(encode(t, "instance-a",
		event(EventCreated, "t1", "student-1", models.StatusSubmitted)))

	got := drain(t, sub, 2)
	if got[0].Task.Status != models.StatusSubmitted || got[1].Task.Status != models.StatusDone {
		t.Fatalf("stream reordered: %s then %s", got[0].Task.Status, got[1].Task.Status)
	}
	assertEmpty(t, sub)
}

func TestBridgeRelaysRemoteEvents(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	bridge := &Bridge{hub: hub, origin: "instance-a"}
	sub := hub.Subscribe(Scope{OwnerID: "student-1"})

	bridge.handleMessage(encode(t, "instance-b",
		event(EventStatus, "t1", "student-1", models.StatusProcessing)))

	got := drain(t, sub, 1)
	if got[0].Type != EventStatus || got[0].Task.Status != models.StatusProcessing {
		t.Fatalf("unexpected relayed event %+v", got[0])
	}
}

func TestBridgeDiscardsMalformedPayload(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	bridge := &Bridge{hub: hub, origin: "instance-a"}
	sub := hub.Subscribe(Scope{All: true})

	bridge.handleMessage([]byte("not json"))
	assertEmpty(t, sub)
}
