package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/codeai-platform/task-engine/internal/models"
	"github.com/codeai-platform/task-engine/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WatchMessage is one frame on the watch stream. The first frame after
// connecting is always a snapshot of the viewer's visible task set; every
// later frame carries a single task event.
type WatchMessage struct {
	Type  string         `json:"type"` // snapshot, created, status, error
	Tasks []*models.Task `json:"tasks,omitempty"`
	Task  *models.Task   `json:"task,omitempty"`
	Error string         `json:"error,omitempty"`
}

// handleWatch is the subscription entrypoint. Students watch their own tasks;
// admins watch everything by passing ?scope=all. A reconnecting client gets
// the full snapshot again before deltas, which is what makes delivery
// at-least-once.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if principal == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	scope := notify.Scope{OwnerID: principal.ID}
	if r.URL.Query().Get("scope") == "all" {
		if !principal.IsAdmin {
			http.Error(w, "admin required for scope=all", http.StatusForbidden)
			return
		}
		scope = notify.Scope{All: true}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("watch connected", "principal", principal.ID, "all", scope.All)

	// Subscribe before taking the snapshot so no committed event can fall
	// between the two. An event already in the snapshot may arrive again as
	// a delta; duplicates are fine, gaps are not.
	sub := s.hub.Subscribe(scope)
	defer s.hub.Unsubscribe(sub)

	snapshot, err := s.taskManager.Snapshot(r.Context(), scope)
	if err != nil {
		slog.Error("failed to load watch snapshot", "error", err)
		s.sendWatchMessage(conn, WatchMessage{Type: "error", Error: "failed to load snapshot"})
		return
	}
	if snapshot == nil {
		snapshot = []*models.Task{}
	}

	if err := s.sendWatchMessage(conn, WatchMessage{Type: "snapshot", Tasks: snapshot}); err != nil {
		return
	}

	// Read loop: we expect no client frames, but reading is how a closed
	// connection is detected.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("watch read error", "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			slog.Info("watch disconnected", "principal", principal.ID)
			return

		case ev, ok := <-sub.Events():
			if !ok {
				// The hub dropped us (slow consumer or shutdown). The
				// client reconnects and replays the snapshot.
				s.sendWatchMessage(conn, WatchMessage{Type: "error", Error: "stream reset, reconnect"})
				slog.Warn("watch stream reset", "principal", principal.ID)
				return
			}
			if err := s.sendWatchMessage(conn, WatchMessage{Type: string(ev.Type), Task: ev.Task}); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendWatchMessage(conn *websocket.Conn, msg WatchMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal watch message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send watch message", "error", err)
		return err
	}
	return nil
}
