package events

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wireMessage mirrors the shared envelope used across this codebase's
// websocket traffic: a type tag, a free-form data payload, and a
// timestamp. Kept transport-agnostic (no gorilla/websocket import) at the
// type level so it could, in principle, be reused by a non-websocket
// transport.
type wireMessage struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// WSSink streams events as JSON over a persistent websocket connection to
// a telemetry collector. It is best-effort: connection failures are
// swallowed, never returned to the Orchestrator, because the event sink is
// a pure observer and must never affect the update outcome.
type WSSink struct {
	url string

	mu         sync.Mutex
	conn       *websocket.Conn
	lastDialAt time.Time
	dialBackoff time.Duration
}

// NewWSSink builds a sink that lazily dials url on the first Publish call
// and reconnects lazily (with backoff) after any write failure.
func NewWSSink(url string) *WSSink {
	return &WSSink{url: url, dialBackoff: time.Second}
}

func (s *WSSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if time.Since(s.lastDialAt) < s.dialBackoff {
			return
		}
		s.lastDialAt = time.Now()
		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			if s.dialBackoff < 30*time.Second {
				s.dialBackoff *= 2
			}
			return
		}
		s.conn = conn
		s.dialBackoff = time.Second
	}

	msg := wireMessage{Type: e.Name, Data: withRunID(e), Timestamp: time.Now()}
	if err := s.conn.WriteJSON(msg); err != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Close closes the underlying connection, if any.
func (s *WSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func withRunID(e Event) map[string]interface{} {
	if e.RunID == "" {
		return e.Data
	}
	out := make(map[string]interface{}, len(e.Data)+1)
	for k, v := range e.Data {
		out[k] = v
	}
	out["run_id"] = e.RunID
	return out
}
