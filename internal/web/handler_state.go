package web

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleState reports the session's state. A client without a session is
// idle; no session is created for it.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state := idleState()
	if orch, ok := s.existingSession(r); ok {
		state = orch.State()
	}
	s.writeJSON(w, http.StatusOK, state)
}

// handleStateEvents streams the session's state as SSE. Each change is sent
// as an "event: state" message carrying the state JSON; the first message is
// the current state.
func (s *Server) handleStateEvents(w http.ResponseWriter, r *http.Request) {
	orch := s.sessionFor(w, r)
	states, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("cannot clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-states:
			if !ok {
				if _, err := w.Write([]byte("event: done\ndata: {}\n\n")); err != nil {
					s.logger.Debug("write done event failed", "error", err)
				}
				_ = rc.Flush()
				return
			}
			if _, err := w.Write([]byte("event: state\ndata: ")); err != nil {
				return
			}
			// Encode terminates the data line; one more newline ends the event.
			if err := enc.Encode(st); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				s.logger.Debug("flush failed", "error", err)
			}
		}
	}
}
