package web

import "net/http"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backend":  s.backend,
		"sessions": s.sessions.Len(),
	})
}
