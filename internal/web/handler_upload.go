package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vbonduro/caloriesnap/internal/domain"
	"github.com/vbonduro/caloriesnap/internal/pipeline"
	"github.com/vbonduro/caloriesnap/internal/session"
)

// multipartOverhead is headroom over the image limit for form boundaries and
// other fields.
const multipartOverhead = 1 << 20

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	state := idleState()
	if orch, ok := s.existingSession(r); ok {
		state = orch.State()
	}
	data := struct {
		MaxUploadBytes int64
		Backend        string
		Busy           bool
	}{s.ingestor.MaxBytes(), s.backend, state.Status == domain.StatusProcessing}
	if err := s.renderPage(w, data, "index.html"); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

// handleUpload hands the multipart "image" field to the session's pipeline
// and responds with the resulting state: 202 when a run started, 400 when
// the upload was rejected.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.parseUploadForm(w, r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("failed to remove multipart temp files", "error", err)
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image file required", http.StatusBadRequest)
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	orch := s.sessionFor(w, r)
	err = orch.Submit(header.Header.Get("Content-Type"), file)
	status := submitStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("upload failed", "filename", header.Filename, "error", err)
	}
	s.writeJSON(w, status, orch.State())
}

// parseUploadForm parses the multipart body under the upload cap. The whole
// body fits in maxMemory, so no part is spooled to disk.
func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request) error {
	limit := s.ingestor.MaxBytes() + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return r.ParseMultipartForm(limit)
}

// submitStatus maps a Submit error onto an HTTP status code.
func submitStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusAccepted
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// existingSession returns the orchestrator for the request's session cookie
// without creating a session.
func (s *Server) existingSession(r *http.Request) (*pipeline.Orchestrator, bool) {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		return nil, false
	}
	return s.sessions.Lookup(c.Value)
}

func idleState() domain.PipelineState {
	return domain.PipelineState{Status: domain.StatusIdle}
}

// sessionFor returns the orchestrator for the request's session, issuing a
// session cookie when the client has none or an unusable one.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *pipeline.Orchestrator {
	var current string
	if c, err := r.Cookie(session.CookieName); err == nil {
		current = c.Value
	}
	id, orch := s.sessions.Get(current)
	if id != current {
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return orch
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "error", err)
	}
}
