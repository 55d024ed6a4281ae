package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/caloriesnap/internal/domain"
	"github.com/vbonduro/caloriesnap/internal/ingest"
	"github.com/vbonduro/caloriesnap/internal/pipeline"
	"github.com/vbonduro/caloriesnap/internal/session"
	"github.com/vbonduro/caloriesnap/internal/web/templates"
)

// stubRunner completes every run immediately with an empty result.
type stubRunner struct{}

func (stubRunner) Run(_ context.Context, _ *domain.ImageAsset, _ func(domain.Stage)) (pipeline.Result, error) {
	return pipeline.Result{Items: domain.FoodItemList{}}, nil
}

// gatedRunner holds every run until release is closed or the run is cancelled.
type gatedRunner struct {
	release chan struct{}
}

func (g *gatedRunner) Run(ctx context.Context, _ *domain.ImageAsset, _ func(domain.Stage)) (pipeline.Result, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return pipeline.Result{}, ctx.Err()
	}
	return pipeline.Result{Items: domain.FoodItemList{}}, nil
}

func newUnitServer(t *testing.T, maxBytes int64) *Server {
	t.Helper()
	return newUnitServerWithRunner(t, maxBytes, stubRunner{})
}

func newUnitServerWithRunner(t *testing.T, maxBytes int64, r runner) *Server {
	t.Helper()
	ing := ingest.New(maxBytes)
	sessions := session.NewRegistry(time.Minute, func(string) *pipeline.Orchestrator {
		return pipeline.NewOrchestrator(ing, r, slog.Default())
	}, slog.Default())
	t.Cleanup(sessions.Close)
	return NewServer(sessions, r, ing, "stub", templates.FS, slog.Default())
}

func multipartRequest(t *testing.T, data []byte, contentType string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="meal.jpg"`)
	h.Set("Content-Type", contentType)
	fw, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestSubmitStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "accepted", err: nil, want: http.StatusAccepted},
		{name: "invalid input", err: fmt.Errorf("%w: not an image", domain.ErrInvalidInput), want: http.StatusBadRequest},
		{name: "read error", err: fmt.Errorf("%w: short read", domain.ErrRead), want: http.StatusInternalServerError},
		{name: "closed", err: pipeline.ErrClosed, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, submitStatus(tt.err))
		})
	}
}

func TestToolErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "remote", err: &pipeline.StageError{Stage: domain.StageIdentifying, Err: fmt.Errorf("%w: timeout", domain.ErrRemoteCall)}, want: http.StatusBadGateway},
		{name: "invalid", err: fmt.Errorf("%w: empty", domain.ErrInvalidInput), want: http.StatusBadRequest},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toolErrorStatus(tt.err))
		})
	}
}

func TestExtractParams(t *testing.T) {
	req := &protocol.CallToolRequest{
		Name:      estimateToolName,
		Arguments: map[string]interface{}{"image": "data:image/png;base64,AAAA"},
	}

	var params estimateToolParams
	require.NoError(t, extractParams(req, &params))
	assert.Equal(t, "data:image/png;base64,AAAA", params.Image)
}

func TestHandleUploadIssuesSessionCookie(t *testing.T) {
	s := newUnitServer(t, 1024)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, multipartRequest(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestHandleUploadReusesSession(t *testing.T) {
	s := newUnitServer(t, 1024)

	first := httptest.NewRecorder()
	s.ServeHTTP(first, multipartRequest(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"))
	cookie := first.Result().Cookies()[0]

	req := multipartRequest(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg")
	req.AddCookie(cookie)
	second := httptest.NewRecorder()
	s.ServeHTTP(second, req)

	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Empty(t, second.Result().Cookies(), "a known session keeps its cookie")
	assert.Contains(t, second.Body.String(), `"run":2`)
}

func TestHandleUploadTooLarge(t *testing.T) {
	s := newUnitServer(t, 1024)
	big := make([]byte, 2*multipartOverhead)
	copy(big, []byte{0xFF, 0xD8, 0xFF, 0xE0})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, multipartRequest(t, big, "image/jpeg"))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleUploadOverImageLimit(t *testing.T) {
	s := newUnitServer(t, 1024)
	data := make([]byte, 4096)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, multipartRequest(t, data, "image/jpeg"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
}

func TestHandleUploadNotMultipart(t *testing.T) {
	s := newUnitServer(t, 1024)
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newUnitServer(t, 1024)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/areas", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStateWithoutSessionCreatesNone(t *testing.T) {
	s := newUnitServer(t, 1024)

	for range 50 {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"idle"`)
		assert.Empty(t, rec.Result().Cookies())
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	assert.Zero(t, s.sessions.Len())
}

func TestHandleStateUnknownCookie(t *testing.T) {
	s := newUnitServer(t, 1024)
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "forged"})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), `"status":"idle"`)
	assert.Zero(t, s.sessions.Len())
}

func TestHandleIndexDisablesUploadWhileProcessing(t *testing.T) {
	gate := &gatedRunner{release: make(chan struct{})}
	s := newUnitServerWithRunner(t, 1024, gate)
	t.Cleanup(func() { close(gate.release) })

	idle := httptest.NewRecorder()
	s.ServeHTTP(idle, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, idle.Body.String(), `<button type="submit" id="submit">`)

	upload := httptest.NewRecorder()
	s.ServeHTTP(upload, multipartRequest(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"))
	require.Equal(t, http.StatusAccepted, upload.Code)
	cookie := upload.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	busy := httptest.NewRecorder()
	s.ServeHTTP(busy, req)

	body := busy.Body.String()
	assert.Contains(t, body, `<button type="submit" id="submit" disabled>`)
	assert.Contains(t, body, `required disabled>`)
}

func TestParseUploadFormKeepsFileInMemory(t *testing.T) {
	s := newUnitServer(t, 64<<10)
	data := make([]byte, 60<<10)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})

	req := multipartRequest(t, data, "image/jpeg")
	require.NoError(t, s.parseUploadForm(httptest.NewRecorder(), req))
	t.Cleanup(func() { _ = req.MultipartForm.RemoveAll() })

	headers := req.MultipartForm.File["image"]
	require.Len(t, headers, 1)
	f, err := headers[0].Open()
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	_, onDisk := f.(*os.File)
	assert.False(t, onDisk, "upload must not be spooled to a temp file")
}
