package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/models"
	"github.com/ternarybob/equityresearch/internal/services/agents"
	"github.com/ternarybob/equityresearch/internal/services/events"
	"github.com/ternarybob/equityresearch/internal/services/report"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	report  *models.Report
	err     error
	running bool
}

func (f *fakeRunner) Validate(req *models.ResearchRequest) error {
	req.Normalize()
	if req.Company == "" || req.Ticker == "" || req.DocumentFilename == "" {
		return agents.ErrMissingFields
	}
	return nil
}

func (f *fakeRunner) Run(ctx context.Context, req models.ResearchRequest) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := *f.report
	r.Company = req.Company
	r.Filename = models.ReportFilename(req.Company, "md")
	return &r, nil
}

func (f *fakeRunner) Status() agents.Status {
	if f.running {
		return agents.Status{State: models.RunStateRunning, RunID: "run-1"}
	}
	return agents.Status{State: models.RunStateIdle}
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestHandlers(t *testing.T, runner *fakeRunner) (*PageHandler, *ResearchHandler) {
	t.Helper()
	logger := arbor.NewLogger()
	pages, err := NewPageHandler(runner, "./annual_reports", "groq", "llama-3.3-70b-versatile", logger)
	require.NoError(t, err)
	return pages, NewResearchHandler(runner, report.NewService(logger), pages, logger)
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestServePage_Defaults(t *testing.T) {
	pages, _ := newTestHandlers(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	pages.ServePage("index.html", "index")(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Institutional Equity Research Agent")
	assert.Contains(t, body, `value="Reliance Industries"`)
	assert.Contains(t, body, `value="RELIANCE.NS"`)
	assert.Contains(t, body, `value="reliance.pdf"`)
	assert.Contains(t, body, "Make sure the PDF file is located in the <code>annual_reports</code> folder.")
	assert.Contains(t, body, "Generate Report")
}

func TestServePage_UnknownPath(t *testing.T) {
	pages, _ := newTestHandlers(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	pages.ServePage("index.html", "index")(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticFileHandler(t *testing.T) {
	pages, _ := newTestHandlers(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	pages.StaticFileHandler(rec, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "WebSocket")
}

func TestSubmitForm_MissingFieldWarnsWithoutRun(t *testing.T) {
	runner := &fakeRunner{}
	_, research := newTestHandlers(t, runner)

	rec := httptest.NewRecorder()
	research.SubmitFormHandler(rec, postForm(url.Values{
		"company":           {"Reliance Industries"},
		"ticker":            {"   "},
		"document_filename": {"reliance.pdf"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please fill in all fields.")
	assert.Equal(t, 0, runner.callCount())
}

func TestSubmitForm_RendersReport(t *testing.T) {
	runner := &fakeRunner{report: &models.Report{
		RunID:    "run-1",
		Markdown: "# Section 1\n\n| Segment | Share |\n|---|---|\n| O2C | 57% |\n",
	}}
	_, research := newTestHandlers(t, runner)

	rec := httptest.NewRecorder()
	research.SubmitFormHandler(rec, postForm(url.Values{
		"company":           {"Reliance Industries"},
		"ticker":            {"RELIANCE.NS"},
		"document_filename": {"reliance.pdf"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Analysis Complete!")
	assert.Contains(t, body, "<table>")
	assert.Contains(t, body, "<td>O2C</td>")
	assert.Contains(t, body, "Download Report")
	assert.Equal(t, 1, runner.callCount())
}

func TestSubmitForm_RunErrorShowsMessage(t *testing.T) {
	runner := &fakeRunner{err: errors.New("groq returned 401")}
	_, research := newTestHandlers(t, runner)

	rec := httptest.NewRecorder()
	research.SubmitFormHandler(rec, postForm(url.Values{
		"company":           {"TCS"},
		"ticker":            {"TCS.NS"},
		"document_filename": {"tcs.pdf"},
	}))

	body := rec.Body.String()
	assert.Contains(t, body, "An error occurred: groq returned 401")
	assert.NotContains(t, body, "Analysis Complete!")
}

func TestRunHandler_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"invalid json", "{", nil, http.StatusBadRequest, "Invalid request body"},
		{"missing field", `{"company":"TCS","ticker":"","document_filename":"tcs.pdf"}`, nil, http.StatusBadRequest, "Please fill in all fields."},
		{"in progress", `{"company":"TCS","ticker":"TCS.NS","document_filename":"tcs.pdf"}`, agents.ErrRunInProgress, http.StatusConflict, agents.ErrRunInProgress.Error()},
		{"run failure", `{"company":"TCS","ticker":"TCS.NS","document_filename":"tcs.pdf"}`, errors.New("max turns"), http.StatusInternalServerError, "An error occurred: max turns"},
		{"rate limited", `{"company":"TCS","ticker":"TCS.NS","document_filename":"tcs.pdf"}`, fmt.Errorf("%w: 429", agents.ErrRateLimited), http.StatusTooManyRequests, "An error occurred: rate limited by the LLM provider: 429"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, research := newTestHandlers(t, &fakeRunner{err: tt.err})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			research.RunHandler(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}
}

func TestRunHandler_Success(t *testing.T) {
	runner := &fakeRunner{report: &models.Report{RunID: "run-7", Markdown: "## Top News\n\n**Jio** launch"}}
	_, research := newTestHandlers(t, runner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/research",
		strings.NewReader(`{"company":"Reliance Industries","ticker":"RELIANCE.NS","document_filename":"reliance.pdf"}`))
	research.RunHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body researchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-7", body.RunID)
	assert.Equal(t, "Reliance Industries_Analysis.md", body.Filename)
	assert.Contains(t, body.HTML, "<strong>Jio</strong>")
}

func TestRunHandler_RequiresPost(t *testing.T) {
	_, research := newTestHandlers(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	research.RunHandler(rec, httptest.NewRequest(http.MethodGet, "/api/research", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDownloadMarkdown(t *testing.T) {
	_, research := newTestHandlers(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/report/download",
		strings.NewReader(`{"company":"Reliance Industries","markdown":"# Profile"}`))
	req.Header.Set("Content-Type", "application/json")
	research.DownloadMarkdownHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Reliance Industries_Analysis.md")
	assert.Equal(t, "# Profile", rec.Body.String())
}

func TestDownloadMarkdown_FormAndEmpty(t *testing.T) {
	_, research := newTestHandlers(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	research.DownloadMarkdownHandler(rec, postForm(url.Values{"company": {"TCS"}, "markdown": {"## Highs"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "TCS_Analysis.md")

	rec = httptest.NewRecorder()
	research.DownloadMarkdownHandler(rec, postForm(url.Values{"company": {"TCS"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadPDF(t *testing.T) {
	_, research := newTestHandlers(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	research.DownloadPDFHandler(rec, postForm(url.Values{
		"company":  {"Reliance Industries"},
		"markdown": {"# Section 1\n\n- Refining\n- Retail\n"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Reliance Industries_Analysis.pdf")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestAPIHandler(t *testing.T) {
	h := NewAPIHandler(&fakeRunner{running: true}, "groq", "llama-3.3-70b-versatile", arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var status struct {
		Runner   agents.Status `json:"runner"`
		Provider string        `json:"provider"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.RunStateRunning, status.Runner.State)
	assert.Equal(t, "groq", status.Provider)

	rec = httptest.NewRecorder()
	h.VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Contains(t, rec.Body.String(), `"version"`)

	rec = httptest.NewRecorder()
	h.NotFoundHandler(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocket_StatusThenRunEvents(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	defer eventService.Close()

	ws, err := NewWebSocketHandler(eventService, &fakeRunner{}, logger)
	require.NoError(t, err)
	defer ws.Close()

	srv := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Type)
	assert.Contains(t, string(msg.Payload), `"state":"idle"`)

	require.NoError(t, eventService.PublishSync(context.Background(), models.RunEvent{
		RunID:   "run-1",
		Type:    models.RunEventToolStarted,
		Tool:    "read_annual_report",
		Message: "Reading Annual Report...",
	}))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "run_event", msg.Type)
	var event models.RunEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, models.RunEventToolStarted, event.Type)
	assert.Equal(t, "Reading Annual Report...", event.Message)
}

func TestWebSocket_StalledClientDoesNotBlockPublisher(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	defer eventService.Close()

	ws, err := NewWebSocketHandler(eventService, &fakeRunner{}, logger)
	require.NoError(t, err)
	defer ws.Close()
	ws.writeWait = 200 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registered once the status arrives; the client never reads again
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	big := strings.Repeat("x", 1<<20)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			_ = eventService.PublishSync(context.Background(), models.RunEvent{
				RunID:   "run-1",
				Type:    models.RunEventToolFinished,
				Message: big,
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("publisher blocked on a stalled WebSocket client")
	}

	ws.mu.RLock()
	remaining := len(ws.clients)
	ws.mu.RUnlock()
	assert.Equal(t, 0, remaining)
}
