package parser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/models"
)

// writeTestPDF renders a small uncompressed PDF with one line of text per page
func writeTestPDF(t *testing.T, lines ...string) string {
	t.Helper()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 12)
	for _, line := range lines {
		doc.AddPage()
		doc.Cell(0, 10, line)
	}

	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, doc.OutputFileAndClose(path))
	return path
}

type stubBackend struct {
	docs []models.ParsedDocument
	err  error
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Parse(ctx context.Context, path string) ([]models.ParsedDocument, error) {
	return s.docs, s.err
}

func TestPageCount(t *testing.T) {
	path := writeTestPDF(t, "one", "two", "three")

	count, err := PageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	notPDF := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("plain text"), 0644))
	_, err = PageCount(notPDF)
	assert.Error(t, err)
}

func TestService_FillsPageCount(t *testing.T) {
	path := writeTestPDF(t, "one", "two")
	backend := &stubBackend{docs: []models.ParsedDocument{{Text: "# Segments", Source: "stub"}}}

	svc := NewServiceWithBackend(backend, time.Minute, arbor.NewLogger())
	docs, err := svc.Parse(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 2, docs[0].PageCount)
	assert.Equal(t, "stub", svc.Name())
}

func TestService_BackendErrorIsWrapped(t *testing.T) {
	path := writeTestPDF(t, "one")
	backend := &stubBackend{err: errors.New("quota exhausted")}

	svc := NewServiceWithBackend(backend, 0, arbor.NewLogger())
	_, err := svc.Parse(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, "stub: quota exhausted", err.Error())
}

func TestNewService_Modes(t *testing.T) {
	svc, err := NewService(&common.ParserConfig{Mode: common.ParserModeLocal, MaxChars: 100}, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, "local", svc.Name())

	svc, err = NewService(&common.ParserConfig{Mode: common.ParserModeLlamaParse, BaseURL: "http://127.0.0.1:0"}, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, "llamaparse", svc.Name())

	_, err = NewService(&common.ParserConfig{Mode: "ocr"}, arbor.NewLogger())
	assert.Error(t, err)
}

func TestLocal_ExtractsText(t *testing.T) {
	path := writeTestPDF(t, "Refining revenue", "Retail exports", "Export destinations")

	docs, err := NewLocal(0, arbor.NewLogger()).Parse(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	text := docs[0].Text
	assert.Contains(t, text, "Refining")
	assert.Contains(t, text, "Retail")
	assert.Contains(t, text, "Export destinations")
	assert.Less(t, strings.Index(text, "Refining"), strings.Index(text, "Retail"))
	assert.Less(t, strings.Index(text, "Retail"), strings.Index(text, "Export destinations"))
	assert.Equal(t, 3, docs[0].PageCount)
	assert.Equal(t, "local", docs[0].Source)
}

func TestLocal_StopsAtMaxChars(t *testing.T) {
	path := writeTestPDF(t, "first page text", "second page text", "third page text")

	docs, err := NewLocal(5, arbor.NewLogger()).Parse(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text, "first")
	assert.NotContains(t, docs[0].Text, "second")
}

func TestLocal_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 truncated"), 0644))

	_, err := NewLocal(0, arbor.NewLogger()).Parse(context.Background(), path)
	assert.Error(t, err)
}

func TestLlamaParse_UploadPollResult(t *testing.T) {
	var polls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer llx-test", r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/parsing/upload":
			file, header, err := r.FormFile("file")
			if assert.NoError(t, err) {
				file.Close()
				assert.Equal(t, "report.pdf", header.Filename)
			}
			assert.Equal(t, "markdown", r.FormValue("result_type"))
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "PENDING"})

		case r.URL.Path == "/api/parsing/job/job-1":
			status := "PENDING"
			if polls.Add(1) >= 2 {
				status = "SUCCESS"
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": status})

		case r.URL.Path == "/api/parsing/job/job-1/result/markdown":
			_ = json.NewEncoder(w).Encode(map[string]string{"markdown": "| Segment | Revenue |\n|---|---|\n| O2C | 100 |"})

		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	path := writeTestPDF(t, "one")
	client := NewLlamaParse(server.URL, "llx-test", arbor.NewLogger(), WithPollInterval(10*time.Millisecond))

	docs, err := client.Parse(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, strings.HasPrefix(docs[0].Text, "| Segment | Revenue |"))
	assert.Equal(t, "llamaparse", docs[0].Source)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestLlamaParse_JobError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/parsing/upload":
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-2"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-2", "status": "ERROR", "error_message": "encrypted document"})
		}
	}))
	defer server.Close()

	client := NewLlamaParse(server.URL, "llx-test", arbor.NewLogger(), WithPollInterval(10*time.Millisecond))
	_, err := client.Parse(context.Background(), writeTestPDF(t, "one"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypted document")
}

func TestLlamaParse_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewLlamaParse(server.URL, "bad", arbor.NewLogger())
	_, err := client.Parse(context.Background(), writeTestPDF(t, "one"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "/api/parsing/upload", apiErr.Endpoint)
}

func TestLlamaParse_MissingKey(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer server.Close()

	client := NewLlamaParse(server.URL, "", arbor.NewLogger())
	_, err := client.Parse(context.Background(), "unused.pdf")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.False(t, called.Load())
}

func TestLlamaParse_ContextCancelledWhilePolling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-3", "status": "PENDING"})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewLlamaParse(server.URL, "llx-test", arbor.NewLogger(), WithPollInterval(10*time.Millisecond))
	_, err := client.Parse(ctx, writeTestPDF(t, "one"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJoinText(t *testing.T) {
	docs := []models.ParsedDocument{{Text: "a"}, {Text: ""}, {Text: "b"}}
	assert.Equal(t, "a\n\nb", JoinText(docs))
}
