package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

// ErrMissingAPIKey is returned before any network call when no LlamaParse key is configured
var ErrMissingAPIKey = errors.New("LlamaParse API key not configured (set LLAMA_CLOUD_API_KEY)")

// Job statuses reported by the parsing service
const (
	jobStatusPending        = "PENDING"
	jobStatusSuccess        = "SUCCESS"
	jobStatusPartialSuccess = "PARTIAL_SUCCESS"
	jobStatusError          = "ERROR"
	jobStatusCancelled      = "CANCELLED"
)

// APIError is a non-2xx response from the parsing service
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LlamaParse API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// LlamaParse submits documents to the LlamaParse cloud service and returns markdown
type LlamaParse struct {
	baseURL      string
	apiKey       string
	resultType   string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       arbor.ILogger
}

var _ interfaces.DocumentParser = (*LlamaParse)(nil)

// LlamaParseOption configures the client
type LlamaParseOption func(*LlamaParse)

// WithLlamaParseHTTPClient sets a custom HTTP client
func WithLlamaParseHTTPClient(client *http.Client) LlamaParseOption {
	return func(l *LlamaParse) {
		l.httpClient = client
	}
}

// WithPollInterval sets how often job status is checked
func WithPollInterval(interval time.Duration) LlamaParseOption {
	return func(l *LlamaParse) {
		if interval > 0 {
			l.pollInterval = interval
		}
	}
}

// NewLlamaParse creates a client for baseURL (e.g. https://api.cloud.llamaindex.ai)
func NewLlamaParse(baseURL, apiKey string, logger arbor.ILogger, opts ...LlamaParseOption) *LlamaParse {
	l := &LlamaParse{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		resultType:   "markdown",
		pollInterval: 2 * time.Second,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name identifies the backend in logs and parsed documents
func (l *LlamaParse) Name() string {
	return "llamaparse"
}

// Parse uploads the file, waits for the job and returns the markdown as one document.
func (l *LlamaParse) Parse(ctx context.Context, path string) ([]models.ParsedDocument, error) {
	if l.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	start := time.Now()

	jobID, err := l.upload(ctx, path)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().Str("job_id", jobID).Str("file", filepath.Base(path)).Msg("Parse job submitted")

	if err := l.waitForJob(ctx, jobID); err != nil {
		return nil, err
	}

	text, err := l.fetchResult(ctx, jobID)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("job_id", jobID).
		Int("chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Parse job completed")

	return []models.ParsedDocument{{Text: text, Source: l.Name()}}, nil
}

func (l *LlamaParse) upload(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(path)))
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	if err := writer.WriteField("result_type", l.resultType); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	var job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	endpoint := "/api/parsing/upload"
	if err := l.do(ctx, http.MethodPost, endpoint, &body, writer.FormDataContentType(), &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", fmt.Errorf("upload response did not include a job id")
	}
	return job.ID, nil
}

func (l *LlamaParse) waitForJob(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		var job struct {
			ID           string `json:"id"`
			Status       string `json:"status"`
			ErrorMessage string `json:"error_message"`
		}
		if err := l.do(ctx, http.MethodGet, "/api/parsing/job/"+jobID, nil, "", &job); err != nil {
			return err
		}

		switch strings.ToUpper(job.Status) {
		case jobStatusSuccess, jobStatusPartialSuccess:
			return nil
		case jobStatusError, jobStatusCancelled:
			msg := job.ErrorMessage
			if msg == "" {
				msg = strings.ToLower(job.Status)
			}
			return fmt.Errorf("parse job %s failed: %s", jobID, msg)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("parse job %s did not finish: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *LlamaParse) fetchResult(ctx context.Context, jobID string) (string, error) {
	result := map[string]json.RawMessage{}
	if err := l.do(ctx, http.MethodGet, "/api/parsing/job/"+jobID+"/result/"+l.resultType, nil, "", &result); err != nil {
		return "", err
	}

	raw, ok := result[l.resultType]
	if !ok {
		return "", fmt.Errorf("result for job %s has no %s field", jobID, l.resultType)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("failed to decode %s result: %w", l.resultType, err)
	}
	return text, nil
}

func (l *LlamaParse) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
			Endpoint:   endpoint,
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
