package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

// Service validates a PDF with pdfcpu and then hands it to the configured backend
type Service struct {
	backend interfaces.DocumentParser
	timeout time.Duration
	logger  arbor.ILogger
}

var _ interfaces.DocumentParser = (*Service)(nil)

// NewService selects the backend from [parser].mode
func NewService(config *common.ParserConfig, logger arbor.ILogger) (*Service, error) {
	var backend interfaces.DocumentParser

	switch config.Mode {
	case common.ParserModeLocal:
		backend = NewLocal(config.MaxChars, logger)
	case common.ParserModeLlamaParse, "":
		// A missing key is reported per call as tool text, not at startup
		apiKey, _ := common.ResolveAPIKey("llama_cloud_api_key", config.APIKey)
		backend = NewLlamaParse(config.BaseURL, apiKey, logger,
			WithPollInterval(common.ParseDuration(config.PollInterval, 2*time.Second)))
	default:
		return nil, fmt.Errorf("unknown parser mode: %s", config.Mode)
	}

	return NewServiceWithBackend(backend, common.ParseDuration(config.Timeout, 5*time.Minute), logger), nil
}

// NewServiceWithBackend wraps an explicit backend
func NewServiceWithBackend(backend interfaces.DocumentParser, timeout time.Duration, logger arbor.ILogger) *Service {
	return &Service{backend: backend, timeout: timeout, logger: logger}
}

func (s *Service) Name() string {
	return s.backend.Name()
}

// Parse checks the file is a readable PDF, then extracts it within the configured timeout.
// Every returned document carries the page count.
func (s *Service) Parse(ctx context.Context, path string) ([]models.ParsedDocument, error) {
	pageCount, err := PageCount(path)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	docs, err := s.backend.Parse(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.backend.Name(), err)
	}

	for i := range docs {
		docs[i].PageCount = pageCount
	}

	s.logger.Info().
		Str("backend", s.backend.Name()).
		Int("pages", pageCount).
		Int("documents", len(docs)).
		Dur("duration", time.Since(start)).
		Msg("Annual report parsed")

	return docs, nil
}

// PageCount opens the PDF with pdfcpu. It fails fast on files that are not PDFs.
func PageCount(path string) (int, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, fmt.Errorf("not a readable PDF: %w", err)
	}
	return pdfCtx.PageCount, nil
}

// JoinText concatenates document texts with blank lines between them
func JoinText(docs []models.ParsedDocument) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Text != "" {
			parts = append(parts, d.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
