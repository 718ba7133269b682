package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

// Local extracts plain text in-process, no network and no API key.
// Layout is lost: tables come out as loose runs of text.
type Local struct {
	maxChars int
	logger   arbor.ILogger
}

var _ interfaces.DocumentParser = (*Local)(nil)

// NewLocal creates a local extractor. Extraction stops once maxChars have been
// collected (0 reads the whole document).
func NewLocal(maxChars int, logger arbor.ILogger) *Local {
	return &Local{maxChars: maxChars, logger: logger}
}

func (l *Local) Name() string {
	return "local"
}

// Parse returns a single document holding the text of every page, in page order,
// separated by blank lines.
func (l *Local) Parse(ctx context.Context, path string) (docs []models.ParsedDocument, err error) {
	// The pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("pdf extraction panicked: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var pageDocs []models.ParsedDocument
	total := 0
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Debug().Int("page", i).Err(err).Msg("Skipping unreadable page")
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pageDocs = append(pageDocs, models.ParsedDocument{Text: text})
		total += len(text)
		if l.maxChars > 0 && total >= l.maxChars {
			break
		}
	}

	if len(pageDocs) == 0 {
		return nil, fmt.Errorf("no extractable text in %d pages (scanned document?)", pages)
	}

	l.logger.Debug().Int("pages", pages).Int("pages_with_text", len(pageDocs)).Msg("Local extraction complete")
	return []models.ParsedDocument{{Text: JoinText(pageDocs), PageCount: pages, Source: l.Name()}}, nil
}
