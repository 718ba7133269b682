// Package report renders finished research reports: HTML for the page and PDF for download.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/equityresearch/internal/interfaces"
)

// Service renders markdown reports
type Service struct {
	markdown goldmark.Markdown
	logger   arbor.ILogger
}

var _ interfaces.PDFService = (*Service)(nil)

func NewService(logger arbor.ILogger) *Service {
	return &Service{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		logger: logger,
	}
}

// RenderHTML converts report markdown to HTML. Raw HTML in the markdown is not passed through.
func (s *Service) RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// ConvertMarkdownToPDF lays the report out on A4 pages with a running title and page numbers
func (s *Service) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	s.logger.Debug().
		Int("markdown_len", len(markdown)).
		Str("title", title).
		Msg("Converting report to PDF")

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(title, true)
	doc.SetCreator("equityresearch", true)
	doc.SetMargins(pageMargin, 18, pageMargin)
	doc.SetAutoPageBreak(true, 15)

	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.SetHeaderFunc(func() {
		doc.SetFont(bodyFont, "I", 8)
		doc.SetTextColor(120, 120, 120)
		doc.CellFormat(0, 6, tr(title), "B", 1, "R", false, 0, "")
		doc.SetTextColor(0, 0, 0)
		doc.Ln(3)
	})
	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont(bodyFont, "", 8)
		doc.SetTextColor(120, 120, 120)
		doc.CellFormat(0, 6, fmt.Sprintf("Page %d", doc.PageNo()), "", 0, "C", false, 0, "")
		doc.SetTextColor(0, 0, 0)
	})

	doc.AddPage()

	source := []byte(markdown)
	root := s.markdown.Parser().Parse(text.NewReader(source))

	w := &pdfWriter{doc: doc, source: source, translate: tr, size: bodySize}
	w.applyFont()
	if err := w.render(root); err != nil {
		return nil, fmt.Errorf("failed to lay out PDF: %w", err)
	}
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("failed to lay out PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	s.logger.Debug().Int("pdf_size", buf.Len()).Int("pages", doc.PageCount()).Msg("PDF generated")
	return buf.Bytes(), nil
}

// plainText collapses whitespace runs, used for table cells
func plainText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
