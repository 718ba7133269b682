package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/interfaces"
)

// FileNotFound is returned verbatim when the report cannot be resolved
const FileNotFound = "File not found."

// AnnualReportTool reads an annual report PDF from the reports directory
type AnnualReportTool struct {
	parser   interfaces.DocumentParser
	dir      string
	maxChars int
	logger   arbor.ILogger
}

var _ interfaces.Tool = (*AnnualReportTool)(nil)

// NewAnnualReportTool resolves filenames under dir and cuts results to maxChars characters
func NewAnnualReportTool(parser interfaces.DocumentParser, dir string, maxChars int, logger arbor.ILogger) *AnnualReportTool {
	return &AnnualReportTool{parser: parser, dir: dir, maxChars: maxChars, logger: logger}
}

func (t *AnnualReportTool) Name() string  { return "read_annual_report" }
func (t *AnnualReportTool) Title() string { return "Read Annual Report" }

func (t *AnnualReportTool) Description() string {
	return "Reads the Annual Report to find Export/Import data and Management Discussion. Input: Filename (e.g., 'reliance.pdf')."
}

func (t *AnnualReportTool) Parameter() interfaces.ToolParameter {
	return interfaces.ToolParameter{Name: "pdf_name", Description: "Annual report filename inside the reports folder"}
}

// Execute parses the file and returns the first document, truncated.
// A missing file never reaches the parser.
func (t *AnnualReportTool) Execute(ctx context.Context, filename string) string {
	path, ok := t.Resolve(filename)
	if !ok {
		t.logger.Warn().Str("file", filename).Str("dir", t.dir).Msg("Annual report not found")
		return FileNotFound
	}

	docs, err := t.parser.Parse(ctx, path)
	if err != nil {
		t.logger.Warn().Str("file", filename).Err(err).Msg("Annual report extraction failed")
		return fmt.Sprintf("Error reading PDF: %v", err)
	}
	if len(docs) == 0 {
		return fmt.Sprintf("Error reading PDF: %v", errors.New("parser returned no documents"))
	}

	return Truncate(docs[0].Text, t.maxChars)
}

// Resolve maps a bare filename to a regular file inside the reports directory
func (t *AnnualReportTool) Resolve(filename string) (string, bool) {
	filename = strings.TrimSpace(strings.Trim(strings.TrimSpace(filename), `"'`))
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return "", false
	}

	path := filepath.Join(t.dir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Truncate keeps the first max characters (runes) of s. max <= 0 keeps everything.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
