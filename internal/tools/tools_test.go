package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/eodhd"
	"github.com/ternarybob/equityresearch/internal/models"
	"github.com/ternarybob/equityresearch/internal/services/market"
	"github.com/ternarybob/equityresearch/internal/services/parser"
)

type fakeSearch struct {
	results []models.SearchResult
	err     error
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakeMarket struct {
	profile *models.CompanyProfile
	err     error
	tickers []string
}

func (f *fakeMarket) GetCompanyProfile(ctx context.Context, ticker string) (*models.CompanyProfile, error) {
	f.tickers = append(f.tickers, ticker)
	return f.profile, f.err
}

type fakeParser struct {
	docs  []models.ParsedDocument
	err   error
	paths []string
}

func (f *fakeParser) Name() string { return "fake" }

func (f *fakeParser) Parse(ctx context.Context, path string) ([]models.ParsedDocument, error) {
	f.paths = append(f.paths, path)
	return f.docs, f.err
}

func TestWebHistoryTool_FormatsResults(t *testing.T) {
	search := &fakeSearch{results: []models.SearchResult{
		{Title: "Reliance acquires Network18", URL: "https://example.com/a", Snippet: "In **2014** Reliance..."},
		{Title: "Jio launch", URL: "https://example.com/b"},
	}}
	tool := NewWebHistoryTool(search, arbor.NewLogger())

	out := tool.Execute(context.Background(), "Reliance Industries major acquisitions list")

	assert.Equal(t, []string{"Reliance Industries major acquisitions list"}, search.queries)
	assert.Equal(t, "1. Reliance acquires Network18\n   URL: https://example.com/a\n   In **2014** Reliance...\n\n2. Jio launch\n   URL: https://example.com/b", out)
}

func TestWebHistoryTool_ErrorBecomesText(t *testing.T) {
	tool := NewWebHistoryTool(&fakeSearch{err: errors.New("duckduckgo returned HTTP 202")}, arbor.NewLogger())
	assert.Equal(t, "Error searching web: duckduckgo returned HTTP 202", tool.Execute(context.Background(), "q"))
}

func TestWebHistoryTool_NoResults(t *testing.T) {
	tool := NewWebHistoryTool(&fakeSearch{}, arbor.NewLogger())
	assert.Equal(t, NoSearchResults, tool.Execute(context.Background(), "q"))
}

func TestFinancialsTool_FullProfile(t *testing.T) {
	market := &fakeMarket{profile: &models.CompanyProfile{
		Industry:        "Oil & Gas Refining & Marketing",
		Sector:          "Energy",
		BusinessSummary: "Reliance Industries Limited engages in hydrocarbon exploration.",
		Website:         "https://www.ril.com",
	}}
	tool := NewFinancialsTool(market, arbor.NewLogger())

	out := tool.Execute(context.Background(), " RELIANCE.NS ")

	assert.Equal(t, []string{"RELIANCE.NS"}, market.tickers)
	assert.Equal(t, "Company Basic Profile:\n{'Industry': 'Oil & Gas Refining & Marketing', 'Sector': 'Energy', "+
		"'Business Summary': 'Reliance Industries Limited engages in hydrocarbon exploration.', 'Website': 'https://www.ril.com'}", out)
}

func TestFinancialsTool_MissingFieldsAreNA(t *testing.T) {
	tool := NewFinancialsTool(&fakeMarket{profile: &models.CompanyProfile{Sector: "Energy"}}, arbor.NewLogger())

	out := tool.Execute(context.Background(), "XYZ")
	assert.Equal(t, "Company Basic Profile:\n{'Industry': 'N/A', 'Sector': 'Energy', 'Business Summary': 'N/A', 'Website': 'N/A'}", out)
}

func TestFinancialsTool_ErrorBecomesText(t *testing.T) {
	tool := NewFinancialsTool(&fakeMarket{err: errors.New("unknown symbol")}, arbor.NewLogger())
	assert.Equal(t, "Error fetching profile: unknown symbol", tool.Execute(context.Background(), "NOPE"))
}

func TestFinancialsTool_UnknownTickerIsNA(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Ticker Not Found.", http.StatusNotFound)
	}))
	defer server.Close()

	logger := arbor.NewLogger()
	svc := market.NewService(eodhd.NewClient("k", eodhd.WithBaseURL(server.URL)), logger)
	tool := NewFinancialsTool(svc, logger)

	out := tool.Execute(context.Background(), "NOSUCH.NS")

	assert.NotContains(t, out, "Error fetching profile")
	assert.Equal(t, "Company Basic Profile:\n{'Industry': 'N/A', 'Sector': 'N/A', 'Business Summary': 'N/A', 'Website': 'N/A'}", out)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `'Energy'`, quoteLiteral("Energy"))
	assert.Equal(t, `"India's largest"`, quoteLiteral("India's largest"))
	assert.Equal(t, `'say "hi" it\'s'`, quoteLiteral(`say "hi" it's`))
	assert.Equal(t, `'a\nb'`, quoteLiteral("a\nb"))
}

func newReportTool(t *testing.T, parser *fakeParser, maxChars int) (*AnnualReportTool, string) {
	t.Helper()
	dir := t.TempDir()
	return NewAnnualReportTool(parser, dir, maxChars, arbor.NewLogger()), dir
}

func TestAnnualReportTool_MissingFileSkipsParser(t *testing.T) {
	parser := &fakeParser{}
	tool, _ := newReportTool(t, parser, 15000)

	assert.Equal(t, FileNotFound, tool.Execute(context.Background(), "missing.pdf"))
	assert.Empty(t, parser.paths)
}

func TestAnnualReportTool_RejectsPaths(t *testing.T) {
	parser := &fakeParser{docs: []models.ParsedDocument{{Text: "secret"}}}
	tool, dir := newReportTool(t, parser, 15000)

	outside := filepath.Join(filepath.Dir(dir), "outside.pdf")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))
	t.Cleanup(func() { os.Remove(outside) })

	for _, name := range []string{"../outside.pdf", "sub/report.pdf", `sub\report.pdf`, "..", "", "   "} {
		assert.Equal(t, FileNotFound, tool.Execute(context.Background(), name), name)
	}
	assert.Empty(t, parser.paths)
}

func TestAnnualReportTool_ReturnsFirstDocumentTruncated(t *testing.T) {
	parser := &fakeParser{docs: []models.ParsedDocument{
		{Text: strings.Repeat("é", 20)},
		{Text: "second document"},
	}}
	tool, dir := newReportTool(t, parser, 15)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reliance.pdf"), []byte("%PDF"), 0644))

	out := tool.Execute(context.Background(), "'reliance.pdf'")

	assert.Equal(t, strings.Repeat("é", 15), out)
	assert.Equal(t, []string{filepath.Join(dir, "reliance.pdf")}, parser.paths)
}

func TestAnnualReportTool_ParserErrorBecomesText(t *testing.T) {
	parser := &fakeParser{err: errors.New("llamaparse: quota exhausted")}
	tool, dir := newReportTool(t, parser, 15000)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reliance.pdf"), []byte("%PDF"), 0644))

	assert.Equal(t, "Error reading PDF: llamaparse: quota exhausted", tool.Execute(context.Background(), "reliance.pdf"))
}

func TestAnnualReportTool_DirectoryIsNotAFile(t *testing.T) {
	tool, dir := newReportTool(t, &fakeParser{}, 15000)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "reliance.pdf"), 0755))

	assert.Equal(t, FileNotFound, tool.Execute(context.Background(), "reliance.pdf"))
}

func TestAnnualReportTool_LocalModeReadsEveryPage(t *testing.T) {
	dir := t.TempDir()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 12)
	for _, line := range []string{"Chairman letter", "Segment revenue split", "Export destinations"} {
		doc.AddPage()
		doc.Cell(0, 10, line)
	}
	require.NoError(t, doc.OutputFileAndClose(filepath.Join(dir, "reliance.pdf")))

	logger := arbor.NewLogger()
	svc := parser.NewServiceWithBackend(parser.NewLocal(15000, logger), time.Minute, logger)
	tool := NewAnnualReportTool(svc, dir, 15000, logger)

	out := tool.Execute(context.Background(), "reliance.pdf")

	assert.Contains(t, out, "Chairman letter")
	assert.Contains(t, out, "Segment revenue split")
	assert.Contains(t, out, "Export destinations")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "日本", Truncate("日本語", 2))
}

func TestRegistry(t *testing.T) {
	web := NewWebHistoryTool(&fakeSearch{}, arbor.NewLogger())
	fin := NewFinancialsTool(&fakeMarket{}, arbor.NewLogger())
	pdf := NewAnnualReportTool(&fakeParser{}, t.TempDir(), 10, arbor.NewLogger())

	reg, err := NewRegistry(web, fin, pdf)
	require.NoError(t, err)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "search_web_for_company_history", all[0].Name())
	assert.Equal(t, []string{"fetch_financial_segments", "read_annual_report", "search_web_for_company_history"}, reg.Names())

	got, ok := reg.Get("read_annual_report")
	require.True(t, ok)
	assert.Equal(t, "Read Annual Report", got.Title())

	_, err = NewRegistry(web, web)
	assert.Error(t, err)
}
