package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

// NoSearchResults is returned when the search engine has nothing for the query
const NoSearchResults = "No good DuckDuckGo Search Result was found"

// WebHistoryTool searches the web for company history, acquisitions and news
type WebHistoryTool struct {
	search interfaces.WebSearchService
	logger arbor.ILogger
}

var _ interfaces.Tool = (*WebHistoryTool)(nil)

func NewWebHistoryTool(search interfaces.WebSearchService, logger arbor.ILogger) *WebHistoryTool {
	return &WebHistoryTool{search: search, logger: logger}
}

func (t *WebHistoryTool) Name() string  { return "search_web_for_company_history" }
func (t *WebHistoryTool) Title() string { return "Search Web for Company History" }

func (t *WebHistoryTool) Description() string {
	return "Useful for finding 10-year history, milestones, major acquisitions, and controversies. " +
		"Input: A specific query like 'Reliance Industries major acquisitions list' or 'TCS major failures 2015'."
}

func (t *WebHistoryTool) Parameter() interfaces.ToolParameter {
	return interfaces.ToolParameter{Name: "query", Description: "Free-text web search query"}
}

// Execute runs the search. A failed search is handed back to the model as text.
func (t *WebHistoryTool) Execute(ctx context.Context, query string) string {
	results, err := t.search.Search(ctx, query)
	if err != nil {
		t.logger.Warn().Str("query", query).Err(err).Msg("Web search failed")
		return fmt.Sprintf("Error searching web: %v", err)
	}
	if len(results) == 0 {
		return NoSearchResults
	}
	return FormatSearchResults(results)
}

// FormatSearchResults renders results as a numbered list of title, URL and snippet
func FormatSearchResults(results []models.SearchResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Title)
		if r.URL != "" {
			fmt.Fprintf(&sb, "   URL: %s\n", r.URL)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
