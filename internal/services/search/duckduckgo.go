package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

// DuckDuckGo searches the DuckDuckGo lite HTML endpoint
type DuckDuckGo struct {
	endpoint   string
	userAgent  string
	maxResults int
	client     *http.Client
	limiter    *rate.Limiter
	converter  *md.Converter
	logger     arbor.ILogger
}

var _ interfaces.WebSearchService = (*DuckDuckGo)(nil)

// NewDuckDuckGo creates a searcher from [search] config
func NewDuckDuckGo(config *common.SearchConfig, logger arbor.ILogger) *DuckDuckGo {
	maxResults := config.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	return &DuckDuckGo{
		endpoint:   config.BaseURL,
		userAgent:  config.UserAgent,
		maxResults: maxResults,
		client:     &http.Client{Timeout: common.ParseDuration(config.Timeout, 15*time.Second)},
		limiter:    rate.NewLimiter(rate.Every(common.ParseDuration(config.RateLimit, time.Second)), 1),
		converter:  md.NewConverter("", true, nil),
		logger:     logger,
	}
}

// Search posts the query to the lite page as given and parses the result table.
// Failures are returned to the caller unchanged; nothing is retried.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search rate limiter: %w", err)
	}

	form := url.Values{}
	form.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	results := d.parseResults(doc)

	d.logger.Debug().
		Str("query", query).
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Web search completed")

	return results, nil
}

// parseResults pairs each a.result-link with the td.result-snippet at the same index.
func (d *DuckDuckGo) parseResults(doc *goquery.Document) []models.SearchResult {
	var snippets []string
	doc.Find("td.result-snippet").Each(func(_ int, s *goquery.Selection) {
		snippets = append(snippets, d.snippetMarkdown(s))
	})

	var results []models.SearchResult
	doc.Find("a.result-link").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		link := resolveResultURL(href)
		title := strings.TrimSpace(s.Text())
		if link == "" || title == "" {
			return true
		}

		result := models.SearchResult{Title: title, URL: link}
		if i < len(snippets) {
			result.Snippet = snippets[i]
		}
		results = append(results, result)

		return len(results) < d.maxResults
	})

	return results
}

func (d *DuckDuckGo) snippetMarkdown(s *goquery.Selection) string {
	html, err := s.Html()
	if err != nil {
		return strings.TrimSpace(s.Text())
	}
	converted, err := d.converter.ConvertString(html)
	if err != nil || strings.TrimSpace(converted) == "" {
		return strings.TrimSpace(s.Text())
	}
	return strings.Join(strings.Fields(converted), " ")
}

// resolveResultURL unwraps DuckDuckGo redirect links and drops ad links.
func resolveResultURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	if strings.HasSuffix(u.Host, "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		// y.js and other internal links are ads or navigation
		return ""
	}

	return href
}
