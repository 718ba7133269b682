package interfaces

import (
	"context"

	"github.com/ternarybob/equityresearch/internal/models"
)

// WebSearchService runs free-text web searches
type WebSearchService interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

// MarketService fetches company metadata by ticker
type MarketService interface {
	GetCompanyProfile(ctx context.Context, ticker string) (*models.CompanyProfile, error)
}

// DocumentParser extracts text from a document on disk.
// Implementations may split a file into several documents.
type DocumentParser interface {
	Parse(ctx context.Context, path string) ([]models.ParsedDocument, error)
	Name() string
}

// PDFService renders markdown reports to PDF
type PDFService interface {
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)
}
