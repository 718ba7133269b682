package handlers

import (
	"context"

	"github.com/ternarybob/equityresearch/internal/models"
	"github.com/ternarybob/equityresearch/internal/services/agents"
)

// ResearchRunner executes report runs
type ResearchRunner interface {
	Validate(req *models.ResearchRequest) error
	Run(ctx context.Context, req models.ResearchRequest) (*models.Report, error)
	Status() agents.Status
}

// ReportRenderer turns report markdown into HTML and PDF
type ReportRenderer interface {
	RenderHTML(markdown string) (string, error)
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)
}
