package handlers

import (
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/models"
	"github.com/ternarybob/equityresearch/pages"
)

// Form defaults shown on first load
const (
	DefaultCompany          = "Reliance Industries"
	DefaultTicker           = "RELIANCE.NS"
	DefaultDocumentFilename = "reliance.pdf"
)

// PageData is the view model for index.html
type PageData struct {
	Page             string
	Title            string
	Company          string
	Ticker           string
	DocumentFilename string
	ReportsDir       string
	Provider         string
	Model            string
	Running          bool
	Warning          string
	Error            string
	Report           *models.Report
	ReportHTML       template.HTML
}

type PageHandler struct {
	logger     arbor.ILogger
	templates  *template.Template
	static     http.Handler
	runner     ResearchRunner
	reportsDir string
	provider   string
	model      string
}

func NewPageHandler(runner ResearchRunner, reportsDir, provider, model string, logger arbor.ILogger) (*PageHandler, error) {
	templates, err := template.ParseFS(pages.FS, "*.html", "partials/*.html")
	if err != nil {
		return nil, err
	}

	static, err := fs.Sub(pages.FS, "static")
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		logger:     logger,
		templates:  templates,
		static:     http.StripPrefix("/static/", http.FileServer(http.FS(static))),
		runner:     runner,
		reportsDir: reportsDir,
		provider:   provider,
		model:      model,
	}, nil
}

// NewPageData returns the view model with the form defaults filled in
func (h *PageHandler) NewPageData(pageName string) PageData {
	return PageData{
		Page:             pageName,
		Title:            common.AppName,
		Company:          DefaultCompany,
		Ticker:           DefaultTicker,
		DocumentFilename: DefaultDocumentFilename,
		ReportsDir:       filepath.Base(filepath.Clean(h.reportsDir)),
		Provider:         h.provider,
		Model:            h.model,
		Running:          h.runner.Status().State == models.RunStateRunning,
	}
}

// ServePage creates a handler function for serving a specific page template
func (h *PageHandler) ServePage(templateName string, pageName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !RequireMethod(w, r, http.MethodGet) {
			return
		}
		h.Render(w, templateName, h.NewPageData(pageName))
	}
}

// Render executes a template with data
func (h *PageHandler) Render(w http.ResponseWriter, templateName string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, templateName, data); err != nil {
		h.logger.Error().
			Err(err).
			Str("template", templateName).
			Msg("Failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// StaticFileHandler serves static files (CSS, JS)
func (h *PageHandler) StaticFileHandler(w http.ResponseWriter, r *http.Request) {
	h.static.ServeHTTP(w, r)
}
