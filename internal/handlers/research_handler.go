package handlers

import (
	"errors"
	"html/template"
	"mime"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/models"
	"github.com/ternarybob/equityresearch/internal/services/agents"
)

// ResearchHandler runs reports for the page and the JSON API
type ResearchHandler struct {
	runner   ResearchRunner
	renderer ReportRenderer
	pages    *PageHandler
	logger   arbor.ILogger
}

func NewResearchHandler(runner ResearchRunner, renderer ReportRenderer, pages *PageHandler, logger arbor.ILogger) *ResearchHandler {
	return &ResearchHandler{
		runner:   runner,
		renderer: renderer,
		pages:    pages,
		logger:   logger,
	}
}

// researchResponse is the JSON body returned by POST /api/research
type researchResponse struct {
	RunID    string `json:"run_id"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
	Filename string `json:"filename"`
}

// reportExport is the body accepted by the download endpoints
type reportExport struct {
	Company  string `json:"company"`
	Markdown string `json:"markdown"`
}

// SubmitFormHandler handles the page form. It blocks until the run ends.
func (h *ResearchHandler) SubmitFormHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	req := models.ResearchRequest{
		Company:          r.PostFormValue("company"),
		Ticker:           r.PostFormValue("ticker"),
		DocumentFilename: r.PostFormValue("document_filename"),
	}

	data := h.pages.NewPageData("index")
	data.Company = req.Company
	data.Ticker = req.Ticker
	data.DocumentFilename = req.DocumentFilename

	if err := h.runner.Validate(&req); err != nil {
		data.Warning = err.Error()
		h.pages.Render(w, "index.html", data)
		return
	}

	report, err := h.runner.Run(r.Context(), req)
	data.Running = false
	switch {
	case errors.Is(err, agents.ErrRunInProgress):
		data.Warning = "A report is already being generated. Please wait for it to finish."
	case err != nil:
		h.logger.Error().Err(err).Str("company", req.Company).Msg("Research run failed")
		data.Error = "An error occurred: " + err.Error()
	default:
		html, renderErr := h.renderer.RenderHTML(report.Markdown)
		if renderErr != nil {
			h.logger.Warn().Err(renderErr).Msg("Failed to render report markdown")
			html = "<pre>" + template.HTMLEscapeString(report.Markdown) + "</pre>"
		}
		data.Report = report
		data.ReportHTML = template.HTML(html)
	}

	h.pages.Render(w, "index.html", data)
}

// RunHandler handles POST /api/research
func (h *ResearchHandler) RunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.ResearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.runner.Validate(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.runner.Run(r.Context(), req)
	if errors.Is(err, agents.ErrRunInProgress) {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	if errors.Is(err, agents.ErrRateLimited) {
		h.logger.Warn().Err(err).Str("company", req.Company).Msg("Research run rate limited")
		WriteError(w, http.StatusTooManyRequests, "An error occurred: "+err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("company", req.Company).Msg("Research run failed")
		WriteError(w, http.StatusInternalServerError, "An error occurred: "+err.Error())
		return
	}

	html, err := h.renderer.RenderHTML(report.Markdown)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to render report markdown")
	}

	WriteJSON(w, http.StatusOK, researchResponse{
		RunID:    report.RunID,
		Markdown: report.Markdown,
		HTML:     html,
		Filename: report.Filename,
	})
}

// DownloadMarkdownHandler echoes the posted markdown back as an attachment
func (h *ResearchHandler) DownloadMarkdownHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	export, ok := h.readExport(w, r)
	if !ok {
		return
	}

	writeAttachment(w, "text/markdown; charset=utf-8", models.ReportFilename(export.Company, "md"), []byte(export.Markdown))
}

// DownloadPDFHandler converts the posted markdown to PDF
func (h *ResearchHandler) DownloadPDFHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	export, ok := h.readExport(w, r)
	if !ok {
		return
	}

	title := strings.TrimSpace(export.Company)
	if title != "" {
		title += " - Company Profile"
	}

	pdf, err := h.renderer.ConvertMarkdownToPDF(export.Markdown, title)
	if err != nil {
		h.logger.Error().Err(err).Str("company", export.Company).Msg("Failed to convert report to PDF")
		WriteError(w, http.StatusInternalServerError, "Failed to generate PDF")
		return
	}

	writeAttachment(w, "application/pdf", models.ReportFilename(export.Company, "pdf"), pdf)
}

// readExport accepts either a JSON body or a url-encoded form
func (h *ResearchHandler) readExport(w http.ResponseWriter, r *http.Request) (reportExport, bool) {
	var export reportExport

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(w, r, &export); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid request body")
			return export, false
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid form data")
			return export, false
		}
		export.Company = r.PostFormValue("company")
		export.Markdown = r.PostFormValue("markdown")
	}

	if strings.TrimSpace(export.Markdown) == "" {
		WriteError(w, http.StatusBadRequest, "markdown is required")
		return export, false
	}
	return export, true
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
