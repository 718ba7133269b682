package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// UI page; "/" also catches unknown paths and the page handler 404s them
	mux.HandleFunc("/", s.app.PageHandler.ServePage("index.html", "index"))
	mux.HandleFunc("/research", MethodRouter{http.MethodPost: s.app.ResearchHandler.SubmitFormHandler}.Handle())

	// Static files (CSS, JS)
	mux.HandleFunc("/static/", s.app.PageHandler.StaticFileHandler)

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - research runs and report export
	mux.HandleFunc("/api/research", MethodRouter{http.MethodPost: s.app.ResearchHandler.RunHandler}.Handle())
	mux.HandleFunc("/api/report/download", MethodRouter{http.MethodPost: s.app.ResearchHandler.DownloadMarkdownHandler}.Handle())
	mux.HandleFunc("/api/report/pdf", MethodRouter{http.MethodPost: s.app.ResearchHandler.DownloadPDFHandler}.Handle())

	// API routes - system
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
