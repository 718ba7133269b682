package server

import (
	"net/http"
	"strings"
)

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// RouteByMethod routes requests based on HTTP method with standardized error handling
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		w.Header().Set("Allow", routes.allowed())
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handler(w, r)
}

// Handle adapts the router to an http.HandlerFunc
func (m MethodRouter) Handle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, m)
	}
}

func (m MethodRouter) allowed() string {
	methods := make([]string, 0, len(m))
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		if _, ok := m[method]; ok {
			methods = append(methods, method)
		}
	}
	return strings.Join(methods, ", ")
}
