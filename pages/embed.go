// Package pages holds the HTML templates and static assets served by the web UI.
package pages

import "embed"

// FS contains every page template and the static directory
//
//go:embed *.html partials/*.html static
var FS embed.FS
