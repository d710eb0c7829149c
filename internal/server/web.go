package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/klicker/internal/timer"
)

//go:embed web/index.html
var webFS embed.FS

var indexTemplate = template.Must(template.ParseFS(webFS, "web/index.html"))

type indexData struct {
	Title        string
	LimitMinutes int
}

// handleIndex handles GET / and serves the presenter page.
func (s *SessionServer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	data := indexData{Title: "Clicker Remote", LimitMinutes: timer.DefaultLimitMinutes}
	if err := indexTemplate.Execute(w, data); err != nil {
		slog.Error("failed to render presenter page", "error", err)
	}
}
