package http

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"github.com/couchcryptid/farm-protest-map/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	indexTemplate = "index.html"
	pageTitle     = "Overview map of Farm Protests in Europe 2023-2024 by Protest Reasons"
)

var embeddedIndex = template.Must(template.New(indexTemplate).ParseFS(templateFS, "templates/"+indexTemplate))

// pages renders the dashboard page. In reload mode the template is parsed
// again on every request so edits show up without a restart.
type pages struct {
	reload bool
	source fs.FS
}

func newPages(reload bool, dir string) *pages {
	var source fs.FS
	if dir != "" {
		source = os.DirFS(dir)
	} else {
		source, _ = fs.Sub(templateFS, "templates")
	}
	return &pages{reload: reload, source: source}
}

func (p *pages) index() (*template.Template, error) {
	if !p.reload {
		return embeddedIndex, nil
	}
	t, err := template.New(indexTemplate).ParseFS(p.source, indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", indexTemplate, err)
	}
	return t, nil
}

type indexData struct {
	Title      string
	Categories []domain.Category
	Default    string
	Marks      []weekMark
	Steps      int
	Scene      domain.Scene
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	tmpl, err := s.pages.index()
	if err != nil {
		s.logger.Error("load page template", "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	table := s.manager.Table()
	scene, err := s.manager.Scene(1, domain.AllProtests)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, indexData{
		Title:      pageTitle,
		Categories: domain.Categories(),
		Default:    domain.AllProtests,
		Marks:      weekMarks(table.Weeks()),
		Steps:      table.Steps(),
		Scene:      scene,
	}); err != nil {
		s.logger.Error("render page", "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
