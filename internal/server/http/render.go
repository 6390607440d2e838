package httpserver

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// renderer executes the embedded page templates and converts Markdown for share pages.
type renderer struct {
	pages *template.Template
	md    goldmark.Markdown
	log   *zap.Logger
}

func newRenderer(log *zap.Logger) (*renderer, error) {
	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	// raw HTML in notes is escaped: goldmark's unsafe mode stays off
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return &renderer{pages: pages, md: md, log: log}, nil
}

// page renders name into a buffer first so template errors never produce half a page.
func (rd *renderer) page(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := rd.pages.ExecuteTemplate(&buf, name, data); err != nil {
		rd.log.Error("render", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (rd *renderer) notFound(w http.ResponseWriter) {
	rd.page(w, http.StatusNotFound, "404.html", pageData{Title: "404"})
}

func (rd *renderer) failure(w http.ResponseWriter) {
	rd.page(w, http.StatusInternalServerError, "error.html", pageData{Title: "Error"})
}

// markdown converts src to sanitized HTML.
func (rd *renderer) markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := rd.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil //nolint:gosec // goldmark escapes raw HTML by default
}

type pageData struct {
	Title    string
	Path     string
	Content  string
	Mode     string
	Shared   bool
	ShareURL string
	HTML     template.HTML
	Rows     []listRow
}

type listRow struct {
	Path     string
	Name     string
	Modified string
}
