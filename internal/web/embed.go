// Package web renders the server-side essay form page from embedded
// templates and serves its static assets.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/enem-redacao/essay-form/internal/analysis"
	"github.com/enem-redacao/essay-form/internal/form"
	"github.com/enem-redacao/essay-form/internal/i18n"
	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static/*
var staticFiles embed.FS

// IndexTemplate is the name of the form page template.
const IndexTemplate = "index.html"

// DefaultRefreshSeconds is how often a page with a pending submission reloads.
const DefaultRefreshSeconds = 2

// Page is the data passed to the form page template.
type Page struct {
	Lang           string
	Messages       i18n.Messages
	View           form.View
	Services       *analysis.ServicesStatus
	RefreshSeconds int
}

// Renderer implements echo.Renderer over the embedded templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Render executes the named template.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	if p, ok := data.(*Page); ok && p.RefreshSeconds <= 0 {
		p.RefreshSeconds = DefaultRefreshSeconds
	}
	return r.templates.ExecuteTemplate(w, name, data)
}

// StaticFS returns the embedded asset tree rooted at static/.
func StaticFS() (fs.FS, error) {
	return fs.Sub(staticFiles, "static")
}

// RegisterStaticRoutes installs the renderer and serves /static/* from the binary.
func RegisterStaticRoutes(e *echo.Echo) error {
	renderer, err := NewRenderer()
	if err != nil {
		return err
	}
	assets, err := StaticFS()
	if err != nil {
		return err
	}

	e.Renderer = renderer
	e.StaticFS("/static", assets)
	return nil
}
