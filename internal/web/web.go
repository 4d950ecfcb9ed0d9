// Package web renders the console page shells. Data is loaded by the page script from
// the JSON API; the server only fills in identity, CSRF token and page metadata.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page is one console page reachable from the navigation.
type Page struct {
	Path     string
	Title    string
	Resource string
}

var ConsolePages = []Page{
	{Path: "/admin", Title: "Dashboard"},
	{Path: "/admin/manage-users", Title: "Manage Users", Resource: "users"},
	{Path: "/admin/manage-collaborations", Title: "Manage Collaborations", Resource: "collaborations"},
	{Path: "/admin/reports", Title: "Reports", Resource: "reports"},
	{Path: "/admin/audit-log", Title: "Audit Log"},
}

type ConsoleData struct {
	Page      Page
	Nav       []Page
	AdminName string
	Email     string
	CSRFToken string
}

type LoginData struct {
	Error string
	Email string
}

type Pages struct {
	tmpl *template.Template
}

func New() (*Pages, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Pages{tmpl: tmpl}, nil
}

func (p *Pages) RenderLogin(w http.ResponseWriter, data LoginData) error {
	return p.render(w, "login.html", data)
}

func (p *Pages) RenderConsole(w http.ResponseWriter, data ConsoleData) error {
	if data.Nav == nil {
		data.Nav = ConsolePages
	}
	return p.render(w, "console.html", data)
}

func (p *Pages) render(w http.ResponseWriter, name string, data any) error {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded page script.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
