// Package handler contains the HTTP and WebSocket handlers. Handlers parse
// the request, call a service, and write the response; business rules live
// in the service package.
package handler

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/voteboard/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

// anonymousHome is what "/" shows without a session.
const anonymousHome = `You are not logged in | <a href="/login">Login</a>`

// PageHandler renders the HTML pages. Each page is parsed once at startup
// together with base.html, which pulls it in through {{template "content"}}.
type PageHandler struct {
	pages  map[string]*template.Template
	github bool
	logger *slog.Logger
}

type pageData struct {
	Title    string
	Username string
	GitHub   bool
}

// NewPageHandler parses the embedded templates. github toggles the
// "Login with GitHub" link.
func NewPageHandler(github bool, logger *slog.Logger) (*PageHandler, error) {
	h := &PageHandler{pages: make(map[string]*template.Template), github: github, logger: logger}
	for _, name := range []string{"home", "login", "graph", "help_data"} {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("handler: parsing %s template: %w", name, err)
		}
		h.pages[name] = tmpl
	}
	return h, nil
}

// HandleHome shows the voting page to logged-in users.
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	s := auth.SessionFromContext(r.Context())
	if s == nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(anonymousHome))
		return
	}
	h.render(w, r, "home", "Voteboard")
}

func (h *PageHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login", "Login")
}

func (h *PageHandler) HandleGraph(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "graph", "Votes")
}

func (h *PageHandler) HandleHelpData(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "help_data", "Help queue")
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, page, title string) {
	data := pageData{Title: title, GitHub: h.github}
	if s := auth.SessionFromContext(r.Context()); s != nil {
		data.Username = s.Username
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages[page].ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
