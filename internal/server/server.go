// Package server wires the HTTP routes of the site to the post, like and
// account operations.
package server

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"loggym/internal/auth"
	"loggym/internal/logging"
	"loggym/internal/metrics"
	"loggym/internal/models"
	"loggym/internal/session"
	"loggym/web"
)

type Server struct {
	DB       *sqlx.DB
	Sessions *session.Manager
	Log      *logrus.Logger

	tmpl    map[string]*template.Template
	static  fs.FS
	handler http.Handler
}

// New builds a server using the embedded templates and static assets.
func New(db *sqlx.DB, sessions *session.Manager, log *logrus.Logger) (*Server, error) {
	return NewWithFS(db, sessions, log, web.Templates(), web.Static())
}

// NewWithFS is New with explicit template and asset trees. templates must
// hold layout.html plus one file per page.
func NewWithFS(db *sqlx.DB, sessions *session.Manager, log *logrus.Logger, templates, static fs.FS) (*Server, error) {
	tmpl, err := parseTemplates(templates)
	if err != nil {
		return nil, err
	}
	s := &Server{DB: db, Sessions: sessions, Log: log, tmpl: tmpl, static: static}
	s.handler = s.logRequests(s.recoverPanics(s.routes()))
	return s, nil
}

var templateFuncs = template.FuncMap{
	"date": func(t models.Timestamp) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("02/01/2006")
	},
	"excerpt":    excerpt,
	"pathEscape": url.PathEscape,
}

func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	pages, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, err
	}
	templates := map[string]*template.Template{}
	for _, page := range pages {
		if page == "layout.html" {
			continue
		}
		t, err := template.New(page).Funcs(templateFuncs).ParseFS(fsys, "layout.html", page)
		if err != nil {
			return nil, err
		}
		templates[strings.TrimSuffix(page, ".html")] = t
	}
	return templates, nil
}

func (s *Server) routes() http.Handler {
	// Slugs may contain an escaped "/", so {slug} is matched on the raw path
	// and unescaped by lookupPost.
	r := mux.NewRouter().UseEncodedPath()
	r.Use(metrics.InstrumentHandler, s.loadCurrentUser)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/post/{slug}", s.handlePost).Methods(http.MethodGet)
	r.HandleFunc("/post/{slug}/curtir", s.requireAuth(s.handleToggleLike)).Methods(http.MethodPost)
	r.HandleFunc("/admin/novo", s.requireAuth(s.handleNewPost)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/admin/{slug}/editar", s.requireAuth(s.handleEditPost)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/admin/{slug}/excluir", s.requireAuth(s.handleDeletePost)).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/registrar", s.handleRegister).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", s.requireAuth(s.handleLogout)).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(s.static))))

	// Router middleware only runs for matched routes.
	r.NotFoundHandler = s.loadCurrentUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound)
	}))
	r.MethodNotAllowedHandler = s.loadCurrentUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusMethodNotAllowed)
	}))
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// render executes the named page inside the layout. The page is buffered so
// a template error still produces a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	t, ok := s.tmpl[name]
	if !ok {
		logging.FromContext(r.Context()).WithField("template", name).Error("template not found")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["User"] = auth.UserFrom(r.Context())
	data["Flashes"] = s.Sessions.PopFlashes(w, r)
	data["CurrentYear"] = time.Now().Year()

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField("template", name).Error("render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

var errorMessages = map[int]string{
	http.StatusNotFound:            "Página não encontrada.",
	http.StatusForbidden:           "Você não tem permissão para alterar este post.",
	http.StatusMethodNotAllowed:    "Método não permitido para esta página.",
	http.StatusInternalServerError: "Algo deu errado. Tente novamente em instantes.",
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int) {
	s.render(w, r, status, "error", map[string]any{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Message": errorMessages[status],
	})
}

// serverError logs err and answers with the generic 500 page.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).WithError(err).Error("request failed")
	s.renderError(w, r, http.StatusInternalServerError)
}

func (s *Server) flash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if err := s.Sessions.AddFlash(w, kind, message); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("flash not stored")
	}
}

// excerpt cuts s to at most n runes on a word boundary.
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := string([]rune(s)[:n])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
