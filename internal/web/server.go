package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/coursedeck/internal/domain"
	"github.com/conorfennell/coursedeck/internal/library"
	"github.com/conorfennell/coursedeck/internal/progress"
	"github.com/conorfennell/coursedeck/internal/storage"
	"github.com/conorfennell/coursedeck/internal/study"
	decksync "github.com/conorfennell/coursedeck/internal/sync"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

const userCookie = "coursedeck_user"

// Store is the read side of storage the server needs.
type Store interface {
	ListDecks(ctx context.Context) ([]storage.DeckSummary, error)
	FindCard(ctx context.Context, deck, hash string) (*domain.Card, error)
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	DeleteSource(ctx context.Context, sourceID int64) error
}

// Deps are the collaborators of a Server.
type Deps struct {
	Store   Store
	Study   *study.Service
	Syncer  *decksync.Syncer
	Library *library.Library
	Log     *slog.Logger
	// DefaultUser, when set, is used for every request instead of a cookie.
	DefaultUser string
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	Deps
	router    chi.Router
	templates *template.Template
	validate  *validator.Validate
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) (*Server, error) {
	tpl, err := template.New("").Funcs(template.FuncMap{
		"weight":   func(w float64) string { return strconv.FormatFloat(w, 'f', 2, 64) },
		"mastered": func(score int) bool { return score >= progress.MaxScore },
	}).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	deps.Log = deps.Log.With("component", "web")

	s := &Server{
		Deps:      deps,
		router:    chi.NewRouter(),
		templates: tpl,
		validate:  validator.New(),
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub-filesystem for static assets: %w", err)
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	r.Handle("/pdfs/originals/*", http.StripPrefix("/pdfs/originals/", http.FileServer(http.Dir(s.Library.OriginalsDir()))))
	r.Handle("/pdfs/uploads/*", http.StripPrefix("/pdfs/uploads/", http.FileServer(http.Dir(s.Library.UploadsDir()))))

	r.Group(func(r chi.Router) {
		r.Use(s.withUser)

		r.Get("/", s.handleIndex)
		r.Post("/pdfs", s.handleUpload)

		// HTMX-based practice routes
		r.Get("/decks/progress", s.handleDeckProgress)
		r.Get("/review/next", s.handleGetNextReview)
		r.Get("/review/answer/{hash}", s.handleShowAnswer)
		r.Post("/review/{hash}", s.handlePostReview)

		// Source management routes
		r.Get("/sources", s.handleGetSources)
		r.Post("/sources", s.handlePostSource)
		r.Delete("/sources/{id}", s.handleDeleteSource)
		r.Post("/sync", s.handlePostSync)
	})
	return nil
}

type userKey struct{}

// withUser resolves the user identity: the configured default user, or an
// anonymous id kept in a cookie.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := s.DefaultUser
		if user == "" {
			if c, err := r.Cookie(userCookie); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					user = id.String()
				}
			}
		}
		if user == "" {
			user = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     userCookie,
				Value:    user,
				Path:     "/",
				MaxAge:   int((5 * 365 * 24 * time.Hour).Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.Log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// render executes a template into a buffer so a failing template never
// leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.Log.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// fail maps an error to a response. Storage failures halt the practice
// flow rather than showing guessed progress.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrStorageCorrupt):
		status = http.StatusServiceUnavailable
		msg = "Progress storage is unavailable"
	case errors.Is(err, domain.ErrInvalidOutcome):
		status = http.StatusBadRequest
	case errors.Is(err, library.ErrNotPDF):
		status = http.StatusBadRequest
	case errors.Is(err, library.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	}
	s.Log.Error(msg, "error", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
	http.Error(w, msg, status)
}
