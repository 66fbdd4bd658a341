// Package web serves the QR capture page: a participant scans a code,
// lands on the form step with their time prefilled from the URL, enters
// name, age and gender, and on a successful registration sees the
// country and global leaderboards. Two steps, one one-way transition;
// the only way back to the form is a fresh page load.
package web

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sprintboard/internal/apiclient"
	"github.com/sprintboard/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// registrar is the slice of the API client the server submits through
type registrar interface {
	Register(ctx context.Context, reg domain.Registration) (*domain.RegistrationResult, error)
}

// Server renders the capture flow
type Server struct {
	client  registrar
	preview *PreviewFetcher
	tmpl    *template.Template
	logger  *slog.Logger
}

// NewServer creates a capture page server over the given API client
func NewServer(client *apiclient.Client, logger *slog.Logger) *Server {
	return &Server{
		client:  client,
		preview: NewPreviewFetcher(client),
		tmpl:    template.Must(template.ParseFS(templateFS, "templates/*.html")),
		logger:  logger,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.HealthCheck)
	r.Get("/", s.ShowForm)
	r.Post("/register", s.Submit)

	return r
}

// HealthCheck returns frontend health status
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ShowForm renders the form step. The query is parsed exactly once here;
// nothing on the page re-reads the URL afterwards.
func (s *Server) ShowForm(w http.ResponseWriter, r *http.Request) {
	params := ParamsFromValues(r.URL.Query())

	page := formPage{Params: params}
	if rank, ok := s.preview.Fetch(r.Context(), params.Country, params.TimeSeconds()); ok {
		page.PreviewRank = ordinal(rank)
	}

	s.render(w, "form.html", page)
}

// Submit posts the combined payload to the backend. A failure of any kind
// re-renders the form step with the message inline and the entered values
// preserved; success renders the leaderboards step.
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	// QR fields ride through the form as hidden inputs, verbatim.
	params := ParamsFromValues(r.PostForm)
	form := FormState{
		Name:   r.PostForm.Get("name"),
		Age:    r.PostForm.Get("age"),
		Gender: r.PostForm.Get("gender"),
	}

	name := strings.TrimSpace(form.Name)
	if name == "" {
		// The required attribute enforces this in the browser; this is
		// the backstop for direct posts.
		s.render(w, "form.html", formPage{Params: params, Form: form, Error: "name is required"})
		return
	}

	reg := domain.Registration{
		Event:   params.Event,
		Device:  params.Device,
		Country: params.Country,
		Time:    params.Time,
		T:       params.T,
		Nonce:   params.Nonce,
		Sig:     params.Sig,
		Name:    name,
		Age:     parseAge(form.Age),
		Gender:  optional(form.Gender),
	}

	result, err := s.client.Register(r.Context(), reg)
	if err != nil {
		s.logger.Warn("registration failed", "error", err)
		s.render(w, "form.html", formPage{Params: params, Form: form, Error: err.Error()})
		return
	}

	countryTitle := "Top 100 — " + params.CountryDisplay()
	page := buildBoardsPage(result, countryTitle, "Global Top 20", time.Now())
	s.render(w, "leaderboards.html", page)
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template render failed", "template", name, "error", err)
	}
}

// parseAge coerces the age input: blank or non-numeric becomes null,
// never zero, NaN or an empty string in the payload.
func parseAge(raw string) *int {
	age, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &age
}

// optional maps a blank selection to null
func optional(raw string) *string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return &raw
}
