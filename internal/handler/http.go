package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sprintboard/internal/domain"
	"github.com/sprintboard/internal/websocket"
)

// Registrar is the service surface the HTTP API exposes
type Registrar interface {
	Register(ctx context.Context, reg domain.Registration) (*domain.RegistrationResult, error)
	RankPreview(ctx context.Context, country string, timeSec float64) (int64, error)
	Boards(ctx context.Context, country string) ([]domain.Row, []domain.Row, error)
	Result(ctx context.Context, id int64) (*domain.Row, error)
	RemoveResult(ctx context.Context, id int64) error
}

// Handler provides HTTP handlers for the registration API
type Handler struct {
	service Registrar
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service Registrar, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint for live board updates
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Get("/rank_preview", h.RankPreview)
		r.Get("/leaderboards/{country}", h.GetBoards)
		r.Get("/results/{id}", h.GetResult)
		r.Delete("/results/{id}", h.RemoveResult)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeText writes a plain-text error body. The capture page reads this
// body verbatim and shows it inline, so no JSON envelope here.
func (h *Handler) writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Register handles a combined QR-plus-participant registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var reg domain.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		h.writeText(w, http.StatusBadRequest, domain.ErrInvalidRequest.Error())
		return
	}

	result, err := h.service.Register(r.Context(), reg)
	if err != nil {
		if domain.IsUserError(err) {
			h.writeText(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to register result", "error", err)
		h.writeText(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// RankPreview returns a best-effort rank estimate for a country and time
func (h *Handler) RankPreview(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	timeSec, err := strconv.ParseFloat(r.URL.Query().Get("time"), 64)
	if country == "" || err != nil || timeSec <= 0 {
		h.writeText(w, http.StatusBadRequest, domain.ErrInvalidRequest.Error())
		return
	}

	rank, err := h.service.RankPreview(r.Context(), country, timeSec)
	if err != nil {
		h.logger.Error("failed to compute rank preview", "country", country, "error", err)
		h.writeText(w, http.StatusInternalServerError, domain.ErrInternalError.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, domain.RankPreview{Rank: &rank})
}

// GetResult returns a single stored result by id
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeText(w, http.StatusBadRequest, domain.ErrInvalidRequest.Error())
		return
	}

	row, err := h.service.Result(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrResultNotFound) {
			h.writeText(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("failed to load result", "result_id", id, "error", err)
		h.writeText(w, http.StatusInternalServerError, domain.ErrInternalError.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, row)
}

// RemoveResult withdraws a stored result from the boards
func (h *Handler) RemoveResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeText(w, http.StatusBadRequest, domain.ErrInvalidRequest.Error())
		return
	}

	if err := h.service.RemoveResult(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrResultNotFound) {
			h.writeText(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("failed to remove result", "result_id", id, "error", err)
		h.writeText(w, http.StatusInternalServerError, domain.ErrInternalError.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetBoards returns the current country and global board slices
func (h *Handler) GetBoards(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	if country == "" {
		h.writeText(w, http.StatusBadRequest, domain.ErrInvalidRequest.Error())
		return
	}

	boardCountry, boardGlobal, err := h.service.Boards(r.Context(), country)
	if err != nil {
		h.logger.Error("failed to load boards", "country", country, "error", err)
		h.writeText(w, http.StatusInternalServerError, domain.ErrInternalError.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard_country": boardCountry,
		"leaderboard_global":  boardGlobal,
	})
}
