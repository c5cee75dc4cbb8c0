package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lehigh-university-libraries/picturebook/internal/captioning"
	"github.com/lehigh-university-libraries/picturebook/internal/images"
	"github.com/lehigh-university-libraries/picturebook/internal/loader"
	"github.com/lehigh-university-libraries/picturebook/internal/pipeline"
	"github.com/lehigh-university-libraries/picturebook/internal/storage"
	"github.com/lehigh-university-libraries/picturebook/internal/storytelling"
)

type Handler struct {
	app          *pipeline.App
	display      int
	excerptChars int
}

func New(app *pipeline.App, display, excerptChars int) *Handler {
	if display <= 0 {
		display = 3
	}
	return &Handler{
		app:          app,
		display:      display,
		excerptChars: excerptChars,
	}
}

// Routes returns the chi router with every endpoint mounted.
func (h *Handler) Routes(requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/", h.HandleIndex)
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/stories", h.HandleStories)
		r.Get("/styles", h.HandleStyles)
		r.Get("/history", h.HandleHistory)
		r.Get("/history/export", h.HandleExport)
		r.Get("/history/{id}/thumbnail", h.HandleThumbnail)
	})

	return r
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message, "status", code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		slog.Error("Unable to encode error response", "err", err)
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidLength),
		errors.Is(err, pipeline.ErrNoImage),
		errors.Is(err, images.ErrFetch),
		errors.Is(err, images.ErrDecode),
		errors.Is(err, images.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, loader.ErrLoadFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	}

	var de *captioning.DescribeError
	var ge *storytelling.GenerateError
	if errors.As(err, &de) || errors.As(err, &ge) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
