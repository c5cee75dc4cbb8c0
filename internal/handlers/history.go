package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/lehigh-university-libraries/picturebook/internal/models"
	"github.com/lehigh-university-libraries/picturebook/internal/storage"
)

type historyItem struct {
	ID           string               `json:"id"`
	CreatedAt    time.Time            `json:"created_at"`
	Image        models.Image         `json:"image"`
	Caption      models.CaptionResult `json:"caption"`
	Style        models.Style         `json:"style"`
	Excerpt      string               `json:"excerpt"`
	Lightweight  bool                 `json:"lightweight"`
	ThumbnailURL string               `json:"thumbnail_url,omitempty"`
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	n := h.display
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, "Invalid n: "+v, http.StatusBadRequest)
			return
		}
		n = parsed
	}

	records, err := h.app.History.Recent(r.Context(), n)
	if err != nil {
		h.writeError(w, "Failed to read history: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		item := historyItem{
			ID:          rec.ID,
			CreatedAt:   rec.CreatedAt,
			Image:       rec.Image,
			Caption:     rec.Caption,
			Style:       rec.Style,
			Excerpt:     excerpt(rec.Story.Text, h.excerptChars),
			Lightweight: rec.Lightweight,
		}
		if len(rec.Thumbnail) > 0 {
			item.ThumbnailURL = thumbnailURL(rec.ID)
		}
		items = append(items, item)
	}
	h.writeJSON(w, items)
}

func (h *Handler) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.History.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}
	if len(rec.Thumbnail) == 0 {
		h.writeError(w, "Thumbnail not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := w.Write(rec.Thumbnail); err != nil {
		slog.Error("Unable to write thumbnail", "id", rec.ID, "err", err)
	}
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = storage.FormatParquet
	}
	switch format {
	case storage.FormatParquet, storage.FormatJSONL, storage.FormatYAML:
	default:
		h.writeError(w, "Unsupported format: "+format, http.StatusBadRequest)
		return
	}

	// buffered so a failed export can still become an error response
	var buf bytes.Buffer
	n, err := storage.Export(r.Context(), h.app.History, &buf, format)
	if err != nil {
		h.writeError(w, "Export failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	contentType, ext := storage.ContentType(format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="picturebook-history%s"`, ext))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Unable to write export", "format", format, "records", n, "err", err)
	}
}

func thumbnailURL(id string) string {
	return "/api/history/" + id + "/thumbnail"
}

// excerpt truncates text to at most n runes, adding an ellipsis when cut.
func excerpt(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "…"
}
