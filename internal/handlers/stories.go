package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/picturebook/internal/config"
	"github.com/lehigh-university-libraries/picturebook/internal/models"
	"github.com/lehigh-university-libraries/picturebook/internal/pipeline"
)

type storyResponse struct {
	ID           string               `json:"id"`
	Image        models.Image         `json:"image"`
	Caption      models.CaptionResult `json:"caption"`
	Story        models.StoryResult   `json:"story"`
	Lightweight  bool                 `json:"lightweight"`
	ThumbnailURL string               `json:"thumbnail_url"`
	Degraded     bool                 `json:"degraded"`
}

func (h *Handler) HandleStories(w http.ResponseWriter, r *http.Request) {
	var (
		req pipeline.Request
		ok  bool
	)
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		req, ok = h.urlRequest(w, r)
	} else {
		req, ok = h.uploadRequest(w, r)
	}
	if !ok {
		return
	}

	result, err := h.app.Run(r.Context(), req)
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, storyResponse{
		ID:           result.Record.ID,
		Image:        result.Image,
		Caption:      result.Caption,
		Story:        result.Story,
		Lightweight:  result.Record.Lightweight,
		ThumbnailURL: thumbnailURL(result.Record.ID),
		Degraded:     result.Degraded,
	})
}

func (h *Handler) urlRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	var request struct {
		ImageURL    string `json:"image_url"`
		Style       string `json:"style"`
		Length      int    `json:"length"`
		Lightweight bool   `json:"lightweight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return pipeline.Request{}, false
	}
	if request.ImageURL == "" {
		h.writeError(w, "image_url is required", http.StatusBadRequest)
		return pipeline.Request{}, false
	}
	return pipeline.Request{
		URL:         request.ImageURL,
		Style:       request.Style,
		Length:      request.Length,
		Lightweight: request.Lightweight,
	}, true
}

func (h *Handler) uploadRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return pipeline.Request{}, false
	}
	defer file.Close()

	limit := h.app.MaxUploadBytes
	if limit <= 0 {
		limit = 10 * 1024 * 1024
	}
	fileData, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return pipeline.Request{}, false
	}

	length := config.DefaultStoryLength
	if v := r.FormValue("length"); v != "" {
		length, err = strconv.Atoi(v)
		if err != nil {
			h.writeError(w, "Invalid length: "+v, http.StatusBadRequest)
			return pipeline.Request{}, false
		}
	}
	lightweight, _ := strconv.ParseBool(r.FormValue("lightweight"))

	return pipeline.Request{
		Image:       fileData,
		Filename:    header.Filename,
		Style:       r.FormValue("style"),
		Length:      length,
		Lightweight: lightweight,
	}, true
}

func (h *Handler) HandleStyles(w http.ResponseWriter, r *http.Request) {
	type style struct {
		Name  models.Style `json:"name"`
		Label string       `json:"label"`
	}
	styles := []style{}
	for _, s := range models.Styles() {
		styles = append(styles, style{Name: s, Label: s.Label()})
	}
	h.writeJSON(w, map[string]any{
		"styles":         styles,
		"default_style":  models.DefaultStyle,
		"min_length":     config.MinStoryLength,
		"max_length":     config.MaxStoryLength,
		"length_step":    config.StoryLengthStep,
		"default_length": config.DefaultStoryLength,
	})
}
