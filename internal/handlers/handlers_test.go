package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/picturebook/internal/captioning"
	"github.com/lehigh-university-libraries/picturebook/internal/config"
	"github.com/lehigh-university-libraries/picturebook/internal/images"
	"github.com/lehigh-university-libraries/picturebook/internal/loader"
	"github.com/lehigh-university-libraries/picturebook/internal/models"
	"github.com/lehigh-university-libraries/picturebook/internal/pipeline"
	"github.com/lehigh-university-libraries/picturebook/internal/providers"
	"github.com/lehigh-university-libraries/picturebook/internal/storage"
	"github.com/lehigh-university-libraries/picturebook/internal/storytelling"
)

type fakeProvider struct {
	unavailable bool
	missing     map[string]bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, config providers.Config) (string, error) {
	if len(config.Images) > 0 {
		return "a lighthouse on a rocky shore", nil
	}
	return "The keeper lit the lamp one last time.", nil
}

func (f *fakeProvider) Probe(ctx context.Context, model string) error {
	if f.unavailable || f.missing[model] {
		return providers.ErrModelUnavailable
	}
	return nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := range 40 {
		img.Set(x, x%30, color.RGBA{0, 0, 255, 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, fake *fakeProvider) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	app := &pipeline.App{
		Loader: loader.New(cfg,
			loader.WithFactory(func(string) (providers.Provider, error) { return fake, nil }),
			loader.WithNotifier(loader.NotifierFunc(func(loader.Event) {})),
		),
		Fetcher:          images.NewFetcher(time.Second, 1024*1024),
		History:          storage.NewMemoryStore(0),
		InferenceTimeout: 5 * time.Second,
		ThumbnailPx:      16,
		MaxUploadBytes:   1024 * 1024,
	}
	srv := httptest.NewServer(New(app, 3, 20).Routes(time.Minute))
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, url, filename string, data []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	mw.Close()

	resp, err := http.Post(url+"/api/stories", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStoriesUpload(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{})

	resp := upload(t, srv.URL, "shore.png", testPNG(t), map[string]string{"style": "suspense", "length": "100"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got storyResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Image.Format != "png" || got.Image.Width != 40 || got.Image.Height != 30 {
		t.Errorf("unexpected image info %+v", got.Image)
	}
	if got.Caption.Text != "a lighthouse on a rocky shore" {
		t.Errorf("caption = %q", got.Caption.Text)
	}
	if !strings.Contains(got.Story.Text, got.Caption.Text) || got.Story.TargetLength != 100 {
		t.Errorf("unexpected story %+v", got.Story)
	}
	if got.Degraded {
		t.Error("all models loaded, response should not be degraded")
	}

	// history
	hresp, err := http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	defer hresp.Body.Close()
	var items []historyItem
	if err := json.NewDecoder(hresp.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != got.ID {
		t.Fatalf("unexpected history %+v", items)
	}
	if !strings.HasSuffix(items[0].Excerpt, "…") {
		t.Errorf("excerpt %q should be truncated", items[0].Excerpt)
	}

	// thumbnail
	tresp, err := http.Get(srv.URL + got.ThumbnailURL)
	if err != nil {
		t.Fatal(err)
	}
	defer tresp.Body.Close()
	if tresp.StatusCode != http.StatusOK || tresp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("thumbnail status %d type %s", tresp.StatusCode, tresp.Header.Get("Content-Type"))
	}
}

func TestStoriesCaptionFallbackIsDegraded(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{missing: map[string]bool{"llava:13b": true}})

	resp := upload(t, srv.URL, "shore.png", testPNG(t), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got storyResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Degraded {
		t.Error("response should be degraded when the captioner fell back")
	}
	if got.Caption.Model != "gpt-4o" {
		t.Errorf("caption model = %q, want the fallback gpt-4o", got.Caption.Model)
	}
}

func TestStoriesErrors(t *testing.T) {
	tests := []struct {
		name     string
		fake     *fakeProvider
		filename string
		data     []byte
		fields   map[string]string
		want     int
	}{
		{"corrupt", &fakeProvider{}, "a.png", []byte("nope"), nil, http.StatusBadRequest},
		{"bad extension", &fakeProvider{}, "a.bmp", []byte("nope"), nil, http.StatusBadRequest},
		{"bad length", &fakeProvider{}, "a.png", nil, map[string]string{"length": "125"}, http.StatusBadRequest},
		{"non numeric length", &fakeProvider{}, "a.png", nil, map[string]string{"length": "long"}, http.StatusBadRequest},
		{"models unavailable", &fakeProvider{unavailable: true}, "a.png", nil, nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.fake)
			data := tt.data
			if data == nil {
				data = testPNG(t)
			}
			resp := upload(t, srv.URL, tt.filename, data, tt.fields)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["error"] == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestStoriesJSONRequiresURL(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{})
	resp, err := http.Post(srv.URL+"/api/stories", "application/json", strings.NewReader(`{"style":"fable"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStylesAndHealth(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{})

	resp, err := http.Get(srv.URL + "/api/styles")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var styles struct {
		Styles        []map[string]string `json:"styles"`
		DefaultStyle  string              `json:"default_style"`
		DefaultLength int                 `json:"default_length"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&styles); err != nil {
		t.Fatal(err)
	}
	if len(styles.Styles) != 5 || styles.DefaultStyle != "adventure" || styles.DefaultLength != 150 {
		t.Errorf("unexpected styles response %+v", styles)
	}

	for _, path := range []string{"/healthcheck", "/", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestExportAndMissingThumbnail(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{})
	upload(t, srv.URL, "a.png", testPNG(t), nil)

	resp, err := http.Get(srv.URL + "/api/history/export?format=jsonl")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "application/x-ndjson" {
		t.Errorf("Content-Type = %s", resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(srv.URL + "/api/history/export?format=csv")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("csv export status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/history/missing/thumbnail")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing thumbnail status = %d", resp.StatusCode)
	}
}

// brokenHistory fails every full read.
type brokenHistory struct {
	storage.History
}

func (brokenHistory) All(context.Context) ([]models.HistoryRecord, error) {
	return nil, errors.New("disk gone")
}

func TestExportFailureIsCleanError(t *testing.T) {
	h := New(&pipeline.App{History: brokenHistory{storage.NewMemoryStore(0)}}, 3, 20)

	for _, format := range []string{storage.FormatParquet, storage.FormatJSONL, storage.FormatYAML} {
		t.Run(format, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleExport(rec, httptest.NewRequest(http.MethodGet, "/api/history/export?format="+format, nil))

			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", ct)
			}
			if cd := rec.Header().Get("Content-Disposition"); cd != "" {
				t.Errorf("failed export should not be an attachment, got %q", cd)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not a single JSON error: %v (%q)", err, rec.Body.String())
			}
			if !strings.Contains(body["error"], "disk gone") {
				t.Errorf("error = %q", body["error"])
			}
		})
	}
}

func TestExportParquetLength(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{})
	upload(t, srv.URL, "a.png", testPNG(t), nil)

	resp, err := http.Get(srv.URL + "/api/history/export")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/vnd.apache.parquet" {
		t.Fatalf("status %d type %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp.ContentLength != int64(len(data)) || !bytes.HasPrefix(data, []byte("PAR1")) {
		t.Errorf("Content-Length %d, read %d bytes", resp.ContentLength, len(data))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", pipeline.ErrInvalidLength), http.StatusBadRequest},
		{fmt.Errorf("x: %w", images.ErrFetch), http.StatusBadRequest},
		{&loader.LoadError{}, http.StatusServiceUnavailable},
		{&captioning.DescribeError{Err: errors.New("boom")}, http.StatusBadGateway},
		{&pipeline.StageError{Err: &storytelling.GenerateError{Err: errors.New("boom")}}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	if got := excerpt("héllo world", 5); got != "héllo…" {
		t.Errorf("excerpt = %q", got)
	}
	if got := excerpt("short", 10); got != "short" {
		t.Errorf("excerpt = %q", got)
	}
}
