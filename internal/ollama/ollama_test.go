package ollama

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lehigh-university-libraries/picturebook/internal/providers"
)

func TestGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(`{"response":"a red kite over a beach","done":true}`))
	}))
	defer srv.Close()

	o := New(srv.URL+"/", srv.Client())
	text, err := o.Generate(t.Context(), providers.Config{
		Model:       "moondream",
		Prompt:      "describe",
		Temperature: 0.8,
		MaxTokens:   50,
		Images:      [][]byte{[]byte("img")},
		Stop:        []string{"<|endoftext|>"},
		Raw:         true,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "a red kite over a beach" {
		t.Errorf("unexpected text %q", text)
	}

	if got["model"] != "moondream" || got["stream"] != false || got["raw"] != true {
		t.Errorf("unexpected request %v", got)
	}
	images, _ := got["images"].([]any)
	if len(images) != 1 || images[0] != "aW1n" {
		t.Errorf("expected base64 image, got %v", got["images"])
	}
	options, _ := got["options"].(map[string]any)
	if options["num_predict"] != float64(50) || options["temperature"] != 0.8 {
		t.Errorf("unexpected options %v", options)
	}
}

func TestGenerateNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model runner crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).Generate(t.Context(), providers.Config{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llava:13b" {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"details":{"family":"llama"}}`))
	}))
	defer srv.Close()

	o := New(srv.URL, srv.Client())
	if err := o.Probe(t.Context(), "llava:13b"); err != nil {
		t.Errorf("expected probe success, got %v", err)
	}
	err := o.Probe(t.Context(), "missing")
	if !errors.Is(err, providers.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}
