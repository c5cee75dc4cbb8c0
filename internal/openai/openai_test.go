package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/picturebook/internal/providers"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [
    {"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "a cat asleep on a windowsill"}}
  ]
}`

func TestNewRequiresKey(t *testing.T) {
	if _, err := New("", "", nil); err == nil {
		t.Error("expected error without API key")
	}
}

func TestGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer srv.Close()

	o, err := New("test-key", srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	text, err := o.Generate(t.Context(), providers.Config{
		Model:       "gpt-4o-mini",
		Prompt:      "Write a short caption for this image.",
		MaxTokens:   50,
		Temperature: 0.2,
		Images:      [][]byte{{0xFF, 0xD8, 0xFF, 0xE0}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "a cat asleep on a windowsill" {
		t.Errorf("unexpected text %q", text)
	}

	if got["model"] != "gpt-4o-mini" {
		t.Errorf("unexpected model %v", got["model"])
	}
	if got["max_tokens"] != float64(50) || got["n"] != float64(1) {
		t.Errorf("unexpected sampling params %v", got)
	}
	messages, _ := got["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %v", got["messages"])
	}
	content, _ := messages[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected text and image parts, got %v", messages[0])
	}
	image, _ := content[1].(map[string]any)["image_url"].(map[string]any)
	if url, _ := image["url"].(string); !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("expected jpeg data url, got %v", image)
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/models/gpt-4o") {
			_, _ = w.Write([]byte(`{"id":"gpt-4o","object":"model","created":0,"owned_by":"openai"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"The model does not exist","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	o, err := New("test-key", srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Probe(t.Context(), "gpt-4o"); err != nil {
		t.Errorf("expected probe success, got %v", err)
	}
	if err := o.Probe(t.Context(), "gpt-2"); !errors.Is(err, providers.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}
