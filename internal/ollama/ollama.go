package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/picturebook/internal/providers"
)

// Ollama is a provider for a local or remote Ollama server
type Ollama struct {
	baseURL string
	client  *http.Client
}

var _ providers.Provider = &Ollama{}

// New returns a new Ollama provider. A nil client uses http.DefaultClient.
func New(baseURL string, client *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

func (o *Ollama) Name() string { return "ollama" }

// Generate runs a non-streaming /api/generate request
func (o *Ollama) Generate(ctx context.Context, config providers.Config) (string, error) {
	options := map[string]any{
		"temperature": config.Temperature,
	}
	if config.MaxTokens > 0 {
		options["num_predict"] = config.MaxTokens
	}
	if len(config.Stop) > 0 {
		options["stop"] = config.Stop
	}

	body := map[string]any{
		"model":   config.Model,
		"prompt":  config.Prompt,
		"stream":  false,
		"options": options,
	}
	if config.Raw {
		body["raw"] = true
	}
	if len(config.Images) > 0 {
		images := make([]string, len(config.Images))
		for i, img := range config.Images {
			images[i] = base64.StdEncoding.EncodeToString(img)
		}
		body["images"] = images
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := o.post(ctx, "/api/generate", body, &response); err != nil {
		return "", err
	}
	return response.Response, nil
}

// Probe asks /api/show whether the model has been pulled
func (o *Ollama) Probe(ctx context.Context, model string) error {
	var response struct {
		Details struct {
			Family string `json:"family"`
		} `json:"details"`
	}
	if err := o.post(ctx, "/api/show", map[string]any{"model": model}, &response); err != nil {
		return fmt.Errorf("%w: %s: %w", providers.ErrModelUnavailable, model, err)
	}
	return nil
}

func (o *Ollama) post(ctx context.Context, path string, body any, out any) error {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
