package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lehigh-university-libraries/picturebook/internal/providers"
	"google.golang.org/api/option"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	apiKey string
}

var _ providers.Provider = &Gemini{}

// New returns a new Gemini provider
func New(apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	return &Gemini{apiKey: apiKey}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Generate sends the prompt and images as one content request
func (g *Gemini) Generate(ctx context.Context, config providers.Config) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(config.Model)
	model.SetTemperature(float32(config.Temperature))
	model.SetCandidateCount(1)
	if config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(config.MaxTokens))
	}
	if len(config.Stop) > 0 {
		model.StopSequences = config.Stop
	}

	parts := []genai.Part{genai.Text(config.Prompt)}
	for _, img := range config.Images {
		parts = append(parts, genai.ImageData(imageFormat(img), img))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}

	return "", fmt.Errorf("unexpected response format from Gemini")
}

// Probe fetches the model metadata
func (g *Gemini) Probe(ctx context.Context, model string) error {
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	if _, err := client.GenerativeModel(model).Info(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", providers.ErrModelUnavailable, model, err)
	}
	return nil
}

// imageFormat returns the subtype genai.ImageData expects, e.g. "jpeg".
func imageFormat(data []byte) string {
	mime := http.DetectContentType(data)
	if sub, ok := strings.CutPrefix(mime, "image/"); ok {
		return sub
	}
	return "jpeg"
}
