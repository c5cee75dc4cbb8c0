package providers

import (
	"context"
	"errors"
)

// ErrModelUnavailable is returned by Probe when the provider cannot serve the
// requested model.
var ErrModelUnavailable = errors.New("model unavailable")

// Config represents a single generation request to an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string

	// Images are raw encoded images (JPEG, PNG, ...) sent alongside the prompt.
	Images [][]byte

	// MaxTokens caps the generated length. Zero leaves the provider default.
	MaxTokens int

	// Candidates is the number of samples requested. Only the first is used.
	Candidates int

	// Stop sequences end generation early.
	Stop []string

	// Raw disables any chat template so the model continues Prompt verbatim.
	Raw bool
}

// Provider defines the interface for an LLM provider
type Provider interface {
	// Name returns the provider name, e.g. "ollama"
	Name() string

	// Generate returns the first generated text for config.
	Generate(ctx context.Context, config Config) (string, error)

	// Probe checks that model can be served, without generating anything.
	Probe(ctx context.Context, model string) error
}
