// Package storytelling turns a caption and a style into a generated story.
package storytelling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lehigh-university-libraries/picturebook/internal/models"
	"github.com/lehigh-university-libraries/picturebook/internal/providers"
)

// Temperature is the fixed sampling temperature for stories.
const Temperature = 0.8

// MinNewTokens keeps a long prompt from leaving no room for the story.
const MinNewTokens = 20

// ErrNoStoryteller is returned when the story backend did not load.
var ErrNoStoryteller = errors.New("no story generation backend available")

// Backend is implemented by Pipeline and CausalPair only.
type Backend interface {
	Strategy() string
	Provider() string
	Model() string
	complete(ctx context.Context, prompt string, targetLength int) (string, error)
}

// Capabilities exposes the story backend chosen at load time.
type Capabilities interface {
	StoryBackend() Backend
}

// GenerateError is returned for every failed generation attempt.
type GenerateError struct {
	Style models.Style
	Err   error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("story generation failed (%s): %s", e.Style, e.Err)
}

func (e *GenerateError) Unwrap() error { return e.Err }

// Pipeline is the high-level generation variant.
type Pipeline struct {
	Client    providers.Provider
	ModelName string
}

func (p *Pipeline) Strategy() string { return "pipeline" }
func (p *Pipeline) Provider() string { return p.Client.Name() }
func (p *Pipeline) Model() string    { return p.ModelName }

func (p *Pipeline) complete(ctx context.Context, prompt string, targetLength int) (string, error) {
	return p.Client.Generate(ctx, providers.Config{
		Model:       p.ModelName,
		Prompt:      prompt,
		MaxTokens:   targetLength,
		Candidates:  1,
		Temperature: Temperature,
	})
}

// CausalPair is the tokenizer plus causal language model variant. The model
// continues the raw prompt with no chat template.
type CausalPair struct {
	Tokenizer *Tokenizer
	Client    providers.Provider
	ModelName string
}

func (c *CausalPair) Strategy() string { return "causal" }
func (c *CausalPair) Provider() string { return c.Client.Name() }
func (c *CausalPair) Model() string    { return c.ModelName }

func (c *CausalPair) complete(ctx context.Context, prompt string, targetLength int) (string, error) {
	newTokens := max(targetLength-c.Tokenizer.Count(prompt), MinNewTokens)

	out, err := c.Client.Generate(ctx, providers.Config{
		Model:       c.ModelName,
		Prompt:      prompt,
		MaxTokens:   newTokens,
		Candidates:  1,
		Temperature: Temperature,
		Stop:        []string{c.Tokenizer.EOS},
		Raw:         true,
	})
	if err != nil {
		return "", err
	}
	return c.Tokenizer.Clean(out), nil
}

// Generate builds the prompt for style and asks the story backend to
// continue it. The returned Text always starts with the prompt.
func Generate(ctx context.Context, caption string, style models.Style, targetLength int, caps Capabilities) (result *models.StoryResult, err error) {
	var backend Backend
	if caps != nil {
		backend = caps.StoryBackend()
	}
	if backend == nil {
		return nil, &GenerateError{Style: style, Err: ErrNoStoryteller}
	}

	if _, known := Template(style); !known {
		slog.Debug("Unknown story style, using generic template", "style", style)
	}
	prompt := BuildPrompt(caption, style)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Story backend panicked", "strategy", backend.Strategy(), "panic", r)
			result = nil
			err = &GenerateError{Style: style, Err: fmt.Errorf("backend panic: %v", r)}
		}
	}()

	out, err := backend.complete(ctx, prompt, targetLength)
	if err != nil {
		return nil, &GenerateError{Style: style, Err: err}
	}

	text := joinPrompt(prompt, out)
	continuation := strings.TrimSpace(strings.TrimPrefix(text, prompt))
	if continuation == "" {
		return nil, &GenerateError{Style: style, Err: errors.New("backend returned an empty story")}
	}

	return &models.StoryResult{
		Prompt:       prompt,
		Text:         text,
		Continuation: continuation,
		Style:        style,
		TargetLength: targetLength,
		Provider:     backend.Provider(),
		Model:        backend.Model(),
	}, nil
}

// joinPrompt returns prompt followed by the generated continuation. Backends
// that echo the prompt are returned unchanged.
func joinPrompt(prompt, out string) string {
	if strings.HasPrefix(out, prompt) {
		return out
	}
	out = strings.TrimLeftFunc(out, unicode.IsSpace)
	if out == "" {
		return prompt
	}
	last, _ := utf8.DecodeLastRuneInString(prompt)
	first, _ := utf8.DecodeRuneInString(out)
	if unicode.IsSpace(last) || unicode.IsPunct(first) {
		return prompt + out
	}
	return prompt + " " + out
}
