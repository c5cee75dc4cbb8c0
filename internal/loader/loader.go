// Package loader constructs the caption and story backends once per weight
// class and caches them for the life of the process.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/picturebook/internal/captioning"
	"github.com/lehigh-university-libraries/picturebook/internal/config"
	"github.com/lehigh-university-libraries/picturebook/internal/gemini"
	"github.com/lehigh-university-libraries/picturebook/internal/ollama"
	"github.com/lehigh-university-libraries/picturebook/internal/openai"
	"github.com/lehigh-university-libraries/picturebook/internal/providers"
	"github.com/lehigh-university-libraries/picturebook/internal/storytelling"
)

// ErrLoadFailed is wrapped by every *LoadError.
var ErrLoadFailed = errors.New("model load failed")

// Role names a component of the bundle.
type Role string

const (
	RoleCaptioner        Role = "captioner"
	RoleCaptionProcessor Role = "caption_processor"
	RoleCaptionModel     Role = "caption_model"
	RoleStory            Role = "story"
)

// LoadError lists the roles that failed to load.
type LoadError struct {
	Lightweight bool
	Failures    map[Role]error
}

func (e *LoadError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, role := range []Role{RoleCaptioner, RoleCaptionProcessor, RoleCaptionModel, RoleStory} {
		if err, ok := e.Failures[role]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", role, err))
		}
	}
	return fmt.Sprintf("%s (lightweight=%t): %s", ErrLoadFailed, e.Lightweight, strings.Join(parts, "; "))
}

func (e *LoadError) Unwrap() error { return ErrLoadFailed }

// Handle identifies a loaded component.
type Handle struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Bundle is the immutable set of loaded backends for one weight class.
type Bundle struct {
	Lightweight bool

	captioner captioning.Backend
	story     storytelling.Backend
	handles   map[Role]Handle
	failures  map[Role]error
}

// CaptionBackend returns nil when no caption backend loaded.
func (b *Bundle) CaptionBackend() captioning.Backend {
	if b == nil || b.captioner == nil {
		return nil
	}
	return b.captioner
}

// StoryBackend returns nil when the story backend did not load.
func (b *Bundle) StoryBackend() storytelling.Backend {
	if b == nil || b.story == nil {
		return nil
	}
	return b.story
}

// Handles returns a copy of the loaded component identifiers.
func (b *Bundle) Handles() map[Role]Handle {
	out := make(map[Role]Handle, len(b.handles))
	for k, v := range b.handles {
		out[k] = v
	}
	return out
}

// Degraded reports whether any role failed under the partial_ok policy.
func (b *Bundle) Degraded() bool {
	return len(b.failures) > 0
}

// Factory builds a provider client by name.
type Factory func(provider string) (providers.Provider, error)

// DefaultFactory builds clients from the configured endpoints.
func DefaultFactory(cfg *config.Config) Factory {
	return func(provider string) (providers.Provider, error) {
		switch provider {
		case config.ProviderOllama:
			return ollama.New(cfg.Endpoints.OllamaURL, &http.Client{Timeout: cfg.Inference.Timeout}), nil
		case config.ProviderOpenAI:
			return openai.New(cfg.Endpoints.OpenAIAPIKey, cfg.Endpoints.OpenAIBaseURL, &http.Client{Timeout: cfg.Inference.Timeout})
		case config.ProviderGemini:
			return gemini.New(cfg.Endpoints.GeminiAPIKey)
		default:
			return nil, fmt.Errorf("unknown provider: %s", provider)
		}
	}
}

// Loader caches one Bundle per weight class.
type Loader struct {
	cfg      *config.Config
	factory  Factory
	notifier Notifier

	mu    sync.Mutex
	cache map[bool]*Bundle
}

// Option configures a Loader.
type Option func(*Loader)

// WithFactory replaces the provider factory.
func WithFactory(f Factory) Option {
	return func(l *Loader) { l.factory = f }
}

// WithNotifier replaces the progress notifier.
func WithNotifier(n Notifier) Option {
	return func(l *Loader) { l.notifier = n }
}

// New returns a Loader for cfg.
func New(cfg *config.Config, opts ...Option) *Loader {
	l := &Loader{
		cfg:      cfg,
		factory:  DefaultFactory(cfg),
		notifier: SlogNotifier{},
		cache:    map[bool]*Bundle{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the cached bundle for lightweight, constructing it on first use.
// Concurrent callers for the same flag wait for a single construction.
func (l *Loader) Load(ctx context.Context, lightweight bool) (*Bundle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.cache[lightweight]; ok {
		return b, nil
	}

	b, err := l.build(ctx, lightweight)
	if err != nil {
		return nil, err
	}
	l.cache[lightweight] = b
	return b, nil
}

// Reload evicts the cached bundle for lightweight and loads it again.
func (l *Loader) Reload(ctx context.Context, lightweight bool) (*Bundle, error) {
	l.mu.Lock()
	delete(l.cache, lightweight)
	l.mu.Unlock()
	return l.Load(ctx, lightweight)
}

func (l *Loader) build(ctx context.Context, lightweight bool) (*Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Load.Timeout)
	defer cancel()

	b := &Bundle{
		Lightweight: lightweight,
		handles:     map[Role]Handle{},
		failures:    map[Role]error{},
	}

	l.loadCaptioner(ctx, b)
	l.loadStory(ctx, b)

	allOrNothing := l.cfg.Load.Policy == config.PolicyAllOrNothing
	switch {
	case b.story == nil:
	case allOrNothing && b.captioner == nil:
	default:
		if len(b.failures) > 0 {
			slog.Warn("Models loaded with missing roles", "lightweight", lightweight, "failed", len(b.failures))
		}
		return b, nil
	}
	return nil, &LoadError{Lightweight: lightweight, Failures: b.failures}
}

func (l *Loader) loadCaptioner(ctx context.Context, b *Bundle) {
	spec := l.cfg.Captioner
	model := spec.For(b.Lightweight)
	client, err := l.construct(ctx, RoleCaptioner, spec.Provider, model)
	if err == nil {
		b.captioner = &captioning.Pipeline{Client: client, ModelName: model, Prompt: spec.Prompt}
		b.handles[RoleCaptioner] = Handle{Provider: spec.Provider, Model: model}
		return
	}
	b.failures[RoleCaptioner] = err

	fb := l.cfg.CaptionFallback
	fbModel := fb.For(b.Lightweight)
	l.notifier.Notify(Event{Stage: StageFallback, Role: RoleCaptionModel, Provider: fb.Provider, Model: fbModel, Err: err})

	processor := &captioning.Processor{MaxSide: fb.MaxSide, Prompt: fb.Prompt}
	b.handles[RoleCaptionProcessor] = Handle{Provider: "local", Model: fmt.Sprintf("jpeg-%dpx", fb.MaxSide)}

	client, err = l.construct(ctx, RoleCaptionModel, fb.Provider, fbModel)
	if err != nil {
		b.failures[RoleCaptionModel] = err
		return
	}
	b.captioner = &captioning.ProcessorModelPair{
		Processor: processor,
		Client:    client,
		ModelName: fbModel,
		MaxTokens: fb.MaxTokens,
	}
	b.handles[RoleCaptionModel] = Handle{Provider: fb.Provider, Model: fbModel}
}

func (l *Loader) loadStory(ctx context.Context, b *Bundle) {
	spec := l.cfg.Story
	model := spec.For(b.Lightweight)
	client, err := l.construct(ctx, RoleStory, spec.Provider, model)
	if err != nil {
		b.failures[RoleStory] = err
		return
	}
	if b.Lightweight {
		b.story = &storytelling.CausalPair{Tokenizer: storytelling.NewTokenizer(), Client: client, ModelName: model}
	} else {
		b.story = &storytelling.Pipeline{Client: client, ModelName: model}
	}
	b.handles[RoleStory] = Handle{Provider: spec.Provider, Model: model}
}

// construct builds a client and probes that model is available.
func (l *Loader) construct(ctx context.Context, role Role, provider, model string) (providers.Provider, error) {
	l.notifier.Notify(Event{Stage: StageAttempt, Role: role, Provider: provider, Model: model})

	client, err := l.factory(provider)
	if err == nil {
		err = client.Probe(ctx, model)
	}
	if err != nil {
		l.notifier.Notify(Event{Stage: StageFailure, Role: role, Provider: provider, Model: model, Err: err})
		return nil, err
	}

	l.notifier.Notify(Event{Stage: StageSuccess, Role: role, Provider: provider, Model: model})
	return client, nil
}
