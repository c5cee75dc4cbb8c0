// Package config loads picturebook settings from defaults, an optional YAML or
// TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	PolicyPartialOK    = "partial_ok"
	PolicyAllOrNothing = "all_or_nothing"

	HistoryMemory = "memory"
	HistorySQLite = "sqlite"
)

// Story length bounds exposed to users.
const (
	MinStoryLength     = 50
	MaxStoryLength     = 300
	StoryLengthStep    = 50
	DefaultStoryLength = 150
)

// ModelSpec names the provider and the standard/lightweight model identifiers
// for one role.
type ModelSpec struct {
	Provider         string `yaml:"provider" toml:"provider"`
	Model            string `yaml:"model" toml:"model"`
	LightweightModel string `yaml:"lightweight_model" toml:"lightweight_model"`
	Prompt           string `yaml:"prompt,omitempty" toml:"prompt"`
}

// For returns the model identifier for the requested weight class.
func (m ModelSpec) For(lightweight bool) string {
	if lightweight && m.LightweightModel != "" {
		return m.LightweightModel
	}
	return m.Model
}

type CaptionFallback struct {
	ModelSpec `yaml:",inline"`
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`
	MaxSide   int `yaml:"max_side" toml:"max_side"`
}

// LoadSettings controls how models are loaded.
type LoadSettings struct {
	Policy  string        `yaml:"policy" toml:"policy"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

type Fetch struct {
	Timeout  time.Duration `yaml:"timeout" toml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes" toml:"max_bytes"`
}

type Inference struct {
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

type History struct {
	Backend      string `yaml:"backend" toml:"backend"`
	DSN          string `yaml:"dsn" toml:"dsn"`
	Display      int    `yaml:"display" toml:"display"`
	MaxRecords   int    `yaml:"max_records" toml:"max_records"`
	ExcerptChars int    `yaml:"excerpt_chars" toml:"excerpt_chars"`
	ThumbnailPx  int    `yaml:"thumbnail_px" toml:"thumbnail_px"`
}

type Server struct {
	Port string `yaml:"port" toml:"port"`
}

type Endpoints struct {
	OllamaURL     string `yaml:"ollama_url" toml:"ollama_url"`
	OpenAIBaseURL string `yaml:"openai_base_url" toml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"-" toml:"-"`
	GeminiAPIKey  string `yaml:"-" toml:"-"`
}

// Config is the full application configuration.
type Config struct {
	Server          Server          `yaml:"server" toml:"server"`
	Endpoints       Endpoints       `yaml:"endpoints" toml:"endpoints"`
	Captioner       ModelSpec       `yaml:"captioner" toml:"captioner"`
	CaptionFallback CaptionFallback `yaml:"caption_fallback" toml:"caption_fallback"`
	Story           ModelSpec       `yaml:"story" toml:"story"`
	Load            LoadSettings    `yaml:"load" toml:"load"`
	Fetch           Fetch           `yaml:"fetch" toml:"fetch"`
	Inference       Inference       `yaml:"inference" toml:"inference"`
	History         History         `yaml:"history" toml:"history"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{Port: "8501"},
		Endpoints: Endpoints{
			OllamaURL: "http://localhost:11434",
		},
		Captioner: ModelSpec{
			Provider:         ProviderOllama,
			Model:            "llava:13b",
			LightweightModel: "moondream",
			Prompt:           "Describe this image in one short sentence.",
		},
		CaptionFallback: CaptionFallback{
			ModelSpec: ModelSpec{
				Provider:         ProviderOpenAI,
				Model:            "gpt-4o",
				LightweightModel: "gpt-4o-mini",
				Prompt:           "Write a short caption for this image.",
			},
			MaxTokens: 50,
			MaxSide:   384,
		},
		Story: ModelSpec{
			Provider:         ProviderOllama,
			Model:            "llama3.1:8b",
			LightweightModel: "qwen2.5:0.5b",
		},
		Load: LoadSettings{
			Policy:  PolicyPartialOK,
			Timeout: 30 * time.Second,
		},
		Fetch: Fetch{
			Timeout:  10 * time.Second,
			MaxBytes: 10 * 1024 * 1024,
		},
		Inference: Inference{
			Timeout: 2 * time.Minute,
		},
		History: History{
			Backend:      HistoryMemory,
			DSN:          ":memory:",
			Display:      3,
			ExcerptChars: 200,
			ThumbnailPx:  200,
		},
	}
}

// Load reads path (if not empty) over the defaults, then applies the
// environment and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s (supported: .yaml, .yml, .toml)", ext)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	if v := firstEnv("OLLAMA_URL", "OLLAMA_HOST"); v != "" {
		c.Endpoints.OllamaURL = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Endpoints.OpenAIBaseURL = v
	}
	c.Endpoints.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Endpoints.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	if v := os.Getenv("PICTUREBOOK_CAPTION_PROVIDER"); v != "" {
		c.Captioner.Provider = v
	}
	if v := os.Getenv("PICTUREBOOK_CAPTION_MODEL"); v != "" {
		c.Captioner.Model = v
	}
	if v := os.Getenv("PICTUREBOOK_STORY_PROVIDER"); v != "" {
		c.Story.Provider = v
	}
	if v := os.Getenv("PICTUREBOOK_STORY_MODEL"); v != "" {
		c.Story.Model = v
	}
	if v := os.Getenv("PICTUREBOOK_HISTORY_DSN"); v != "" {
		c.History.Backend = HistorySQLite
		c.History.DSN = v
	}
}

// Validate checks enumerations and bounds.
func (c *Config) Validate() error {
	for role, spec := range map[string]ModelSpec{
		"captioner":        c.Captioner,
		"caption_fallback": c.CaptionFallback.ModelSpec,
		"story":            c.Story,
	} {
		if !validProvider(spec.Provider) {
			return fmt.Errorf("%s: unsupported provider %q (supported: ollama, openai, gemini)", role, spec.Provider)
		}
		if spec.Model == "" {
			return fmt.Errorf("%s: model is required", role)
		}
	}

	switch c.Load.Policy {
	case PolicyPartialOK, PolicyAllOrNothing:
	default:
		return fmt.Errorf("unsupported load policy %q (supported: %s, %s)", c.Load.Policy, PolicyPartialOK, PolicyAllOrNothing)
	}

	switch c.History.Backend {
	case HistoryMemory, HistorySQLite:
	default:
		return fmt.Errorf("unsupported history backend %q (supported: %s, %s)", c.History.Backend, HistoryMemory, HistorySQLite)
	}

	if c.Load.Timeout <= 0 || c.Fetch.Timeout <= 0 || c.Inference.Timeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be positive")
	}
	if c.CaptionFallback.MaxTokens <= 0 {
		return fmt.Errorf("caption_fallback.max_tokens must be positive")
	}
	if c.History.Display < 0 || c.History.MaxRecords < 0 {
		return fmt.Errorf("history.display and history.max_records must not be negative")
	}
	return nil
}

// ValidStoryLength reports whether n is within bounds and on a step boundary.
func ValidStoryLength(n int) bool {
	return n >= MinStoryLength && n <= MaxStoryLength && n%StoryLengthStep == 0
}

func validProvider(name string) bool {
	switch name {
	case ProviderOllama, ProviderOpenAI, ProviderGemini:
		return true
	}
	return false
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
