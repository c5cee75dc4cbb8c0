package storytelling

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/picturebook/internal/models"
	"github.com/lehigh-university-libraries/picturebook/internal/providers"
)

type fakeProvider struct {
	text  string
	err   error
	panic bool
	calls []providers.Config
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, config providers.Config) (string, error) {
	f.calls = append(f.calls, config)
	if f.panic {
		panic("index out of range")
	}
	return f.text, f.err
}

func (f *fakeProvider) Probe(ctx context.Context, model string) error { return nil }

type caps struct{ backend Backend }

func (c caps) StoryBackend() Backend { return c.backend }

func TestBuildPromptContainsCaption(t *testing.T) {
	caption := `a fox {wearing} "boots" & 100% <sure>`
	for _, style := range models.Styles() {
		t.Run(string(style), func(t *testing.T) {
			prompt := BuildPrompt(caption, style)
			if !strings.Contains(prompt, caption) {
				t.Errorf("prompt %q does not contain caption verbatim", prompt)
			}
			if strings.Contains(prompt, captionPlaceholder) {
				t.Errorf("prompt %q still has the placeholder", prompt)
			}
		})
	}
}

func TestBuildPromptUnknownStyle(t *testing.T) {
	prompt := BuildPrompt("a rusty tractor", models.Style("noir"))
	if prompt != "let me tell you a story about a rusty tractor" {
		t.Errorf("unexpected generic prompt %q", prompt)
	}
	if _, known := Template(models.Style("noir")); known {
		t.Error("noir should not be a known template")
	}
}

func TestGeneratePipeline(t *testing.T) {
	p := &fakeProvider{text: "The kite climbed higher than any before it."}
	backend := &Pipeline{Client: p, ModelName: "llama3.1:8b"}

	result, err := Generate(t.Context(), "a red kite over a beach", models.StyleHeartwarming, 150, caps{backend})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.HasPrefix(result.Text, result.Prompt) {
		t.Errorf("Text %q does not start with prompt %q", result.Text, result.Prompt)
	}
	if !strings.Contains(result.Text, "a red kite over a beach") {
		t.Errorf("Text %q does not contain the caption", result.Text)
	}
	if result.Continuation != "The kite climbed higher than any before it." {
		t.Errorf("Continuation = %q", result.Continuation)
	}
	if result.Style != models.StyleHeartwarming || result.TargetLength != 150 {
		t.Errorf("unexpected result %+v", result)
	}

	call := p.calls[0]
	if call.MaxTokens != 150 || call.Candidates != 1 || call.Temperature != Temperature || call.Raw {
		t.Errorf("unexpected call %+v", call)
	}
}

func TestGenerateEchoedPrompt(t *testing.T) {
	prompt := BuildPrompt("a lighthouse", models.StyleFable)
	p := &fakeProvider{text: prompt + "It shone for every ship."}

	result, err := Generate(t.Context(), "a lighthouse", models.StyleFable, 100, caps{&Pipeline{Client: p, ModelName: "m"}})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != prompt+"It shone for every ship." {
		t.Errorf("echoed prompt should be kept as-is, got %q", result.Text)
	}
	if result.Continuation != "It shone for every ship." {
		t.Errorf("Continuation = %q", result.Continuation)
	}
}

func TestGenerateCausalPair(t *testing.T) {
	p := &fakeProvider{text: " and nobody ever saw it again.<|endoftext|>garbage after eos"}
	backend := &CausalPair{Tokenizer: NewTokenizer(), Client: p, ModelName: "qwen2.5:0.5b"}

	result, err := Generate(t.Context(), "a tractor", models.Style("noir"), 50, caps{backend})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.Text != "let me tell you a story about a tractor and nobody ever saw it again." {
		t.Errorf("Text = %q", result.Text)
	}

	call := p.calls[0]
	if !call.Raw {
		t.Error("causal pair should request raw completion")
	}
	if len(call.Stop) != 1 || call.Stop[0] != EndOfText {
		t.Errorf("Stop = %v, want end of text token", call.Stop)
	}
	promptTokens := NewTokenizer().Count(result.Prompt)
	if want := 50 - promptTokens; call.MaxTokens != want {
		t.Errorf("MaxTokens = %d, want %d", call.MaxTokens, want)
	}
}

func TestCausalPairMinimumBudget(t *testing.T) {
	p := &fakeProvider{text: "ok"}
	backend := &CausalPair{Tokenizer: NewTokenizer(), Client: p, ModelName: "m"}

	long := strings.Repeat("very ", 100) + "long caption"
	if _, err := Generate(t.Context(), long, models.StyleSciFi, 50, caps{backend}); err != nil {
		t.Fatal(err)
	}
	if p.calls[0].MaxTokens != MinNewTokens {
		t.Errorf("MaxTokens = %d, want %d", p.calls[0].MaxTokens, MinNewTokens)
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name    string
		caps    Capabilities
		wantErr error
		message string
	}{
		{"no capabilities", nil, ErrNoStoryteller, "no story generation backend"},
		{"no backend", caps{}, ErrNoStoryteller, "no story generation backend"},
		{"backend error", caps{&Pipeline{Client: &fakeProvider{err: errors.New("connection refused")}}}, nil, "connection refused"},
		{"backend panic", caps{&Pipeline{Client: &fakeProvider{panic: true}}}, nil, "index out of range"},
		{"empty output", caps{&Pipeline{Client: &fakeProvider{text: "  "}}}, nil, "empty story"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Generate(t.Context(), "a cat", models.StyleSuspense, 100, tt.caps)
			if result != nil {
				t.Errorf("expected no result, got %+v", result)
			}
			var ge *GenerateError
			if !errors.As(err, &ge) {
				t.Fatalf("expected GenerateError, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.message)
			}
		})
	}
}

func TestTokenizer(t *testing.T) {
	tok := NewTokenizer()
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hello", 1},
		{"hello world", 2},
		{"it's 2024!", 4}, // "it" "'s" " 2024" "!"
	}
	for _, tt := range tests {
		if got := tok.Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}

	if got := tok.Clean("the end<|endoftext|><|endoftext|>"); got != "the end" {
		t.Errorf("Clean = %q", got)
	}
}
