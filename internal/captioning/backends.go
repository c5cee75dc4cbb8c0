package captioning

import (
	"context"
	"regexp"
	"strings"

	"github.com/lehigh-university-libraries/picturebook/internal/images"
	"github.com/lehigh-university-libraries/picturebook/internal/models"
	"github.com/lehigh-university-libraries/picturebook/internal/providers"
)

// DefaultMaxTokens caps the caption length on the processor+model path.
const DefaultMaxTokens = 50

// captionTemperature keeps captions close to what is in the picture.
const captionTemperature = 0.1

// Pipeline is the high-level variant: the provider takes the image and a
// prompt and returns the caption directly.
type Pipeline struct {
	Client    providers.Provider
	ModelName string
	Prompt    string
}

func (p *Pipeline) Source() models.CaptionSource { return models.CaptionSourcePipeline }
func (p *Pipeline) Provider() string             { return p.Client.Name() }
func (p *Pipeline) Model() string                { return p.ModelName }

func (p *Pipeline) caption(ctx context.Context, img *models.Image) (string, error) {
	return p.Client.Generate(ctx, providers.Config{
		Model:       p.ModelName,
		Prompt:      p.Prompt,
		Images:      [][]byte{img.Data},
		Temperature: captionTemperature,
		Candidates:  1,
	})
}

// Processor prepares model inputs and cleans model outputs for the
// lower-level variant.
type Processor struct {
	MaxSide int
	Prompt  string
}

// Inputs is what the processor hands to the model.
type Inputs struct {
	Prompt string
	Image  []byte
}

// Encode shrinks the image so small vision models get a bounded input.
func (p *Processor) Encode(img *models.Image) (*Inputs, error) {
	data, err := images.Downscale(img.Data, p.MaxSide, 90)
	if err != nil {
		return nil, err
	}
	return &Inputs{Prompt: p.Prompt, Image: data}, nil
}

var (
	specialTokens = regexp.MustCompile(`<\|[^|>]*\|>|</?s>|<pad>|<unk>|<image>|</?img>|\[(?:CLS|SEP|PAD|UNK|MASK)\]`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// Decode strips special and control tokens and collapses whitespace.
func (p *Processor) Decode(text string) string {
	text = specialTokens.ReplaceAllString(text, " ")
	text = controlChars.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// ProcessorModelPair is the fallback variant: encode, generate with a
// bounded token budget, decode.
type ProcessorModelPair struct {
	Processor *Processor
	Client    providers.Provider
	ModelName string
	MaxTokens int
}

func (p *ProcessorModelPair) Source() models.CaptionSource {
	return models.CaptionSourceProcessorModel
}
func (p *ProcessorModelPair) Provider() string { return p.Client.Name() }
func (p *ProcessorModelPair) Model() string    { return p.ModelName }

func (p *ProcessorModelPair) caption(ctx context.Context, img *models.Image) (string, error) {
	inputs, err := p.Processor.Encode(img)
	if err != nil {
		return "", err
	}

	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	out, err := p.Client.Generate(ctx, providers.Config{
		Model:       p.ModelName,
		Prompt:      inputs.Prompt,
		Images:      [][]byte{inputs.Image},
		MaxTokens:   maxTokens,
		Temperature: captionTemperature,
		Candidates:  1,
	})
	if err != nil {
		return "", err
	}
	return p.Processor.Decode(out), nil
}
