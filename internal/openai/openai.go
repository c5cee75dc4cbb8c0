package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	oagc "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lehigh-university-libraries/picturebook/internal/providers"
)

// OpenAI is a provider for the OpenAI chat completions API
type OpenAI struct {
	oac *oagc.Client
}

var _ providers.Provider = &OpenAI{}

// New returns a new OpenAI provider. baseURL may be empty to use the public API.
func New(apiKey, baseURL string, httpClient *http.Client) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAI{oac: oagc.NewClient(opts...)}, nil
}

func (o *OpenAI) Name() string { return "openai" }

// Generate sends the prompt and any images as a single user message
func (o *OpenAI) Generate(ctx context.Context, config providers.Config) (string, error) {
	parts := []oagc.ChatCompletionContentPartUnionParam{oagc.TextPart(config.Prompt)}
	for _, img := range config.Images {
		mime := http.DetectContentType(img)
		parts = append(parts, oagc.ImagePart("data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(img)))
	}

	n := config.Candidates
	if n <= 0 {
		n = 1
	}

	params := oagc.ChatCompletionNewParams{
		Model: oagc.F(oagc.ChatModel(config.Model)),
		Messages: oagc.F([]oagc.ChatCompletionMessageParamUnion{
			oagc.UserMessageParts(parts...),
		}),
		Temperature: oagc.F(config.Temperature),
		N:           oagc.Int(int64(n)),
	}
	if config.MaxTokens > 0 {
		params.MaxTokens = oagc.Int(int64(config.MaxTokens))
	}

	resp, err := o.oac.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}

	return resp.Choices[0].Message.Content, nil
}

// Probe retrieves the model to check that the key can use it
func (o *OpenAI) Probe(ctx context.Context, model string) error {
	if _, err := o.oac.Models.Get(ctx, model); err != nil {
		return fmt.Errorf("%w: %s: %w", providers.ErrModelUnavailable, model, err)
	}
	return nil
}
