package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Provider names accepted by NewGenerator.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// Settings carries provider selection and credentials.
type Settings struct {
	Provider     string
	OpenAIKey    string
	GeminiKey    string
	AnthropicKey string
	Timeout      time.Duration
}

// NewGenerator builds the Generator named by s.Provider.
// It returns (nil, nil) for the "none" provider and ErrNoCredentials when the
// provider's key is empty.
func NewGenerator(ctx context.Context, s Settings) (Generator, error) {
	var gen Generator
	switch strings.ToLower(s.Provider) {
	case ProviderNone:
		return nil, nil
	case ProviderOpenAI, "":
		if s.OpenAIKey == "" {
			return nil, ErrNoCredentials
		}
		gen = NewOpenAIProvider(s.OpenAIKey)
	case ProviderGemini:
		if s.GeminiKey == "" {
			return nil, ErrNoCredentials
		}
		p, err := NewGeminiProvider(ctx, s.GeminiKey)
		if err != nil {
			return nil, err
		}
		gen = p
	case ProviderAnthropic:
		if s.AnthropicKey == "" {
			return nil, ErrNoCredentials
		}
		gen = NewAnthropicProvider(s.AnthropicKey)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Provider)
	}
	if s.Timeout > 0 {
		gen = withTimeout{gen: gen, timeout: s.Timeout}
	}
	return gen, nil
}

type withTimeout struct {
	gen     Generator
	timeout time.Duration
}

func (w withTimeout) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.gen.Generate(ctx, req)
}

// OpenAIProvider calls the chat completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI-backed Generator.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini-backed Generator.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: req.Prompt}},
		Role:  "user",
	}}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// AnthropicProvider calls the Claude Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider creates an Anthropic-backed Generator.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client}
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", ErrEmptyResponse
}
