package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

const (
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultGeminiModel    = "gemini-2.0-flash"
)

// AnthropicSender sends prompts through the Anthropic Messages API.
type AnthropicSender struct {
	client anthropic.Client
	model  string
}

// NewAnthropicSender builds a sender. SDK retries are disabled; Client retries.
func NewAnthropicSender(apiKey, model, baseURL string) *AnthropicSender {
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(apiKey), anthropicopt.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(baseURL))
	}
	return &AnthropicSender{client: anthropic.NewClient(opts...), model: model}
}

func (s *AnthropicSender) Name() string { return "anthropic" }

func (s *AnthropicSender) Send(ctx context.Context, system, user string, opts SendOptions) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(s.model),
		MaxTokens:   int64(opts.MaxTokens),
		Temperature: param.NewOpt(opts.Temperature),
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(user)},
		}},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	msg, err := s.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Status: apiErr.StatusCode, Err: err}
		}
		return "", err
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", ErrEmptyResponse
}

// OpenAISender sends prompts through the OpenAI Chat Completions API.
type OpenAISender struct {
	client openai.Client
	model  string
}

func NewOpenAISender(apiKey, model, baseURL string) *OpenAISender {
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []openaiopt.RequestOption{openaiopt.WithAPIKey(apiKey), openaiopt.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(baseURL))
	}
	return &OpenAISender{client: openai.NewClient(opts...), model: model}
}

func (s *OpenAISender) Name() string { return "openai" }

func (s *OpenAISender) Send(ctx context.Context, system, user string, opts SendOptions) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   openai.Int(int64(opts.MaxTokens)),
		Temperature: openai.Float(opts.Temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Status: apiErr.StatusCode, Err: err}
		}
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiSender sends prompts through the Gemini API.
type GeminiSender struct {
	client *genai.Client
	model  string
}

func NewGeminiSender(ctx context.Context, apiKey, model, baseURL string) (*GeminiSender, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiSender{client: client, model: model}, nil
}

func (s *GeminiSender) Name() string { return "gemini" }

func (s *GeminiSender) Send(ctx context.Context, system, user string, opts SendOptions) (string, error) {
	temp := float32(opts.Temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if opts.MaxTokens > 0 && opts.MaxTokens <= math.MaxInt32 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(user), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{Status: apiErr.Code, Err: err}
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) {
			return "", &StatusError{Status: apiErrPtr.Code, Err: err}
		}
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// NewSender picks a sender by provider name.
func NewSender(ctx context.Context, provider, apiKey, model, baseURL string) (Sender, error) {
	switch strings.ToLower(provider) {
	case "", "anthropic":
		return NewAnthropicSender(apiKey, model, baseURL), nil
	case "openai":
		return NewOpenAISender(apiKey, model, baseURL), nil
	case "gemini":
		return NewGeminiSender(ctx, apiKey, model, baseURL)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", provider)
	}
}
