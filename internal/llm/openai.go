package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/retry"
)

const (
	defaultChatModel = openai.GPT3Dot5Turbo
	defaultToolModel = openai.GPT4TurboPreview

	// NoSpeechMessage is returned when the transcript is empty.
	NoSpeechMessage = "No speech detected. Please try speaking more clearly."
)

// OpenAIConfig captures the settings for the OpenAI backend.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // optional, e.g. a test server ending in /v1
	ChatModel string
	ToolModel string
}

// OpenAI implements Generator and Transcriber with go-openai.
type OpenAI struct {
	client    *openai.Client
	apiKey    string
	chatModel string
	toolModel string
	policy    retry.Policy
}

// OpenAIOption customizes the backend.
type OpenAIOption func(*OpenAI)

// WithOpenAIRetryPolicy overrides the single-attempt default.
func WithOpenAIRetryPolicy(p retry.Policy) OpenAIOption {
	return func(o *OpenAI) { o.policy = p }
}

func NewOpenAI(cfg OpenAIConfig, opts ...OpenAIOption) *OpenAI {
	apiKey := strings.TrimSpace(cfg.APIKey)
	clientCfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	o := &OpenAI{
		client:    openai.NewClientWithConfig(clientCfg),
		apiKey:    apiKey,
		chatModel: firstNonEmpty(cfg.ChatModel, defaultChatModel),
		toolModel: firstNonEmpty(cfg.ToolModel, defaultToolModel),
		policy:    retry.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Configured reports whether an API key is present.
func (o *OpenAI) Configured() bool { return o.apiKey != "" }

func (o *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if !o.Configured() {
		return nil, apperr.Config("OpenAI API key not configured")
	}

	model := req.Model
	if model == "" {
		model = o.chatModel
		if len(req.Tools) > 0 {
			model = o.toolModel
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserMessage})

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		for _, tool := range req.Tools {
			chatReq.Tools = append(chatReq.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  toJSONSchema(tool.Parameters),
				},
			})
		}
		chatReq.ToolChoice = "auto"
	}

	var resp openai.ChatCompletionResponse
	err := o.policy.Do(ctx, "openai chat", func(ctx context.Context) error {
		var err error
		resp, err = o.client.CreateChatCompletion(ctx, chatReq)
		return mapOpenAIError(err)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &apperr.UpstreamError{Vendor: "OpenAI", Status: http.StatusBadGateway, Message: "empty choices"}
	}

	msg := resp.Choices[0].Message
	completion := &Completion{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return completion, nil
}

// Transcribe sends the recording to Whisper. An empty transcript is a ValidationError.
func (o *OpenAI) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if !o.Configured() {
		return "", apperr.Config("OpenAI API key not configured")
	}
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if filename == "" {
		filename = "audio.webm"
	}

	var text string
	err = o.policy.Do(ctx, "openai transcription", func(ctx context.Context) error {
		resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    openai.Whisper1,
			Reader:   bytes.NewReader(data),
			FilePath: filename,
		})
		if err != nil {
			return mapOpenAIError(err)
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation(NoSpeechMessage)
	}
	return text, nil
}

func mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.UpstreamError{Vendor: "OpenAI", Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperr.UpstreamError{Vendor: "OpenAI", Status: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return err
}

func toJSONSchema(p Param) jsonschema.Definition {
	def := jsonschema.Definition{
		Type:        jsonschema.DataType(p.Type),
		Description: p.Description,
		Enum:        p.Enum,
		Required:    p.Required,
	}
	if p.Items != nil {
		items := toJSONSchema(*p.Items)
		def.Items = &items
	}
	if len(p.Properties) > 0 {
		def.Properties = make(map[string]jsonschema.Definition, len(p.Properties))
		for name, prop := range p.Properties {
			def.Properties[name] = toJSONSchema(prop)
		}
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
