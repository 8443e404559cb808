// Package elevenlabs wraps the ElevenLabs speech API: text-to-speech,
// speech-to-speech, conversational agents and the read-only catalogue endpoints.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/retry"
)

const (
	defaultBaseURL     = "https://api.elevenlabs.io/v1"
	defaultHTTPTimeout = 60 * time.Second

	TTSModel = "eleven_monolingual_v1"
	STSModel = "eleven_english_sts_v2"

	// MissingKeyMessage is reported by every call when no API key is configured.
	MissingKeyMessage = "ElevenLabs API key not configured"
)

// VoiceSettings are sent with every synthesis request.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings is the fixed tuning used for conversational content.
var DefaultVoiceSettings = VoiceSettings{
	Stability:       0.5,
	SimilarityBoost: 0.8,
	Style:           0.0,
	UseSpeakerBoost: true,
}

// Config captures the runtime settings required to talk to ElevenLabs.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client issues one HTTP call per operation.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retry.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the single-attempt default.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// NewClient constructs a client. A missing key is reported per call.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		policy:     retry.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// HasKey reports whether an API key is configured.
func (c *Client) HasKey() bool { return c.cfg.APIKey != "" }

// APIKey returns the configured key for WebSocket dials.
func (c *Client) APIKey() string { return c.cfg.APIKey }

// Agent is a hosted conversational agent.
type Agent struct {
	AgentID     string          `json:"agent_id"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	VoiceID     string          `json:"voice_id"`
	CreatedAt   json.RawMessage `json:"created_at,omitempty"`
	UpdatedAt   json.RawMessage `json:"updated_at,omitempty"`
}

// Identifier returns agent_id, falling back to id.
func (a Agent) Identifier() string {
	if a.AgentID != "" {
		return a.AgentID
	}
	return a.ID
}

// Voice is one entry of the voice catalogue.
type Voice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Model is one entry of the model catalogue.
type Model struct {
	ModelID              string `json:"model_id"`
	Name                 string `json:"name"`
	CanDoVoiceConversion bool   `json:"can_do_voice_conversion"`
	Description          string `json:"description"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// TextToSpeech synthesizes text with voiceID and returns MP3 bytes.
func (c *Client) TextToSpeech(ctx context.Context, voiceID, text string) ([]byte, error) {
	encoded, err := json.Marshal(ttsRequest{Text: text, ModelID: TTSModel, VoiceSettings: DefaultVoiceSettings})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs tts: encode body: %w", err)
	}
	return c.send(ctx, "elevenlabs tts", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("text-to-speech", voiceID), bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		return req, nil
	})
}

// SpeechToSpeech converts recorded speech into voiceID, guided by prompt.
func (c *Client) SpeechToSpeech(ctx context.Context, voiceID string, audio []byte, prompt string) ([]byte, error) {
	settings, err := json.Marshal(DefaultVoiceSettings)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs sts: encode settings: %w", err)
	}
	body, contentType, err := multipartBody("audio", "input.webm", audio, map[string]string{
		"model_id":       STSModel,
		"text":           prompt,
		"voice_settings": string(settings),
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs sts: %w", err)
	}
	return c.send(ctx, "elevenlabs sts", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("speech-to-speech", voiceID), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

// AgentConversation forwards one recording to agentID and returns its spoken reply.
func (c *Client) AgentConversation(ctx context.Context, agentID string, audio []byte) ([]byte, error) {
	body, contentType, err := multipartBody("audio", "input.webm", audio, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs agent conversation: %w", err)
	}
	return c.send(ctx, "elevenlabs agent conversation", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("convai", "agents", agentID, "conversation"), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

// GetAgent fetches one agent; a missing agent surfaces as a 404 UpstreamError.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var agent Agent
	if err := c.getJSON(ctx, "elevenlabs get agent", c.endpoint("convai", "agents", agentID), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// ListAgents returns every agent on the account. The API has answered both
// with {"agents": [...]} and with a bare array.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "elevenlabs list agents", c.endpoint("convai", "agents"), &raw); err != nil {
		return nil, err
	}
	var wrapped struct {
		Agents []Agent `json:"agents"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Agents != nil {
		return wrapped.Agents, nil
	}
	var bare []Agent
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}
	return []Agent{}, nil
}

func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	var payload struct {
		Voices []Voice `json:"voices"`
	}
	if err := c.getJSON(ctx, "elevenlabs list voices", c.endpoint("voices"), &payload); err != nil {
		return nil, err
	}
	return payload.Voices, nil
}

func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model
	if err := c.getJSON(ctx, "elevenlabs list models", c.endpoint("models"), &models); err != nil {
		return nil, err
	}
	return models, nil
}

// ConversationURL returns the WebSocket address of agentID's live conversation.
func (c *Client) ConversationURL(agentID string) string {
	base := c.cfg.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/convai/conversation?agent_id=" + url.QueryEscape(agentID)
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, target any) error {
	body, err := c.send(ctx, op, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, op string, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if !c.HasKey() {
		return nil, apperr.Config(MissingKeyMessage)
	}
	var out []byte
	err := c.policy.Do(ctx, op, func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return fmt.Errorf("%s: new request: %w", op, err)
		}
		req.Header.Set("xi-api-key", c.cfg.APIKey)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s: http error: %w", op, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read body: %w", op, err)
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			return &apperr.UpstreamError{
				Vendor:  "ElevenLabs",
				Status:  resp.StatusCode,
				Body:    strings.TrimSpace(string(body)),
				Message: ErrorDetail(body),
			}
		}
		out = body
		return nil
	})
	return out, err
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.cfg.BaseURL + "/" + strings.Join(escaped, "/")
}

// ErrorDetail extracts a readable message from an error body: detail.message,
// message, a string detail, or the raw text.
func ErrorDetail(body []byte) string {
	raw := strings.TrimSpace(string(body))
	var parsed struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return raw
	}
	if len(parsed.Detail) > 0 {
		var detail struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(parsed.Detail, &detail); err == nil && detail.Message != "" {
			return detail.Message
		}
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	if len(parsed.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(parsed.Detail, &detail); err == nil && detail != "" {
			return detail
		}
	}
	return raw
}

func multipartBody(fileField, filename string, data []byte, fields map[string]string) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}
