// Package llm is the text-generation gateway. Backends forward a single
// completion request to a vendor and surface the text and any tool calls; they
// never act on tool calls themselves.
package llm

import (
	"context"
	"io"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior turn supplied as conversation context.
type Message struct {
	Role    string
	Content string
}

// Param is a vendor-neutral JSON schema fragment for tool parameters.
type Param struct {
	Type        string // "object", "string", "array"
	Description string
	Enum        []string
	Items       *Param
	Properties  map[string]Param
	Required    []string
}

// Tool is a function the model may ask the caller to invoke.
type Tool struct {
	Name        string
	Description string
	Parameters  Param
}

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	Model        string // optional override
	SystemPrompt string
	History      []Message
	UserMessage  string
	Temperature  float32
	MaxTokens    int
	Tools        []Tool
}

// ToolCall is a function invocation requested by the model. Arguments is the
// raw JSON payload.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Completion is the parsed vendor response.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// Generator produces completions.
type Generator interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}
