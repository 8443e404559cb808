package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/llm"
	"storyforge.app/story-forge/internal/store"
)

const (
	SourceTextChat          = "text_chat"
	SourceTextInput         = "text_input"
	SourceVoice             = "voice"
	SourceVoiceConversation = "voice_conversation"

	DefaultChatHistoryLimit = 50
	MaxChatHistoryLimit     = 100
)

type ChatService struct {
	chats     ChatRepository
	generator llm.Generator
	logger    *slog.Logger
}

func NewChatService(chats ChatRepository, generator llm.Generator, logger *slog.Logger) *ChatService {
	return &ChatService{chats: chats, generator: generator, logger: logger}
}

// ChatRequest is a text message, optionally with a response produced elsewhere.
type ChatRequest struct {
	Message        string
	Response       string
	Source         string
	ConversationID *string
}

// ChatResult carries either the id of a stored turn or the generated text.
type ChatResult struct {
	ID      string
	Message string
}

// Send stores a pre-supplied exchange, or generates a reply and stores it.
// When generation succeeds but the save fails, the reply is still returned.
func (s *ChatService) Send(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperr.Validation("Message is required")
	}
	source := req.Source
	if source == "" {
		source = SourceTextChat
	}

	if req.Response != "" {
		turn, err := s.chats.CreateChatTurn(ctx, req.Message, req.Response, source, req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to save chat history: %w", err)
		}
		return &ChatResult{ID: turn.ID}, nil
	}

	completion, err := s.generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: contentSystemPrompt,
		UserMessage:  req.Message,
		Temperature:  chatTemperature,
		MaxTokens:    chatMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.chats.CreateChatTurn(ctx, req.Message, completion.Text, source, req.ConversationID); err != nil {
		s.logger.Error("failed to save chat turn", "error", err)
	}
	return &ChatResult{Message: completion.Text}, nil
}

// History returns the newest turns. limit is clamped to [1, MaxChatHistoryLimit].
func (s *ChatService) History(ctx context.Context, limit int) ([]store.ChatTurn, error) {
	return s.chats.ListChatTurns(ctx, ClampLimit(limit, DefaultChatHistoryLimit, MaxChatHistoryLimit))
}

func (s *ChatService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation("Chat ID is required")
	}
	return s.chats.DeleteChatTurn(ctx, id)
}

// ClampLimit applies def to non-positive values and caps at ceiling.
func ClampLimit(limit, def, ceiling int) int {
	if limit <= 0 {
		return def
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}
