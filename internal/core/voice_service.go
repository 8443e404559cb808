package core

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/elevenlabs"
	"storyforge.app/story-forge/internal/llm"
	"storyforge.app/story-forge/internal/store"
	"storyforge.app/story-forge/internal/voicesession"
)

const (
	DefaultInteractionType = "multi-step"
	DefaultVoiceListLimit  = 50
)

// VoiceDeps groups the collaborators of VoiceService.
type VoiceDeps struct {
	Repo        Repository
	Generator   llm.Generator
	Transcriber llm.Transcriber
	Speech      SpeechClient
	Posts       *PostService
	VoiceID     string
	Logger      *slog.Logger
}

type VoiceService struct {
	deps VoiceDeps
	now  func() time.Time
}

func NewVoiceService(deps VoiceDeps) *VoiceService {
	return &VoiceService{deps: deps, now: time.Now}
}

// VoiceChatResult is the outcome of one voice round-trip.
type VoiceChatResult struct {
	Audio      []byte
	Transcript string
	Response   string
	Posts      []store.Post
}

// Chat transcribes audio, answers it with the recent conversation as context,
// saves any posts the model asked for, and synthesizes the answer.
// Save failures are logged and never fail the round-trip.
func (s *VoiceService) Chat(ctx context.Context, filename string, audio []byte) (*VoiceChatResult, error) {
	if len(audio) == 0 {
		return nil, apperr.Validation("No audio file provided")
	}
	if !s.deps.Speech.HasKey() {
		return nil, apperr.Config(elevenlabs.MissingKeyMessage)
	}
	started := s.now()
	logger := s.deps.Logger

	transcript, err := s.deps.Transcriber.Transcribe(ctx, filename, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("speech recognition failed: %w", err)
	}
	logger.Debug("transcribed voice input", "chars", len(transcript))

	turns, err := recentTurns(ctx, s.deps.Repo, s.deps.Repo, NumContextTurns)
	if err != nil {
		logger.Warn("proceeding without conversation context", "error", err)
		turns = nil
	}

	completion, err := s.deps.Generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: brainstormSystemPrompt + voiceToolInstruction,
		History:      historyFromTurns(turns),
		UserMessage:  transcript,
		Temperature:  voiceTemperature,
		MaxTokens:    voiceMaxTokens,
		Tools:        []llm.Tool{CreatePostTool},
	})
	if err != nil {
		return nil, fmt.Errorf("AI response generation failed: %w", err)
	}

	result := &VoiceChatResult{Transcript: transcript}
	result.Posts = s.applyToolCalls(ctx, completion.ToolCalls, transcript)

	response := strings.TrimSpace(completion.Text)
	if response == "" {
		response = savedPostsReply(len(result.Posts))
	}
	result.Response = response

	speech, err := s.deps.Speech.TextToSpeech(ctx, s.deps.VoiceID, response)
	if err != nil {
		return nil, fmt.Errorf("text-to-speech failed: %w", err)
	}
	result.Audio = speech

	duration := s.now().Sub(started).Milliseconds()
	if _, err := s.deps.Repo.CreateVoiceInteraction(ctx, &store.VoiceInteraction{
		UserAudioTranscript: transcript,
		AIResponse:          response,
		InteractionType:     DefaultInteractionType,
		DurationMS:          &duration,
	}); err != nil {
		logger.Error("failed to save voice interaction", "error", err)
	}
	if _, err := s.deps.Repo.CreateChatTurn(ctx, transcript, response, SourceVoice, nil); err != nil {
		logger.Error("failed to save voice chat turn", "error", err)
	}
	return result, nil
}

// applyToolCalls saves one post per valid create_post call. A failing call is
// logged and skipped.
func (s *VoiceService) applyToolCalls(ctx context.Context, calls []llm.ToolCall, transcript string) []store.Post {
	var saved []store.Post
	for _, call := range calls {
		logger := s.deps.Logger.With("tool", call.Name, "call_id", call.ID)
		if call.Name != CreatePostToolName {
			logger.Warn("ignoring unknown tool call")
			continue
		}
		args, err := ParseCreatePostArgs(call.Arguments)
		if err != nil {
			logger.Warn("invalid create_post arguments", "error", err)
			continue
		}
		post, err := s.deps.Posts.CreateFromTool(ctx, args, SourceVoice, transcript)
		if err != nil {
			logger.Error("failed to save post from tool call", "error", err)
			continue
		}
		logger.Info("saved post from voice", "post_id", post.ID)
		saved = append(saved, *post)
	}
	return saved
}

func savedPostsReply(n int) string {
	switch n {
	case 0:
		return "Sorry, I didn't catch that. Could you say it again?"
	case 1:
		return "I've saved that post idea for you."
	default:
		return fmt.Sprintf("I've saved %d post ideas for you.", n)
	}
}

// SpeechToSpeech converts a recording into the configured voice.
func (s *VoiceService) SpeechToSpeech(ctx context.Context, audio []byte) ([]byte, error) {
	if len(audio) == 0 {
		return nil, apperr.Validation("No audio file provided")
	}
	return s.deps.Speech.SpeechToSpeech(ctx, s.deps.VoiceID, audio, brainstormSystemPrompt)
}

// ConnectAgent verifies that agentID exists.
func (s *VoiceService) ConnectAgent(ctx context.Context, agentID string) (*elevenlabs.Agent, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, apperr.Validation("Agent ID is required")
	}
	return s.deps.Speech.GetAgent(ctx, agentID)
}

// AgentReply forwards one recording to the agent and returns its spoken reply.
func (s *VoiceService) AgentReply(ctx context.Context, agentID string, audio []byte) ([]byte, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, apperr.Validation("Agent ID is required")
	}
	if len(audio) == 0 {
		return nil, apperr.Validation("No audio file provided for processing")
	}
	return s.deps.Speech.AgentConversation(ctx, agentID, audio)
}

// VoiceInput is a voice interaction recorded by the client.
type VoiceInput struct {
	UserAudioTranscript string
	AIResponse          string
	InteractionType     string
	DurationMS          *int64
	AudioURL            *string
}

func (s *VoiceService) Record(ctx context.Context, in VoiceInput) (*store.VoiceInteraction, error) {
	if strings.TrimSpace(in.UserAudioTranscript) == "" || strings.TrimSpace(in.AIResponse) == "" {
		return nil, apperr.Validation("Missing required fields: user_audio_transcript and ai_response")
	}
	v, err := s.deps.Repo.CreateVoiceInteraction(ctx, &store.VoiceInteraction{
		UserAudioTranscript: in.UserAudioTranscript,
		AIResponse:          in.AIResponse,
		InteractionType:     orDefault(in.InteractionType, DefaultInteractionType),
		DurationMS:          in.DurationMS,
		AudioURL:            in.AudioURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store voice interaction: %w", err)
	}
	return v, nil
}

func (s *VoiceService) History(ctx context.Context) ([]store.VoiceInteraction, error) {
	return s.deps.Repo.ListVoiceInteractions(ctx, DefaultVoiceListLimit)
}

// RecordExchange persists a turn of a live agent conversation.
func (s *VoiceService) RecordExchange(ctx context.Context, agentID string, ex voicesession.Exchange) {
	var convID *string
	if ex.ConversationID != "" {
		convID = &ex.ConversationID
	}
	if _, err := s.deps.Repo.CreateChatTurn(ctx, ex.UserTranscript, ex.AgentResponse, SourceVoiceConversation, convID); err != nil {
		s.deps.Logger.Error("failed to save conversation exchange", "agent_id", agentID, "error", err)
	}
}
