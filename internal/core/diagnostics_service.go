package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/elevenlabs"
	"storyforge.app/story-forge/internal/llm"
)

// Report is the body and status of a read-only connectivity check.
type Report struct {
	Status int
	Body   map[string]any
}

func ok(body map[string]any) Report {
	body["success"] = true
	return Report{Status: http.StatusOK, Body: body}
}

func failed(status int, body map[string]any) Report {
	return Report{Status: status, Body: body}
}

// DiagnosticsDeps groups the collaborators checked by DiagnosticsService.
type DiagnosticsDeps struct {
	Repo         Repository
	Blobs        BlobStore
	Speech       SpeechClient
	Generator    llm.Generator
	StoreReady   bool
	HasOpenAIKey bool
	VoiceID      string
	AgentID      string
	Logger       *slog.Logger
}

type DiagnosticsService struct {
	deps DiagnosticsDeps
}

func NewDiagnosticsService(deps DiagnosticsDeps) *DiagnosticsService {
	return &DiagnosticsService{deps: deps}
}

func (s *DiagnosticsService) TestDatabase(ctx context.Context) Report {
	if !s.deps.StoreReady {
		return failed(http.StatusInternalServerError, map[string]any{
			"error":   "Missing environment variables",
			"details": map[string]any{"hasUrl": false, "hasKey": false},
		})
	}
	count, err := s.deps.Repo.CountChatTurns(ctx)
	if err != nil {
		return failed(http.StatusInternalServerError, map[string]any{
			"error":   "Supabase connection failed",
			"details": err.Error(),
		})
	}
	return ok(map[string]any{
		"message":     "Supabase connection successful",
		"tableExists": true,
		"recordCount": count,
	})
}

func (s *DiagnosticsService) TestStorage(ctx context.Context) Report {
	if !s.deps.Blobs.Configured() {
		return failed(http.StatusInternalServerError, map[string]any{"error": "Supabase configuration missing"})
	}
	buckets, err := s.deps.Blobs.ListBuckets(ctx)
	if err != nil {
		return failed(http.StatusInternalServerError, map[string]any{
			"error":   "Failed to list buckets",
			"details": err.Error(),
		})
	}
	ids := make([]string, 0, len(buckets))
	found := -1
	for i, b := range buckets {
		ids = append(ids, b.ID)
		if b.ID == s.deps.Blobs.Bucket() {
			found = i
		}
	}
	if found < 0 {
		return failed(http.StatusNotFound, map[string]any{
			"error":            "Images bucket not found",
			"suggestion":       "Create a public '" + s.deps.Blobs.Bucket() + "' bucket in Supabase Storage",
			"availableBuckets": ids,
		})
	}

	files, listErr := s.deps.Blobs.List(ctx, DefaultImageFolder)
	var listMessage any
	if listErr != nil {
		listMessage = listErr.Error()
	}
	return ok(map[string]any{
		"bucket":      buckets[found],
		"canList":     listErr == nil,
		"listError":   listMessage,
		"sampleFiles": len(files),
		"message":     "Storage bucket is properly configured",
	})
}

func (s *DiagnosticsService) TestVoice(ctx context.Context) Report {
	hasVoice := s.deps.Speech.HasKey()
	flags := func(body map[string]any) map[string]any {
		body["hasElevenLabsKey"] = hasVoice
		body["hasOpenAIKey"] = s.deps.HasOpenAIKey
		return body
	}
	if !hasVoice {
		return failed(http.StatusInternalServerError, flags(map[string]any{"error": elevenlabs.MissingKeyMessage}))
	}
	if !s.deps.HasOpenAIKey {
		return failed(http.StatusInternalServerError, flags(map[string]any{"error": "OpenAI API key not configured"}))
	}

	voices, err := s.deps.Speech.ListVoices(ctx)
	if err != nil {
		body := flags(map[string]any{"error": "ElevenLabs API connection failed"})
		addUpstreamDetails(body, err)
		return failed(http.StatusInternalServerError, body)
	}
	_, ttsErr := s.deps.Speech.TextToSpeech(ctx, s.deps.VoiceID, ttsCheckText)

	sample := voices
	if len(sample) > 5 {
		sample = sample[:5]
	}
	return ok(flags(map[string]any{
		"message":         "API connections successful",
		"voiceCount":      len(voices),
		"ttsWorking":      ttsErr == nil,
		"availableVoices": sample,
	}))
}

func (s *DiagnosticsService) TestSpeechToSpeech(ctx context.Context) Report {
	if !s.deps.Speech.HasKey() {
		return failed(http.StatusInternalServerError, map[string]any{"error": elevenlabs.MissingKeyMessage, "hasKey": false})
	}
	models, err := s.deps.Speech.ListModels(ctx)
	if err != nil {
		body := map[string]any{"error": "ElevenLabs API connection failed", "hasKey": true}
		addUpstreamDetails(body, err)
		return failed(http.StatusInternalServerError, body)
	}
	sts := make([]elevenlabs.Model, 0)
	for _, m := range models {
		if m.CanDoVoiceConversion || strings.Contains(m.ModelID, "sts") || strings.Contains(strings.ToLower(m.Name), "speech") {
			sts = append(sts, m)
		}
	}
	voices, voicesErr := s.deps.Speech.ListVoices(ctx)
	return ok(map[string]any{
		"message":              "ElevenLabs API connection successful",
		"hasKey":               true,
		"voicesWorking":        voicesErr == nil,
		"voiceCount":           len(voices),
		"totalModels":          len(models),
		"speechToSpeechModels": sts,
		"recommendedModel":     elevenlabs.STSModel,
	})
}

// AgentSummary is the client-facing view of an agent.
type AgentSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	VoiceID     string `json:"voice_id,omitempty"`
	CreatedAt   any    `json:"created_at,omitempty"`
	UpdatedAt   any    `json:"updated_at,omitempty"`
}

func summarizeAgent(a elevenlabs.Agent) AgentSummary {
	summary := AgentSummary{
		ID:          a.Identifier(),
		Name:        a.Name,
		Description: a.Description,
		VoiceID:     a.VoiceID,
	}
	if len(a.CreatedAt) > 0 {
		summary.CreatedAt = a.CreatedAt
	}
	if len(a.UpdatedAt) > 0 {
		summary.UpdatedAt = a.UpdatedAt
	}
	if summary.Name == "" {
		summary.Name = "Unnamed Agent"
	}
	if summary.Description == "" {
		summary.Description = "No description"
	}
	return summary
}

func (s *DiagnosticsService) ListAgents(ctx context.Context) Report {
	if !s.deps.Speech.HasKey() {
		return failed(http.StatusInternalServerError, map[string]any{"error": elevenlabs.MissingKeyMessage, "hasKey": false})
	}
	agents, err := s.deps.Speech.ListAgents(ctx)
	if err != nil {
		body := map[string]any{"error": "Failed to fetch agents", "hasKey": true}
		status := addUpstreamDetails(body, err)
		return failed(status, body)
	}
	summaries := make([]AgentSummary, 0, len(agents))
	for _, a := range agents {
		summaries = append(summaries, summarizeAgent(a))
	}
	return ok(map[string]any{
		"message":     pluralAgents(len(summaries)),
		"hasKey":      true,
		"totalAgents": len(summaries),
		"agents":      summaries,
	})
}

func (s *DiagnosticsService) TestConversationalAgent(ctx context.Context) Report {
	agentID := s.deps.AgentID
	if !s.deps.Speech.HasKey() {
		return failed(http.StatusInternalServerError, map[string]any{"error": elevenlabs.MissingKeyMessage, "hasKey": false})
	}

	available, listErr := s.deps.Speech.ListAgents(ctx)
	if listErr != nil {
		s.deps.Logger.Debug("agent list check failed", "error", listErr)
		available = nil
	}

	agent, err := s.deps.Speech.GetAgent(ctx, agentID)
	if err != nil {
		preview := make([]map[string]string, 0, 3)
		for i, a := range available {
			if i == 3 {
				break
			}
			preview = append(preview, map[string]string{"id": a.Identifier(), "name": a.Name})
		}
		suggestion := "No agents found. You may need to create an agent first in ElevenLabs dashboard"
		if len(available) > 0 {
			suggestion = "Try using one of the available agent IDs listed above"
		}
		body := map[string]any{
			"error":                "Failed to access conversational agent",
			"hasKey":               true,
			"agentId":              agentID,
			"availableAgentsCount": len(available),
			"availableAgents":      preview,
			"suggestion":           suggestion,
		}
		status := addUpstreamDetails(body, err)
		return failed(status, body)
	}

	_, voicesErr := s.deps.Speech.ListVoices(ctx)
	summary := summarizeAgent(*agent)
	return ok(map[string]any{
		"message":              "ElevenLabs conversational agent accessible",
		"hasKey":               true,
		"agentId":              agentID,
		"agentName":            summary.Name,
		"agentDescription":     summary.Description,
		"voicesWorking":        voicesErr == nil,
		"availableAgentsCount": len(available),
		"agentDetails":         summary,
	})
}

// FunctionCallingResult is the raw outcome of the create_post check.
type FunctionCallingResult struct {
	MessageContent string
	ToolCalls      []llm.ToolCall
}

// TestFunctionCalling asks the model to write a fixed post with the tool
// available and returns the raw calls without saving anything.
func (s *DiagnosticsService) TestFunctionCalling(ctx context.Context) (*FunctionCallingResult, error) {
	completion, err := s.deps.Generator.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: functionCallingSystemPrompt,
		UserMessage:  functionCallingTestMessage,
		Temperature:  chatTemperature,
		MaxTokens:    chatMaxTokens,
		Tools:        []llm.Tool{CreatePostTool},
	})
	if err != nil {
		return nil, err
	}
	return &FunctionCallingResult{MessageContent: completion.Text, ToolCalls: completion.ToolCalls}, nil
}

// addUpstreamDetails copies vendor status and body into body and returns the
// status the check should answer with.
func addUpstreamDetails(body map[string]any, err error) int {
	var upErr *apperr.UpstreamError
	if errors.As(err, &upErr) {
		body["status"] = upErr.Status
		body["details"] = upErr.Body
		if upErr.Status >= http.StatusBadRequest {
			return upErr.Status
		}
		return http.StatusInternalServerError
	}
	body["details"] = err.Error()
	return http.StatusInternalServerError
}

func pluralAgents(n int) string {
	return fmt.Sprintf("Found %d conversational agents", n)
}
