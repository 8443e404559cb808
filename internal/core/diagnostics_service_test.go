package core

import (
	"context"
	"net/http"
	"testing"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/elevenlabs"
	"storyforge.app/story-forge/internal/llm"
	"storyforge.app/story-forge/internal/objectstore"
)

func newDiagnostics(t *testing.T, speech *fakeSpeech, blobs *fakeBlobs) *DiagnosticsService {
	t.Helper()
	return NewDiagnosticsService(DiagnosticsDeps{
		Repo:         newTestStore(t),
		Blobs:        blobs,
		Speech:       speech,
		Generator:    &fakeGenerator{completion: &llm.Completion{Text: "ok"}},
		StoreReady:   true,
		HasOpenAIKey: true,
		VoiceID:      "voice-1",
		AgentID:      "agent-1",
		Logger:       testLogger,
	})
}

func TestListAgentsWithoutKey(t *testing.T) {
	report := newDiagnostics(t, &fakeSpeech{}, newFakeBlobs()).ListAgents(context.Background())
	if report.Status != http.StatusInternalServerError || report.Body["hasKey"] != false {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestListAgentsSummaries(t *testing.T) {
	speech := &fakeSpeech{hasKey: true, agents: []elevenlabs.Agent{{AgentID: "a1"}, {ID: "a2", Name: "Forge"}}}
	report := newDiagnostics(t, speech, newFakeBlobs()).ListAgents(context.Background())
	if report.Status != http.StatusOK || report.Body["totalAgents"] != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	agents := report.Body["agents"].([]AgentSummary)
	if agents[0].Name != "Unnamed Agent" || agents[1].ID != "a2" {
		t.Fatalf("agents = %+v", agents)
	}
}

func TestConversationalAgentCheckPropagatesStatus(t *testing.T) {
	speech := &fakeSpeech{
		hasKey:   true,
		agents:   []elevenlabs.Agent{{AgentID: "other", Name: "Other"}},
		agentErr: &apperr.UpstreamError{Vendor: "ElevenLabs", Status: http.StatusNotFound, Body: `{"detail":"missing"}`},
	}
	report := newDiagnostics(t, speech, newFakeBlobs()).TestConversationalAgent(context.Background())
	if report.Status != http.StatusNotFound {
		t.Fatalf("status = %d", report.Status)
	}
	if report.Body["suggestion"] != "Try using one of the available agent IDs listed above" {
		t.Fatalf("suggestion = %v", report.Body["suggestion"])
	}
}

func TestStorageCheck(t *testing.T) {
	blobs := newFakeBlobs()
	report := newDiagnostics(t, &fakeSpeech{}, blobs).TestStorage(context.Background())
	if report.Status != http.StatusNotFound {
		t.Fatalf("missing bucket should be 404, got %d", report.Status)
	}

	blobs.buckets = []objectstore.Bucket{{ID: "images", Public: true}}
	report = newDiagnostics(t, &fakeSpeech{}, blobs).TestStorage(context.Background())
	if report.Status != http.StatusOK || report.Body["canList"] != true {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSpeechToSpeechCheckFiltersModels(t *testing.T) {
	speech := &fakeSpeech{hasKey: true, models: []elevenlabs.Model{
		{ModelID: "eleven_english_sts_v2", Name: "English STS"},
		{ModelID: "eleven_multilingual_v2", Name: "Multilingual", CanDoVoiceConversion: false},
		{ModelID: "x", Name: "Speech Lab"},
	}}
	report := newDiagnostics(t, speech, newFakeBlobs()).TestSpeechToSpeech(context.Background())
	models := report.Body["speechToSpeechModels"].([]elevenlabs.Model)
	if len(models) != 2 {
		t.Fatalf("sts models = %+v", models)
	}
}

func TestFunctionCallingCheckUsesTool(t *testing.T) {
	gen := &fakeGenerator{completion: &llm.Completion{ToolCalls: []llm.ToolCall{{Name: "create_post"}}}}
	svc := NewDiagnosticsService(DiagnosticsDeps{Generator: gen, Logger: testLogger})
	res, err := svc.TestFunctionCalling(context.Background())
	if err != nil {
		t.Fatalf("TestFunctionCalling: %v", err)
	}
	if len(res.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", res.ToolCalls)
	}
	if req := gen.last(); req.SystemPrompt != functionCallingSystemPrompt || len(req.Tools) != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
}
