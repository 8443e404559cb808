package core

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"storyforge.app/story-forge/internal/elevenlabs"
	"storyforge.app/story-forge/internal/llm"
	"storyforge.app/story-forge/internal/logging"
	"storyforge.app/story-forge/internal/objectstore"
	"storyforge.app/story-forge/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "core.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var testLogger = logging.Discard()

type fakeGenerator struct {
	mu         sync.Mutex
	completion *llm.Completion
	err        error
	requests   []llm.CompletionRequest
}

func (f *fakeGenerator) Complete(_ context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func (f *fakeGenerator) last() llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(_ context.Context, _ string, audio io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, audio)
	return f.text, f.err
}

type fakeSpeech struct {
	hasKey     bool
	tts        []byte
	ttsErr     error
	ttsText    string
	sts        []byte
	stsPrompt  string
	agent      *elevenlabs.Agent
	agentErr   error
	agents     []elevenlabs.Agent
	agentsErr  error
	voices     []elevenlabs.Voice
	voicesErr  error
	models     []elevenlabs.Model
	modelsErr  error
	agentAudio []byte
}

func (f *fakeSpeech) HasKey() bool { return f.hasKey }

func (f *fakeSpeech) TextToSpeech(_ context.Context, _ string, text string) ([]byte, error) {
	f.ttsText = text
	return f.tts, f.ttsErr
}

func (f *fakeSpeech) SpeechToSpeech(_ context.Context, _ string, _ []byte, prompt string) ([]byte, error) {
	f.stsPrompt = prompt
	return f.sts, nil
}

func (f *fakeSpeech) AgentConversation(context.Context, string, []byte) ([]byte, error) {
	return f.agentAudio, nil
}

func (f *fakeSpeech) GetAgent(context.Context, string) (*elevenlabs.Agent, error) {
	return f.agent, f.agentErr
}

func (f *fakeSpeech) ListAgents(context.Context) ([]elevenlabs.Agent, error) {
	return f.agents, f.agentsErr
}

func (f *fakeSpeech) ListVoices(context.Context) ([]elevenlabs.Voice, error) {
	return f.voices, f.voicesErr
}

func (f *fakeSpeech) ListModels(context.Context) ([]elevenlabs.Model, error) {
	return f.models, f.modelsErr
}

type fakeBlobs struct {
	configured bool
	uploads    map[string][]byte
	uploadErr  error
	objects    []objectstore.Object
	buckets    []objectstore.Bucket
	deleted    []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{configured: true, uploads: map[string][]byte{}}
}

func (f *fakeBlobs) Configured() bool { return f.configured }
func (f *fakeBlobs) Bucket() string   { return "images" }

func (f *fakeBlobs) Upload(_ context.Context, path, _ string, body []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads[path] = body
	return "https://cdn.test/images/" + path, nil
}

func (f *fakeBlobs) List(context.Context, string) ([]objectstore.Object, error) {
	return f.objects, nil
}

func (f *fakeBlobs) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeBlobs) ListBuckets(context.Context) ([]objectstore.Bucket, error) {
	return f.buckets, nil
}
