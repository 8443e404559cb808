package core

import (
	"context"

	"storyforge.app/story-forge/internal/elevenlabs"
	"storyforge.app/story-forge/internal/objectstore"
	"storyforge.app/story-forge/internal/store"
)

type ChatRepository interface {
	CreateChatTurn(ctx context.Context, request, response, source string, conversationID *string) (*store.ChatTurn, error)
	ListChatTurns(ctx context.Context, limit int) ([]store.ChatTurn, error)
	DeleteChatTurn(ctx context.Context, id string) error
	CountChatTurns(ctx context.Context) (int64, error)
}

type VoiceRepository interface {
	CreateVoiceInteraction(ctx context.Context, v *store.VoiceInteraction) (*store.VoiceInteraction, error)
	ListVoiceInteractions(ctx context.Context, limit int) ([]store.VoiceInteraction, error)
}

type PostRepository interface {
	CreatePost(ctx context.Context, p *store.Post) (*store.Post, error)
	GetPost(ctx context.Context, id string) (*store.Post, error)
	UpdatePost(ctx context.Context, id string, patch store.PostPatch) (*store.Post, error)
	ListPosts(ctx context.Context, limit int) ([]store.Post, error)
}

// Repository is the full row store; *store.Store satisfies it.
type Repository interface {
	ChatRepository
	VoiceRepository
	PostRepository
	Ping(ctx context.Context) error
}

// BlobStore is the image bucket; *objectstore.Client satisfies it.
type BlobStore interface {
	Configured() bool
	Bucket() string
	Upload(ctx context.Context, path, contentType string, body []byte) (string, error)
	List(ctx context.Context, folder string) ([]objectstore.Object, error)
	Delete(ctx context.Context, path string) error
	ListBuckets(ctx context.Context) ([]objectstore.Bucket, error)
}

// SpeechClient is the voice vendor; *elevenlabs.Client satisfies it.
type SpeechClient interface {
	HasKey() bool
	TextToSpeech(ctx context.Context, voiceID, text string) ([]byte, error)
	SpeechToSpeech(ctx context.Context, voiceID string, audio []byte, prompt string) ([]byte, error)
	AgentConversation(ctx context.Context, agentID string, audio []byte) ([]byte, error)
	GetAgent(ctx context.Context, agentID string) (*elevenlabs.Agent, error)
	ListAgents(ctx context.Context) ([]elevenlabs.Agent, error)
	ListVoices(ctx context.Context) ([]elevenlabs.Voice, error)
	ListModels(ctx context.Context) ([]elevenlabs.Model, error)
}

// UnavailableRepository answers every call with err. It stands in for the
// row store when the process starts without database credentials.
func UnavailableRepository(err error) Repository {
	return unavailableRepo{err: err}
}

type unavailableRepo struct{ err error }

func (u unavailableRepo) CreateChatTurn(context.Context, string, string, string, *string) (*store.ChatTurn, error) {
	return nil, u.err
}
func (u unavailableRepo) ListChatTurns(context.Context, int) ([]store.ChatTurn, error) {
	return nil, u.err
}
func (u unavailableRepo) DeleteChatTurn(context.Context, string) error { return u.err }
func (u unavailableRepo) CountChatTurns(context.Context) (int64, error) {
	return 0, u.err
}
func (u unavailableRepo) CreateVoiceInteraction(context.Context, *store.VoiceInteraction) (*store.VoiceInteraction, error) {
	return nil, u.err
}
func (u unavailableRepo) ListVoiceInteractions(context.Context, int) ([]store.VoiceInteraction, error) {
	return nil, u.err
}
func (u unavailableRepo) CreatePost(context.Context, *store.Post) (*store.Post, error) {
	return nil, u.err
}
func (u unavailableRepo) GetPost(context.Context, string) (*store.Post, error) { return nil, u.err }
func (u unavailableRepo) UpdatePost(context.Context, string, store.PostPatch) (*store.Post, error) {
	return nil, u.err
}
func (u unavailableRepo) ListPosts(context.Context, int) ([]store.Post, error) { return nil, u.err }
func (u unavailableRepo) Ping(context.Context) error                         { return u.err }
