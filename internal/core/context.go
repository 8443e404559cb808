package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"storyforge.app/story-forge/internal/llm"
)

// NumContextTurns is how many past exchanges are replayed to the voice model.
const NumContextTurns = 3

type pastTurn struct {
	ID        string
	CreatedAt time.Time
	User      string
	Assistant string
}

// recentTurns merges the newest chats and voice interactions into one list,
// newest first, ties broken by id ascending, truncated to n. Chat rows with
// source voice mirror a voice interaction and are skipped.
func recentTurns(ctx context.Context, chats ChatRepository, voice VoiceRepository, n int) ([]pastTurn, error) {
	chatRows, err := chats.ListChatTurns(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent chats: %w", err)
	}
	voiceRows, err := voice.ListVoiceInteractions(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent voice interactions: %w", err)
	}

	turns := make([]pastTurn, 0, len(chatRows)+len(voiceRows))
	for _, c := range chatRows {
		if c.Source == SourceVoice {
			continue
		}
		turns = append(turns, pastTurn{ID: c.ID, CreatedAt: c.CreatedAt, User: c.Request, Assistant: c.Response})
	}
	for _, v := range voiceRows {
		turns = append(turns, pastTurn{ID: v.ID, CreatedAt: v.CreatedAt, User: v.UserAudioTranscript, Assistant: v.AIResponse})
	}

	sort.Slice(turns, func(i, j int) bool {
		if !turns[i].CreatedAt.Equal(turns[j].CreatedAt) {
			return turns[i].CreatedAt.After(turns[j].CreatedAt)
		}
		return turns[i].ID < turns[j].ID
	})
	if len(turns) > n {
		turns = turns[:n]
	}
	return turns, nil
}

// historyFromTurns replays turns oldest first as user/assistant pairs.
func historyFromTurns(turns []pastTurn) []llm.Message {
	history := make([]llm.Message, 0, len(turns)*2)
	for i := len(turns) - 1; i >= 0; i-- {
		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: turns[i].User},
			llm.Message{Role: llm.RoleAssistant, Content: turns[i].Assistant},
		)
	}
	return history
}
