package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChatTurn is one request/response exchange, from text chat or voice.
type ChatTurn struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Request        string    `gorm:"type:text;not null" json:"request"`
	Response       string    `gorm:"type:text;not null" json:"response"`
	Source         string    `gorm:"size:64" json:"source"`
	ConversationID *string   `gorm:"size:128" json:"conversation_id"` // Nullable
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (ChatTurn) TableName() string { return "chats" }

func (c *ChatTurn) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// VoiceInteraction records a completed voice round-trip.
type VoiceInteraction struct {
	ID                  string    `gorm:"primaryKey;size:36" json:"id"`
	UserAudioTranscript string    `gorm:"type:text;not null" json:"user_audio_transcript"`
	AIResponse          string    `gorm:"column:ai_response;type:text;not null" json:"ai_response"`
	InteractionType     string    `gorm:"size:64" json:"interaction_type"`
	DurationMS          *int64    `gorm:"column:duration_ms" json:"duration_ms"`
	AudioURL            *string   `json:"audio_url"`
	CreatedAt           time.Time `gorm:"index" json:"created_at"`
}

func (VoiceInteraction) TableName() string { return "voice" }

func (v *VoiceInteraction) BeforeCreate(*gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// Post is a generated or hand-written piece of social content.
type Post struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	Title         string         `gorm:"not null" json:"title"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	Platform      string         `gorm:"size:32" json:"platform"`
	PostType      string         `gorm:"column:post_type;size:32" json:"post_type"`
	Tags          datatypes.JSON `json:"tags"`
	Source        string         `gorm:"size:64" json:"source"`
	Status        string         `gorm:"size:32" json:"status"`
	ScheduledDate *time.Time     `json:"scheduled_date"`
	UserPrompt    *string        `gorm:"type:text" json:"user_prompt"`
	Metadata      datatypes.JSON `json:"metadata"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

func (p *Post) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if len(p.Tags) == 0 {
		p.Tags = datatypes.JSON("[]")
	}
	if len(p.Metadata) == 0 {
		p.Metadata = datatypes.JSON("{}")
	}
	return nil
}

// TagList decodes Tags; a malformed column yields nil.
func (p *Post) TagList() []string {
	var tags []string
	if len(p.Tags) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// SetTags stores tags in insertion order, dropping repeats.
func (p *Post) SetTags(tags []string) {
	seen := make(map[string]struct{}, len(tags))
	clean := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		clean = append(clean, tag)
	}
	raw, _ := json.Marshal(clean)
	p.Tags = datatypes.JSON(raw)
}

// MetadataMap decodes Metadata into a fresh map.
func (p *Post) MetadataMap() map[string]any {
	meta := map[string]any{}
	if len(p.Metadata) == 0 {
		return meta
	}
	if err := json.Unmarshal(p.Metadata, &meta); err != nil || meta == nil {
		return map[string]any{}
	}
	return meta
}

// SetMetadata replaces Metadata with meta.
func (p *Post) SetMetadata(meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	p.Metadata = datatypes.JSON(raw)
	return nil
}

// Nullable carries a field of a partial update. Set=false leaves the column
// alone; Set=true with a nil Value clears it.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// PostPatch lists the fields of a partial post update. Nil pointers are left
// unchanged. Metadata is merged into the stored object key by key; a nil
// value removes that key.
type PostPatch struct {
	Title         *string
	Content       *string
	Platform      *string
	PostType      *string
	Source        *string
	Status        *string
	Tags          *[]string
	ScheduledDate Nullable[time.Time]
	UserPrompt    Nullable[string]
	Metadata      map[string]any
	ResetMetadata bool
}

// Apply writes the patch onto p.
func (patch PostPatch) Apply(p *Post) error {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.Platform != nil {
		p.Platform = *patch.Platform
	}
	if patch.PostType != nil {
		p.PostType = *patch.PostType
	}
	if patch.Source != nil {
		p.Source = *patch.Source
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Tags != nil {
		p.SetTags(*patch.Tags)
	}
	if patch.ScheduledDate.Set {
		p.ScheduledDate = patch.ScheduledDate.Value
	}
	if patch.UserPrompt.Set {
		p.UserPrompt = patch.UserPrompt.Value
	}
	if patch.ResetMetadata || patch.Metadata != nil {
		meta := p.MetadataMap()
		if patch.ResetMetadata {
			meta = map[string]any{}
		}
		for key, value := range patch.Metadata {
			if value == nil {
				delete(meta, key)
				continue
			}
			meta[key] = value
		}
		if err := p.SetMetadata(meta); err != nil {
			return err
		}
	}
	return nil
}
