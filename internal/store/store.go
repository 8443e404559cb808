package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"storyforge.app/story-forge/internal/apperr"
)

// MissingConfigMessage is returned for every row operation when no database is configured.
const MissingConfigMessage = "Supabase configuration missing"

// Store is the persistence gateway for chats, voice interactions and posts.
type Store struct {
	db *gorm.DB
}

// Open connects to the database described by dsn and migrates the schema.
// URLs and key/value DSNs go to Postgres; anything else is a SQLite path.
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, apperr.Config(MissingConfigMessage)
	}

	var dialector gorm.Dialector
	if isPostgresDSN(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialector.Name() == "sqlite" {
		if err := enableWAL(db); err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				sqlDB.Close()
			}
			return nil, err
		}
	}

	if err := db.AutoMigrate(&ChatTurn{}, &VoiceInteraction{}, &Post{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func enableWAL(db *gorm.DB) error {
	if err := db.Exec("PRAGMA journal_mode = WAL;").Error; err != nil {
		return fmt.Errorf("failed to set journal mode: %w", err)
	}
	return nil
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Store("ping database", err)
	}
	return apperr.Store("ping database", sqlDB.PingContext(ctx))
}

// Chat methods
func (s *Store) CreateChatTurn(ctx context.Context, request, response, source string, conversationID *string) (*ChatTurn, error) {
	turn := &ChatTurn{
		Request:        request,
		Response:       response,
		Source:         source,
		ConversationID: conversationID,
	}
	if err := s.db.WithContext(ctx).Create(turn).Error; err != nil {
		return nil, apperr.Store("failed to insert chat", err)
	}
	return turn, nil
}

// ListChatTurns returns the newest turns first; equal timestamps sort by id.
func (s *Store) ListChatTurns(ctx context.Context, limit int) ([]ChatTurn, error) {
	turns := []ChatTurn{}
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id ASC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, apperr.Store("failed to query chats", err)
	}
	return turns, nil
}

// DeleteChatTurn removes one turn. Deleting a missing id is not an error.
func (s *Store) DeleteChatTurn(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&ChatTurn{}).Error
	return apperr.Store("failed to delete chat", err)
}

func (s *Store) CountChatTurns(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&ChatTurn{}).Count(&count).Error; err != nil {
		return 0, apperr.Store("failed to count chats", err)
	}
	return count, nil
}

// Voice methods
func (s *Store) CreateVoiceInteraction(ctx context.Context, v *VoiceInteraction) (*VoiceInteraction, error) {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, apperr.Store("failed to insert voice interaction", err)
	}
	return v, nil
}

func (s *Store) ListVoiceInteractions(ctx context.Context, limit int) ([]VoiceInteraction, error) {
	voice := []VoiceInteraction{}
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id ASC").
		Limit(limit).
		Find(&voice).Error
	if err != nil {
		return nil, apperr.Store("failed to query voice interactions", err)
	}
	return voice, nil
}

// Post methods
func (s *Store) CreatePost(ctx context.Context, p *Post) (*Post, error) {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, apperr.Store("failed to insert post", err)
	}
	return p, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	var post Post
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post %s: %w", id, apperr.ErrNotFound)
		}
		return nil, apperr.Store("failed to get post", err)
	}
	return &post, nil
}

// UpdatePost applies patch to the stored post; omitted fields keep their value.
func (s *Store) UpdatePost(ctx context.Context, id string, patch PostPatch) (*Post, error) {
	var updated Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&updated).Error; err != nil {
			return err
		}
		if err := patch.Apply(&updated); err != nil {
			return err
		}
		return tx.Save(&updated).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post %s: %w", id, apperr.ErrNotFound)
		}
		return nil, apperr.Store("failed to update post", err)
	}
	return &updated, nil
}

func (s *Store) ListPosts(ctx context.Context, limit int) ([]Post, error) {
	posts := []Post{}
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id ASC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, apperr.Store("failed to query posts", err)
	}
	return posts, nil
}
