package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/store"
)

const (
	DefaultPostListLimit = 100
	MaxPostListLimit     = 500
)

type PostService struct {
	posts  PostRepository
	logger *slog.Logger
}

func NewPostService(posts PostRepository, logger *slog.Logger) *PostService {
	return &PostService{posts: posts, logger: logger}
}

// PostInput is a new post; empty fields take the column defaults.
type PostInput struct {
	Title         string
	Content       string
	Platform      string
	PostType      string
	Tags          []string
	Source        string
	Status        string
	ScheduledDate *time.Time
	UserPrompt    *string
	Metadata      map[string]any
}

func (s *PostService) Create(ctx context.Context, in PostInput) (*store.Post, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		return nil, apperr.Validation("Missing required fields: title and content")
	}
	post := &store.Post{
		Title:         in.Title,
		Content:       in.Content,
		Platform:      orDefault(in.Platform, DefaultPlatform),
		PostType:      orDefault(in.PostType, DefaultPostType),
		Source:        orDefault(in.Source, DefaultSource),
		Status:        orDefault(in.Status, DefaultStatus),
		ScheduledDate: in.ScheduledDate,
		UserPrompt:    in.UserPrompt,
	}
	if err := validatePostEnums(post.Platform, post.PostType, post.Status); err != nil {
		return nil, err
	}
	post.SetTags(in.Tags)
	if err := post.SetMetadata(in.Metadata); err != nil {
		return nil, apperr.Validation("invalid metadata: %v", err)
	}

	created, err := s.posts.CreatePost(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("failed to store post: %w", err)
	}
	return created, nil
}

// CreateFromTool saves a post requested through a create_post tool call.
func (s *PostService) CreateFromTool(ctx context.Context, args CreatePostArgs, source, userPrompt string) (*store.Post, error) {
	in := PostInput{
		Title:    args.Title,
		Content:  args.Content,
		Platform: args.Platform,
		PostType: args.PostType,
		Tags:     args.Tags,
		Source:   source,
		Metadata: map[string]any{"created_via": CreatePostToolName},
	}
	if userPrompt != "" {
		in.UserPrompt = &userPrompt
	}
	return s.Create(ctx, in)
}

// Update applies a partial update. Fields absent from patch are untouched.
func (s *PostService) Update(ctx context.Context, id string, patch store.PostPatch) (*store.Post, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("Post ID is required")
	}
	if patch.Platform != nil {
		if err := checkEnum("platform", *patch.Platform, Platforms); err != nil {
			return nil, err
		}
	}
	if patch.PostType != nil {
		if err := checkEnum("post_type", *patch.PostType, PostTypes); err != nil {
			return nil, err
		}
	}
	if patch.Status != nil {
		if err := checkEnum("status", *patch.Status, Statuses); err != nil {
			return nil, err
		}
	}
	return s.posts.UpdatePost(ctx, id, patch)
}

func (s *PostService) List(ctx context.Context, limit int) ([]store.Post, error) {
	return s.posts.ListPosts(ctx, ClampLimit(limit, DefaultPostListLimit, MaxPostListLimit))
}

func validatePostEnums(platform, postType, status string) error {
	if err := checkEnum("platform", platform, Platforms); err != nil {
		return err
	}
	if err := checkEnum("post_type", postType, PostTypes); err != nil {
		return err
	}
	return checkEnum("status", status, Statuses)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
