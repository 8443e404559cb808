package core

import (
	"encoding/json"
	"slices"
	"strings"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/llm"
)

var (
	Platforms = []string{"instagram", "twitter", "linkedin", "tiktok", "facebook", "youtube", "general"}
	PostTypes = []string{"idea", "caption", "story", "reel", "post", "thread", "video"}
	Statuses  = []string{"draft", "idea", "published"}
)

const (
	DefaultPlatform = "general"
	DefaultPostType = "idea"
	DefaultStatus   = "draft"
	DefaultSource   = "chat"

	CreatePostToolName = "create_post"
)

// CreatePostTool is the function the model calls to save a post.
var CreatePostTool = llm.Tool{
	Name:        CreatePostToolName,
	Description: "Save a post idea or content to the user's post collection",
	Parameters: llm.Param{
		Type: "object",
		Properties: map[string]llm.Param{
			"title":     {Type: "string", Description: "A short, descriptive title for the post idea"},
			"content":   {Type: "string", Description: "The actual post content, caption, or copy"},
			"platform":  {Type: "string", Enum: Platforms, Description: "The target social media platform"},
			"post_type": {Type: "string", Enum: PostTypes, Description: "The type of post content"},
			"tags": {
				Type:        "array",
				Items:       &llm.Param{Type: "string"},
				Description: "Relevant hashtags or tags (without # symbol)",
			},
		},
		Required: []string{"title", "content", "platform", "post_type"},
	},
}

// CreatePostArgs are the validated arguments of a create_post call.
type CreatePostArgs struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Platform string   `json:"platform"`
	PostType string   `json:"post_type"`
	Tags     []string `json:"tags"`
}

// ParseCreatePostArgs decodes and validates raw tool-call arguments.
func ParseCreatePostArgs(raw string) (CreatePostArgs, error) {
	var args CreatePostArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return CreatePostArgs{}, apperr.Validation("invalid create_post arguments: %v", err)
	}
	args.Title = strings.TrimSpace(args.Title)
	args.Content = strings.TrimSpace(args.Content)
	args.Platform = strings.ToLower(strings.TrimSpace(args.Platform))
	args.PostType = strings.ToLower(strings.TrimSpace(args.PostType))

	switch {
	case args.Title == "":
		return CreatePostArgs{}, apperr.Validation("create_post: title is required")
	case args.Content == "":
		return CreatePostArgs{}, apperr.Validation("create_post: content is required")
	}
	if err := checkEnum("platform", args.Platform, Platforms); err != nil {
		return CreatePostArgs{}, err
	}
	if err := checkEnum("post_type", args.PostType, PostTypes); err != nil {
		return CreatePostArgs{}, err
	}
	tags := make([]string, 0, len(args.Tags))
	for _, tag := range args.Tags {
		if tag = strings.TrimPrefix(strings.TrimSpace(tag), "#"); tag != "" {
			tags = append(tags, tag)
		}
	}
	args.Tags = tags
	return args, nil
}

func checkEnum(field, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return apperr.Validation("Invalid %s '%s'. Allowed values: %s", field, value, strings.Join(allowed, ", "))
	}
	return nil
}
