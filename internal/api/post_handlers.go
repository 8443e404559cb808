package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storyforge.app/story-forge/internal/core"
	"storyforge.app/story-forge/internal/store"
)

type CreatePostRequest struct {
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	Platform      string         `json:"platform"`
	PostType      string         `json:"post_type"`
	Tags          []string       `json:"tags"`
	Source        string         `json:"source"`
	Status        string         `json:"status"`
	ScheduledDate *time.Time     `json:"scheduled_date"`
	UserPrompt    *string        `json:"user_prompt"`
	Metadata      map[string]any `json:"metadata"`
}

func (h *APIHandler) ListPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.List(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch posts", map[string]any{"posts": []store.Post{}, "count": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "posts": posts, "count": len(posts)})
}

func (h *APIHandler) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
		return
	}
	post, err := h.posts.Create(r.Context(), core.PostInput{
		Title:         req.Title,
		Content:       req.Content,
		Platform:      req.Platform,
		PostType:      req.PostType,
		Tags:          req.Tags,
		Source:        req.Source,
		Status:        req.Status,
		ScheduledDate: req.ScheduledDate,
		UserPrompt:    req.UserPrompt,
		Metadata:      req.Metadata,
	})
	if err != nil {
		h.fail(w, r, err, "Failed to store post", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      post.ID,
		"post":    post,
		"message": "Post stored successfully",
	})
}

// UpdatePostHandler applies a partial update. The body is decoded field by
// field so an explicit null can be told apart from an absent key.
func (h *APIHandler) UpdatePostHandler(w http.ResponseWriter, r *http.Request) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
		return
	}
	var id string
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &id); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", "id must be a string", nil)
			return
		}
	}
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "Post ID is required", "", nil)
		return
	}

	patch, err := decodePostPatch(fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
		return
	}
	post, err := h.posts.Update(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err, "Failed to update post", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "post": post})
}

func decodePostPatch(fields map[string]json.RawMessage) (store.PostPatch, error) {
	var patch store.PostPatch
	strFields := map[string]**string{
		"title":     &patch.Title,
		"content":   &patch.Content,
		"platform":  &patch.Platform,
		"post_type": &patch.PostType,
		"source":    &patch.Source,
		"status":    &patch.Status,
	}
	for key, dst := range strFields {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return patch, fmt.Errorf("%s must be a string", key)
		}
		*dst = &v
	}

	if raw, ok := fields["tags"]; ok {
		tags := []string{}
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &tags); err != nil {
				return patch, fmt.Errorf("tags must be an array of strings")
			}
		}
		patch.Tags = &tags
	}

	if raw, ok := fields["scheduled_date"]; ok {
		patch.ScheduledDate.Set = true
		if !isNull(raw) {
			var t time.Time
			if err := json.Unmarshal(raw, &t); err != nil {
				return patch, fmt.Errorf("scheduled_date must be an RFC 3339 timestamp")
			}
			patch.ScheduledDate.Value = &t
		}
	}

	if raw, ok := fields["user_prompt"]; ok {
		patch.UserPrompt.Set = true
		if !isNull(raw) {
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return patch, fmt.Errorf("user_prompt must be a string")
			}
			patch.UserPrompt.Value = &v
		}
	}

	if raw, ok := fields["metadata"]; ok {
		if isNull(raw) {
			patch.ResetMetadata = true
		} else {
			meta := map[string]any{}
			if err := json.Unmarshal(raw, &meta); err != nil {
				return patch, fmt.Errorf("metadata must be an object")
			}
			patch.Metadata = meta
		}
	}
	return patch, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
