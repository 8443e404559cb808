package core

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/objectstore"
	"storyforge.app/story-forge/internal/store"
)

const (
	MaxImageSize       = 5 * 1024 * 1024
	DefaultImageFolder = "post-images"

	ImageTooLargeMessage = "File too large. Maximum size is 5MB."
	errImageBadType      = "Invalid file type. Only JPEG, PNG, GIF, and WebP images are allowed."
	errImagePathNeeded   = "File path is required"
)

var (
	AllowedImageTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp"}

	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
)

// ValidateImage checks the declared type and size of an upload.
func ValidateImage(contentType string, size int64) error {
	if !slices.Contains(AllowedImageTypes, strings.ToLower(strings.TrimSpace(contentType))) {
		return apperr.Validation(errImageBadType)
	}
	if size > MaxImageSize {
		return apperr.Validation(ImageTooLargeMessage)
	}
	return nil
}

// SanitizeFilename replaces every character outside [a-zA-Z0-9.-] with '_'.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

type MediaService struct {
	blobs  BlobStore
	posts  PostRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewMediaService(blobs BlobStore, posts PostRepository, logger *slog.Logger) *MediaService {
	return &MediaService{blobs: blobs, posts: posts, logger: logger, now: time.Now}
}

// UploadInput is one image upload.
type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
	PostID      string
	Folder      string
}

type UploadResult struct {
	ImageURL string  `json:"imageUrl"`
	FilePath string  `json:"filePath"`
	FileName string  `json:"fileName"`
	FileSize int64   `json:"fileSize"`
	FileType string  `json:"fileType"`
	PostID   *string `json:"postId"`
}

// Upload validates and stores an image. With a PostID, the image details are
// merged into that post's metadata; a failed merge is logged only.
func (s *MediaService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if len(in.Data) == 0 {
		return nil, apperr.Validation("No file provided")
	}
	size := int64(len(in.Data))
	if err := ValidateImage(in.ContentType, size); err != nil {
		return nil, err
	}
	if !s.blobs.Configured() {
		return nil, apperr.Config(objectstore.MissingConfigMessage)
	}

	folder := strings.Trim(strings.TrimSpace(in.Folder), "/")
	if folder == "" {
		folder = DefaultImageFolder
	}
	fileName := fmt.Sprintf("%d_%s", s.now().UnixMilli(), SanitizeFilename(in.Filename))
	filePath := folder + "/" + fileName

	url, err := s.blobs.Upload(ctx, filePath, in.ContentType, in.Data)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{
		ImageURL: url,
		FilePath: filePath,
		FileName: fileName,
		FileSize: size,
		FileType: in.ContentType,
	}
	if postID := strings.TrimSpace(in.PostID); postID != "" {
		result.PostID = &postID
		_, err := s.posts.UpdatePost(ctx, postID, store.PostPatch{Metadata: map[string]any{
			"image_url":      url,
			"image_path":     filePath,
			"image_filename": fileName,
			"image_size":     size,
			"image_type":     in.ContentType,
		}})
		if err != nil {
			s.logger.Error("failed to attach image to post", "post_id", postID, "error", err)
		}
	}
	return result, nil
}

func (s *MediaService) List(ctx context.Context, folder string) ([]objectstore.Object, error) {
	if !s.blobs.Configured() {
		return nil, apperr.Config(objectstore.MissingConfigMessage)
	}
	if folder = strings.Trim(strings.TrimSpace(folder), "/"); folder == "" {
		folder = DefaultImageFolder
	}
	return s.blobs.List(ctx, folder)
}

func (s *MediaService) Delete(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return apperr.Validation(errImagePathNeeded)
	}
	if !s.blobs.Configured() {
		return apperr.Config(objectstore.MissingConfigMessage)
	}
	return s.blobs.Delete(ctx, path)
}
