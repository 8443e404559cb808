// Package objectstore talks to Supabase Storage through the storage-go SDK.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	storage "github.com/supabase-community/storage-go"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/retry"
)

const (
	vendor       = "Supabase Storage"
	listLimit    = 100
	cacheControl = "max-age=3600"

	// MissingConfigMessage matches the row store so clients see one message.
	MissingConfigMessage = "Supabase configuration missing"
)

// Config captures the credentials required to reach a storage bucket.
type Config struct {
	BaseURL        string
	ServiceRoleKey string
	Bucket         string
}

// Client uploads, lists and removes objects in one bucket.
type Client struct {
	cfg    Config
	policy retry.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithRetryPolicy overrides the single-attempt default.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// New constructs a storage client. It never fails; missing credentials are
// reported by each call as a ConfigError.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			ServiceRoleKey: strings.TrimSpace(cfg.ServiceRoleKey),
			Bucket:         strings.TrimSpace(cfg.Bucket),
		},
		policy: retry.Default(),
	}
	if c.cfg.Bucket == "" {
		c.cfg.Bucket = "images"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether both the URL and key are present.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.ServiceRoleKey != ""
}

// Bucket returns the bucket name objects are stored in.
func (c *Client) Bucket() string { return c.cfg.Bucket }

// sdk builds a fresh SDK client. The SDK writes upload headers into state
// shared by every request it sends, so one client is never used concurrently.
func (c *Client) sdk() *storage.Client {
	return storage.NewClient(c.cfg.BaseURL+"/storage/v1", c.cfg.ServiceRoleKey, map[string]string{
		"apikey": c.cfg.ServiceRoleKey,
	})
}

// Object describes one stored file.
type Object struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	URL       string    `json:"url"`
	Path      string    `json:"path"`
}

// Bucket describes a storage bucket.
type Bucket struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicURL returns the public address of path in the bucket.
func (c *Client) PublicURL(path string) string {
	return c.sdk().GetPublicUrl(c.cfg.Bucket, strings.Trim(path, "/")).SignedURL
}

// Upload stores body at path and returns its public URL. Existing objects are
// never overwritten.
func (c *Client) Upload(ctx context.Context, path, contentType string, body []byte) (string, error) {
	if !c.Configured() {
		return "", apperr.Config(MissingConfigMessage)
	}
	upsert := false
	cache := cacheControl
	opts := storage.FileOptions{ContentType: &contentType, CacheControl: &cache, Upsert: &upsert}
	err := c.policy.Do(ctx, "storage upload", func(ctx context.Context) error {
		return call(ctx, func() error {
			_, err := c.sdk().UploadFile(c.cfg.Bucket, strings.Trim(path, "/"), bytes.NewReader(body), opts)
			return err
		})
	})
	if err != nil {
		return "", apperr.Store("Upload failed", err)
	}
	return c.PublicURL(path), nil
}

// List returns up to 100 objects under folder, newest first.
func (c *Client) List(ctx context.Context, folder string) ([]Object, error) {
	if !c.Configured() {
		return nil, apperr.Config(MissingConfigMessage)
	}
	search := storage.FileSearchOptions{
		Limit:         listLimit,
		SortByOptions: storage.SortBy{Column: "created_at", Order: "desc"},
	}
	var entries []storage.FileObject
	err := c.policy.Do(ctx, "storage list", func(ctx context.Context) error {
		return call(ctx, func() error {
			var err error
			entries, err = c.sdk().ListFiles(c.cfg.Bucket, folder, search)
			return err
		})
	})
	if err != nil {
		return nil, apperr.Store("Failed to list images", err)
	}

	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		// Folder placeholders come back without an id.
		if entry.Id == "" {
			continue
		}
		path := strings.Trim(folder, "/") + "/" + entry.Name
		objects = append(objects, Object{
			Name:      entry.Name,
			Size:      metadataSize(entry.Metadata),
			CreatedAt: parseTime(entry.CreatedAt),
			UpdatedAt: parseTime(entry.UpdatedAt),
			URL:       c.PublicURL(path),
			Path:      path,
		})
	}
	return objects, nil
}

// Delete removes the object at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	if !c.Configured() {
		return apperr.Config(MissingConfigMessage)
	}
	err := c.policy.Do(ctx, "storage delete", func(ctx context.Context) error {
		return call(ctx, func() error {
			_, err := c.sdk().RemoveFile(c.cfg.Bucket, []string{path})
			return err
		})
	})
	return apperr.Store("Failed to delete image", err)
}

// ListBuckets returns every bucket visible to the service key.
func (c *Client) ListBuckets(ctx context.Context) ([]Bucket, error) {
	if !c.Configured() {
		return nil, apperr.Config(MissingConfigMessage)
	}
	var raw []storage.Bucket
	err := c.policy.Do(ctx, "storage buckets", func(ctx context.Context) error {
		return call(ctx, func() error {
			var err error
			raw, err = c.sdk().ListBuckets()
			return err
		})
	})
	if err != nil {
		return nil, apperr.Store("Failed to list buckets", err)
	}
	buckets := make([]Bucket, 0, len(raw))
	for _, b := range raw {
		buckets = append(buckets, Bucket{
			ID:        b.Id,
			Name:      b.Name,
			Public:    b.Public,
			CreatedAt: parseTime(b.CreatedAt),
			UpdatedAt: parseTime(b.UpdatedAt),
		})
	}
	return buckets, nil
}

// call runs one SDK request. The SDK takes no context, so cancellation only
// releases the caller; the request itself finishes in the background.
func call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return mapStorageError(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mapStorageError converts SDK failures into UpstreamError so retries and
// logs see the vendor's status and message.
func mapStorageError(err error) error {
	var se *storage.StorageError
	if !errors.As(err, &se) {
		return err
	}
	return &apperr.UpstreamError{
		Vendor:  vendor,
		Status:  se.Status,
		Message: se.Message,
	}
}

func metadataSize(metadata any) int64 {
	m, ok := metadata.(map[string]any)
	if !ok {
		return 0
	}
	if size, ok := m["size"].(float64); ok {
		return int64(size)
	}
	return 0
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
