package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/set-night/mindchat/internal/domain"
)

// ObjectStore keeps uploaded attachments. Put returns a locator with the
// store's scheme that Open understands.
type ObjectStore interface {
	Scheme() string
	Put(ctx context.Context, owner domain.UserID, name, contentType string, r io.Reader, size int64) (string, error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	// Owns reports whether locator names an object this store issued to owner.
	Owns(locator string, owner domain.UserID) bool
}

// ObjectKey builds a unique key under the owner's prefix that keeps the
// original file extension.
func ObjectKey(owner domain.UserID, name string) string {
	ext := strings.ToLower(path.Ext(name))
	return ownerPrefix(owner) + time.Now().UTC().Format("2006/01/02") + "/" + uuid.NewString() + ext
}

func ownerPrefix(owner domain.UserID) string {
	return "attachments/" + string(owner) + "/"
}

func ownsKey(key string, owner domain.UserID) bool {
	if owner == "" || strings.Contains(key, "..") {
		return false
	}
	return strings.HasPrefix(key, ownerPrefix(owner))
}

// Resolver opens locators issued by the configured object store. Remote
// URLs are only read by Import.
type Resolver struct {
	store      ObjectStore
	scheme     string
	httpClient *http.Client
}

func NewResolver(store ObjectStore) *Resolver {
	return &Resolver{
		store:      store,
		scheme:     store.Scheme(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *Resolver) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("parse locator: %w", err)
	}
	if u.Scheme != r.scheme {
		return nil, fmt.Errorf("%w: unsupported locator scheme %q", domain.ErrInvalidAttachment, u.Scheme)
	}
	return r.store.Open(ctx, locator)
}

// fetch downloads a remote URL.
func (r *Resolver) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Import copies a remote URL into the object store under owner and returns
// the new locator.
func (r *Resolver) Import(ctx context.Context, owner domain.UserID, rawURL, name, contentType string, size int64) (string, error) {
	body, err := r.fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return r.store.Put(ctx, owner, name, contentType, body, size)
}
