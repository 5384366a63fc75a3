// Package attachment stores entity images in object storage and hands out
// short-lived, read-only URLs for them.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"retailapi/internal/storage"
)

// DefaultValidity is used when IssueReadURL is called with a non-positive validity.
const DefaultValidity = time.Hour

// partSize bounds the buffer held in memory while streaming an upload of unknown length.
const partSize = 5 << 20

var (
	// ErrStoreFailure wraps every failure reported by the object store.
	ErrStoreFailure = errors.New("attachment store failure")
	// ErrEmptyRef is returned for a blank reference.
	ErrEmptyRef = errors.New("attachment reference is empty")
)

// Store is the attachment side of the ingestion pipeline.
type Store interface {
	// Upload streams r into a new object and returns its reference.
	Upload(ctx context.Context, r io.Reader, suggestedName, contentType string) (string, error)
	// Exists reports whether the referenced object is still present.
	Exists(ctx context.Context, ref string) (bool, error)
	// Delete removes the referenced object. Missing objects are not an error.
	Delete(ctx context.Context, ref string) error
	// IssueReadURL returns a URL granting read-only access to the object for validity.
	IssueReadURL(ctx context.Context, ref string, validity time.Duration) (string, error)
}

type objectStore struct {
	store  storage.Storage
	prefix string
}

// NewStore returns a Store that keeps images under prefix in store.
func NewStore(store storage.Storage, prefix string) Store {
	return &objectStore{store: store, prefix: strings.Trim(prefix, "/")}
}

func (s *objectStore) Upload(ctx context.Context, r io.Reader, suggestedName, contentType string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: reader is nil", ErrStoreFailure)
	}
	key := s.newKey(suggestedName)
	opts := storage.PutObjectOptions{
		Size:        -1,
		PartSize:    partSize,
		ContentType: contentType,
		Metadata:    map[string]string{"original-filename": SanitizeName(suggestedName)},
	}
	info, err := s.store.Put(ctx, key, r, opts)
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %w", ErrStoreFailure, key, err)
	}
	if info.Key != "" {
		key = info.Key
	}
	return key, nil
}

func (s *objectStore) Exists(ctx context.Context, ref string) (bool, error) {
	key := ObjectKey(ref)
	if key == "" {
		return false, ErrEmptyRef
	}
	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", ErrStoreFailure, key, err)
	}
	return ok, nil
}

func (s *objectStore) Delete(ctx context.Context, ref string) error {
	key := ObjectKey(ref)
	if key == "" {
		return ErrEmptyRef
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStoreFailure, key, err)
	}
	return nil
}

func (s *objectStore) IssueReadURL(ctx context.Context, ref string, validity time.Duration) (string, error) {
	key := ObjectKey(ref)
	if key == "" {
		return "", ErrEmptyRef
	}
	if validity <= 0 {
		validity = DefaultValidity
	}
	u, err := s.store.PresignGet(ctx, key, validity)
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %w", ErrStoreFailure, key, err)
	}
	return u, nil
}

func (s *objectStore) newKey(suggestedName string) string {
	name := uuid.NewString() + "_" + SanitizeName(suggestedName)
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// SanitizeName reduces a client-supplied file name to a safe base name.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." || base == "" {
		return "attachment"
	}
	return base
}

// ObjectKey normalizes a stored reference to an object key.
// Rows written by older clients hold a full object URL; its path minus the bucket segment is used.
func ObjectKey(ref string) string {
	ref = strings.TrimSpace(ref)
	if !strings.Contains(ref, "://") {
		return strings.TrimPrefix(ref, "/")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	p := strings.TrimPrefix(u.Path, "/")
	if _, rest, ok := strings.Cut(p, "/"); ok {
		return rest
	}
	return p
}
