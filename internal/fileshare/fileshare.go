// Package fileshare is the plain per-kind file area: named files under
// <prefix>/<kind plural>/ with list, upload and download.
package fileshare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"retailapi/internal/model"
	"retailapi/internal/storage"
)

var (
	// ErrInvalidName rejects names that would escape the kind's directory.
	ErrInvalidName = errors.New("invalid file name")
	// ErrNotFound is returned by Download for a missing file.
	ErrNotFound = storage.ErrNotFound
)

// partSize bounds the buffer used for uploads of unknown length.
const partSize = 5 << 20

// Share lists, stores and serves files for each kind.
type Share interface {
	List(ctx context.Context, kind model.Kind) ([]string, error)
	Upload(ctx context.Context, kind model.Kind, fileName string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, kind model.Kind, fileName string) (io.ReadCloser, storage.ObjectInfo, error)
}

type share struct {
	store  storage.Storage
	prefix string
}

// New returns a Share rooted at prefix in store.
func New(store storage.Storage, prefix string) Share {
	return &share{store: store, prefix: strings.Trim(prefix, "/")}
}

func (s *share) dir(kind model.Kind) string {
	if s.prefix == "" {
		return kind.Plural()
	}
	return s.prefix + "/" + kind.Plural()
}

func (s *share) key(kind model.Kind, fileName string) (string, error) {
	name := strings.TrimSpace(fileName)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, fileName)
	}
	return path.Join(s.dir(kind), name), nil
}

// List returns the file names in the kind's directory, sorted.
func (s *share) List(ctx context.Context, kind model.Kind) ([]string, error) {
	objs, err := s.store.List(ctx, s.dir(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s files: %w", kind.Plural(), err)
	}
	names := make([]string, 0, len(objs))
	for _, o := range objs {
		names = append(names, path.Base(o.Key))
	}
	sort.Strings(names)
	return names, nil
}

// Upload stores r under fileName, replacing any existing file of that name.
func (s *share) Upload(ctx context.Context, kind model.Kind, fileName string, r io.Reader, size int64, contentType string) error {
	key, err := s.key(kind, fileName)
	if err != nil {
		return err
	}
	if size <= 0 {
		size = -1
	}
	_, err = s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        size,
		PartSize:    partSize,
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Download streams a file. The caller closes the reader.
func (s *share) Download(ctx context.Context, kind model.Kind, fileName string) (io.ReadCloser, storage.ObjectInfo, error) {
	key, err := s.key(kind, fileName)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	rc, info, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ObjectInfo{}, ErrNotFound
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("download %s: %w", key, err)
	}
	return rc, info, nil
}
