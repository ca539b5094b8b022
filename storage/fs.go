package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FSStorage stores objects on an afero filesystem rooted at base. An
// O_EXCL create supplies the atomic write-if-absent the committer needs;
// local filesystems and the in-memory backend both honor it.
type FSStorage struct {
	fs   afero.Fs
	base string

	// Guards the create in PutIfAbsent on filesystems whose O_EXCL
	// handling is not atomic with respect to concurrent opens.
	mu sync.Mutex
}

func NewFSStorage(fs afero.Fs, base string) *FSStorage {
	return &FSStorage{fs: fs, base: base}
}

// NewMemStorage returns storage backed by an in-memory filesystem.
func NewMemStorage() *FSStorage {
	return &FSStorage{fs: afero.NewMemMapFs()}
}

func (s *FSStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (s *FSStorage) Put(ctx context.Context, key string, data []byte) error {
	full := s.fullPath(key)
	if err := s.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("creating directories for %s: %w", key, err)
	}
	if err := afero.WriteFile(s.fs, full, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *FSStorage) PutIfAbsent(ctx context.Context, key string, data []byte) error {
	full := s.fullPath(key)
	if err := s.fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("creating directories for %s: %w", key, err)
	}

	s.mu.Lock()
	f, err := s.fs.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	s.mu.Unlock()
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}
		return fmt.Errorf("creating %s: %w", key, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	return nil
}

func (s *FSStorage) Delete(ctx context.Context, key string) error {
	if err := s.fs.Remove(s.fullPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *FSStorage) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.base
	if root == "" {
		root = "/"
	}

	var keys []string
	err := afero.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		key := s.trimBase(p)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing under %s: %w", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *FSStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := afero.Exists(s.fs, s.fullPath(key))
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return ok, nil
}

func (s *FSStorage) fullPath(key string) string {
	if s.base == "" {
		return "/" + key
	}
	return path.Join(s.base, key)
}

func (s *FSStorage) trimBase(p string) string {
	base := s.base
	if base == "" {
		base = "/"
	}
	return strings.TrimPrefix(strings.TrimPrefix(p, base), "/")
}
