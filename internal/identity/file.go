package identity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one file per namespace under a root directory. Pointing
// several processes at the same root is how they share an identifier.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	dir := strings.TrimSpace(root)
	if dir == "" {
		return nil, fmt.Errorf("missing IDENTITY_DIR")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) path(namespace string) string {
	// Namespaces look like "group.com.example.app"; keep them flat.
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(namespace)
	return filepath.Join(s.root, name+".distinct_id")
}

func (s *FileStore) Get(_ context.Context, namespace string) (string, error) {
	b, err := os.ReadFile(s.path(namespace))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read distinct id: %w", err)
	}

	id := strings.TrimSpace(string(b))
	if id == "" {
		return "", ErrNotFound
	}
	return id, nil
}

// PutIfAbsent writes a temp file and hard-links it into place, so readers
// never observe a half-written identifier and the first writer wins.
func (s *FileStore) PutIfAbsent(ctx context.Context, namespace string, id string) (string, error) {
	tmp, err := os.CreateTemp(s.root, ".distinct_id-*")
	if err != nil {
		return "", fmt.Errorf("create temp distinct id: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(id + "\n")
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write distinct id: %w", err)
	}

	err = os.Link(tmp.Name(), s.path(namespace))
	if errors.Is(err, fs.ErrExist) {
		return s.Get(ctx, namespace)
	}
	if err != nil {
		return "", fmt.Errorf("link distinct id: %w", err)
	}
	return id, nil
}
