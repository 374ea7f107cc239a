package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/models"
)

const (
	docExt    = ".json"
	tmpPrefix = ".dagaz-tmp-"
)

// FS implements Provider with one JSON document per user under a directory.
type FS struct {
	root string // absolute path to the documents directory

	mu      sync.Mutex
	written map[string]string // user -> checksum of the last document we wrote
}

// NewFS creates a new FS provider rooted at the given directory, creating it
// if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, written: make(map[string]string)}, nil
}

// Root returns the absolute documents directory.
func (f *FS) Root() string { return f.root }

func (f *FS) docPath(user string) (string, error) {
	if err := ValidUser(user); err != nil {
		return "", err
	}
	return filepath.Join(f.root, user+docExt), nil
}

// userFromPath maps a document path back to its user, or "" for files that
// are not documents.
func (f *FS) userFromPath(path string) string {
	name := filepath.Base(path)
	if filepath.Dir(path) != f.root || strings.HasPrefix(name, tmpPrefix) || !strings.HasSuffix(name, docExt) {
		return ""
	}
	user := strings.TrimSuffix(name, docExt)
	if ValidUser(user) != nil {
		return ""
	}
	return user
}

// Load reads the user's document.
func (f *FS) Load(_ context.Context, user string) ([]models.Entity, error) {
	path, err := f.docPath(user)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Entity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", user, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", user, err)
	}
	if doc.Events == nil {
		doc.Events = []models.Entity{}
	}
	return doc.Events, nil
}

// Save atomically writes the user's document: tmp file → fsync → rename.
func (f *FS) Save(_ context.Context, user string, entities []models.Entity) error {
	path, err := f.docPath(user)
	if err != nil {
		return err
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	content, err := json.MarshalIndent(document{Events: entities}, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", user, err)
	}

	tmp, err := os.CreateTemp(f.root, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	f.written[user] = checksum.Sum(content)
	success = true
	return nil
}

// writtenByUs reports whether data is exactly the last document this
// provider wrote for user.
func (f *FS) writtenByUs(user string, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written[user] == checksum.Sum(data)
}

// Close is a no-op for FS.
func (f *FS) Close() error { return nil }
