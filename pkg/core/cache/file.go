package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultDir is used when NewFileStore gets an empty directory.
var DefaultDir = filepath.Join(".cache", "pipeline")

// FileStore keeps one JSON file per entry in a directory.
type FileStore struct {
	dir string
}

type fileEntry struct {
	Key       string          `json:"key"`
	WrittenAt time.Time       `json:"written_at"`
	Value     json.RawMessage `json:"value"`
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Get(_ context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var fe fileEntry
	if err := json.Unmarshal(data, &fe); err != nil {
		// A torn or foreign file is a miss; the next Put replaces it.
		return nil, nil
	}
	return &Entry{Key: fe.Key, Value: fe.Value, WrittenAt: fe.WrittenAt}, nil
}

// Put writes a temp file in the same directory and renames it into place.
func (s *FileStore) Put(_ context.Context, e Entry) error {
	data, err := json.MarshalIndent(fileEntry{Key: e.Key, WrittenAt: e.WrittenAt, Value: e.Value}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(e.Key)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Clear removes entry files and leftover temp files.
func (s *FileStore) Clear(context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !(strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".tmp-")) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
