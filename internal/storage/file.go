package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// File persists state as a single JSON document on disk. Every Save rewrites
// the file through a temp-file rename so a crash never leaves a torn write.
type File struct {
	mu     sync.Mutex
	path   string
	data   map[string]json.RawMessage
	logger zerolog.Logger
}

// NewFile opens (or creates) the state file at path.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("file storage requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	f := &File{
		path:   path,
		data:   make(map[string]json.RawMessage),
		logger: log.With().Str("component", "storage").Str("backend", "file").Logger(),
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		f.logger.Info().Str("path", path).Msg("state file not found, starting fresh")
	case err != nil:
		return nil, fmt.Errorf("reading state file: %w", err)
	default:
		if err := json.Unmarshal(raw, &f.data); err != nil {
			return nil, fmt.Errorf("parsing state file %s: %w", path, err)
		}
		f.logger.Info().Str("path", path).Int("keys", len(f.data)).Msg("loaded state file")
	}
	return f, nil
}

func (f *File) Load(ctx context.Context, key string, v any) error {
	f.mu.Lock()
	raw, ok := f.data[key]
	f.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (f *File) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = raw
	return f.flushLocked()
}

func (f *File) flushLocked() error {
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state file: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

func (f *File) Close() error { return nil }
