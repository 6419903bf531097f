package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deusflow/newsdesk/internal/news"
)

// FileStore keeps one JSON file per mode in a directory.
type FileStore struct {
	dir    string
	maxAge time.Duration
	mu     sync.Mutex
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed. Articles older than maxAge are dropped
// on load; zero keeps everything.
func NewFileStore(dir string, maxAge time.Duration, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir, maxAge: maxAge, logger: logger}, nil
}

func (fs *FileStore) path(mode news.Kind) string {
	return filepath.Join(fs.dir, modeKey(mode)+".json")
}

// Load reads the snapshot saved for mode.
func (fs *FileStore) Load(ctx context.Context, mode news.Kind) (Snapshot, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path(mode))
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{Mode: mode}, ErrNotFound
	}
	if err != nil {
		return Snapshot{Mode: mode}, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return Snapshot{Mode: mode}, ErrNotFound
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{Mode: mode}, fmt.Errorf("decode snapshot: %w", err)
	}
	before := len(snap.Articles)
	snap.Articles = dropExpired(snap.Articles, fs.maxAge, time.Now())
	snap.Mode = mode

	fs.logger.Debug("snapshot loaded", "mode", mode, "articles", len(snap.Articles), "expired", before-len(snap.Articles), "read", len(snap.Read))
	return snap, nil
}

// Save writes the snapshot through a temp file and rename.
func (fs *FileStore) Save(ctx context.Context, snap Snapshot) error {
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	tmp, err := os.CreateTemp(fs.dir, modeKey(snap.Mode)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path(snap.Mode)); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (fs *FileStore) Close() error { return nil }
