package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
)

// FileStore keeps one JSON file per session in a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the store directory.
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

// Save writes s atomically.
func (f *FileStore) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	if err := ValidateID(s.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return storeError("save", fmt.Errorf("failed to create session directory: %w", err))
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return storeError("save", fmt.Errorf("failed to marshal session: %w", err))
	}

	tmp, err := os.CreateTemp(f.dir, s.ID+".*.tmp")
	if err != nil {
		return storeError("save", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return storeError("save", err)
	}
	if err := tmp.Close(); err != nil {
		return storeError("save", err)
	}
	if err := os.Rename(tmp.Name(), f.path(s.ID)); err != nil {
		return aferrors.Wrap(aferrors.ErrCodeFileWriteFailed, "failed to write session file", err)
	}
	return nil
}

// Load reads the session with id.
func (f *FileStore) Load(ctx context.Context, id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, aferrors.NewSessionNotFoundError(id)
		}
		return nil, aferrors.Wrap(aferrors.ErrCodeFileReadFailed, "failed to read session file", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, aferrors.NewFileUnmarshalError(f.path(id), "JSON", err)
	}
	if s.Responses == nil {
		s.Responses = make(map[string]any)
	}
	return &s, nil
}

// Delete removes the session file.
func (f *FileStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return storeError("delete", err)
	}
	return nil
}

// List loads every session in the directory. Unreadable files are skipped.
func (f *FileStore) List(ctx context.Context) ([]*Session, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*Session{}, nil
		}
		return nil, storeError("list", err)
	}

	sessions := make([]*Session, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		s, err := f.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		sessions = append(sessions, s)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Ping checks that the directory is usable.
func (f *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return storeError("ping", err)
	}
	if !info.IsDir() {
		return storeError("ping", fmt.Errorf("%s is not a directory", f.dir))
	}
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error { return nil }
