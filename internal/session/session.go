// Package session persists the progress of an activity so it can be resumed.
package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Session is the persisted form of one walk through an activity.
type Session struct {
	ID          string         `json:"id" yaml:"id"`
	ActivityRef string         `json:"activity_ref" yaml:"activity_ref"`
	Digest      string         `json:"digest,omitempty" yaml:"digest,omitempty"`
	Index       int            `json:"index" yaml:"index"`
	Responses   map[string]any `json:"responses" yaml:"responses"`
	Status      Status         `json:"status" yaml:"status"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// New starts an in-progress session for activityRef.
func New(activityRef string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          uuid.NewString(),
		ActivityRef: activityRef,
		Responses:   make(map[string]any),
		Status:      StatusInProgress,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// Answered returns the number of saved responses.
func (s *Session) Answered() int {
	return len(s.Responses)
}

// Complete marks the session completed.
func (s *Session) Complete() {
	s.Status = StatusCompleted
}

// ValidateID rejects identifiers that are not UUIDs.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return aferrors.NewSessionNotFoundError(id)
	}
	return nil
}

// Store persists sessions.
type Store interface {
	// Save creates or replaces s and stamps UpdatedAt.
	Save(ctx context.Context, s *Session) error
	// Load returns SESSION-001 when no session has the id.
	Load(ctx context.Context, id string) (*Session, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error
	// List returns all sessions, most recently updated first.
	List(ctx context.Context) ([]*Session, error)
	// Ping checks that the backend is usable.
	Ping(ctx context.Context) error
	Close() error
}

// Backend names a store implementation.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite3"
	BackendPostgres Backend = "postgres"
)

// DetectDSNType picks the backend for dsn. Postgres URLs and key=value
// connection strings select postgres; sqlite: prefixes and .db/.sqlite
// files select sqlite; anything else is a directory for the file store.
func DetectDSNType(dsn string) Backend {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return BackendPostgres
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return BackendPostgres
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "sqlite3://"), strings.HasPrefix(lower, "file:") && strings.Contains(lower, ".db"):
		return BackendSQLite
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return BackendSQLite
	default:
		return BackendFile
	}
}

// Open returns the store described by dsn.
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return nil, aferrors.New(aferrors.ErrCodeConfigInvalid, "session store DSN is empty").
			WithSuggestion("Set store.dsn in the configuration or ACTIVITYFLOW_STORE_DSN")
	}

	switch DetectDSNType(dsn) {
	case BackendPostgres:
		return OpenSQL(ctx, BackendPostgres, dsn)
	case BackendSQLite:
		return OpenSQL(ctx, BackendSQLite, sqlitePath(dsn))
	default:
		return NewFileStore(fileDir(dsn)), nil
	}
}

func sqlitePath(dsn string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if rest, ok := strings.CutPrefix(dsn, prefix); ok {
			return rest
		}
	}
	return dsn
}

func fileDir(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return dsn
}

func storeError(op string, err error) error {
	return aferrors.Wrap(aferrors.ErrCodeSessionStore, fmt.Sprintf("session store %s failed", op), err).
		WithSuggestion("Check store.dsn and that the store is reachable")
}
