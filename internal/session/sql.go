package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLStore keeps sessions in a sqlite or postgres table.
type SQLStore struct {
	db      *sql.DB
	backend Backend
}

// OpenSQL connects to the database, creating the sqlite directory when
// needed, and applies the schema.
func OpenSQL(ctx context.Context, backend Backend, dsn string) (*SQLStore, error) {
	var schemaFile string
	switch backend {
	case BackendSQLite:
		schemaFile = "migrations/sqlite.sql"
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, storeError("open", fmt.Errorf("failed to create database directory: %w", err))
			}
		}
	case BackendPostgres:
		schemaFile = "migrations/postgres.sql"
	default:
		return nil, fmt.Errorf("unsupported SQL backend: %s", backend)
	}

	db, err := sql.Open(string(backend), dsn)
	if err != nil {
		return nil, storeError("open", err)
	}
	if backend == BackendSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storeError("open", err)
	}

	schema, err := migrations.ReadFile(schemaFile)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		_ = db.Close()
		return nil, storeError("migrate", err)
	}

	return &SQLStore{db: db, backend: backend}, nil
}

// Backend reports which database the store talks to.
func (s *SQLStore) Backend() Backend {
	return s.backend
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.backend != BackendPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save upserts sess.
func (s *SQLStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session is nil")
	}
	if err := ValidateID(sess.ID); err != nil {
		return err
	}

	sess.UpdatedAt = time.Now().UTC()

	responses, err := json.Marshal(sess.Responses)
	if err != nil {
		return storeError("save", fmt.Errorf("failed to marshal responses: %w", err))
	}

	query := s.rebind(`
		INSERT INTO sessions (id, activity_ref, digest, screen_index, responses, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			activity_ref = EXCLUDED.activity_ref,
			digest = EXCLUDED.digest,
			screen_index = EXCLUDED.screen_index,
			responses = EXCLUDED.responses,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`)

	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.ActivityRef, sess.Digest, sess.Index, string(responses),
		string(sess.Status), sess.StartedAt.UTC(), sess.UpdatedAt)
	if err != nil {
		return storeError("save", err)
	}
	return nil
}

const selectColumns = `SELECT id, activity_ref, digest, screen_index, responses, status, started_at, updated_at FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess      Session
		responses []byte
		status    string
	)
	if err := row.Scan(&sess.ID, &sess.ActivityRef, &sess.Digest, &sess.Index,
		&responses, &status, &sess.StartedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.Status = Status(status)
	sess.Responses = make(map[string]any)
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &sess.Responses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal responses for %s: %w", sess.ID, err)
		}
	}
	return &sess, nil
}

// Load returns the session with id.
func (s *SQLStore) Load(ctx context.Context, id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE id = ?`), id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, aferrors.NewSessionNotFoundError(id)
	}
	if err != nil {
		return nil, storeError("load", err)
	}
	return sess, nil
}

// Delete removes the session with id.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return storeError("delete", err)
	}
	return nil
}

// List returns every session, most recently updated first.
func (s *SQLStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY updated_at DESC`)
	if err != nil {
		return nil, storeError("list", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []*Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, storeError("list", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list", err)
	}
	return sessions, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
