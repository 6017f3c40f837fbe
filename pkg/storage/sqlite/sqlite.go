// Package sqlite provides an embedded SQLite implementation of
// storage.EventStore for single-node deployments and the CLI. It uses the
// pure-Go modernc.org/sqlite driver through database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	order_key       TEXT NOT NULL COLLATE BINARY,
	role            TEXT NOT NULL,
	segments        TEXT NOT NULL,
	reasoning       TEXT,
	ts              INTEGER NOT NULL,
	UNIQUE (conversation_id, order_key)
);
`

// visibleConversation restricts a conversation id (first arg) to the tenant (second and third args).
const visibleConversation = `id = ? AND (? = '' OR tenant_id = ?)`

// Store is a SQLite-backed EventStore.
type Store struct {
	db *sql.DB
}

// Ensure Store implements storage.EventStore at compile time.
var _ storage.EventStore = (*Store)(nil)

// New opens (creating if needed) the database file at path and applies the schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection serializes access
	// inside the process instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Name identifies the backend in metrics.
func (s *Store) Name() string { return "sqlite" }

// CreateConversation inserts an empty conversation owned by the tenant in ctx.
func (s *Store) CreateConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, tenant_id, created_at) VALUES (?, ?, ?)",
		id, storage.GetTenant(ctx), time.Now().UnixMilli(),
	)
	if err != nil {
		if constraintCode(err) != 0 {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and, by cascade, its events.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tenant := storage.GetTenant(ctx)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE "+visibleConversation,
		id, tenant, tenant,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ConversationExists reports whether the conversation is visible to ctx.
func (s *Store) ConversationExists(ctx context.Context, id string) (bool, error) {
	return exists(ctx, s.db, id)
}

// InsertEvents writes the batch in one transaction.
func (s *Store) InsertEvents(ctx context.Context, conversationID string, events []api.DatabaseEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ok, err := exists(ctx, tx, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, conversation_id, order_key, role, segments, reasoning, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		segments, reasoning, err := storage.EncodeContent(&e.Event)
		if err != nil {
			return err
		}
		var reasoningCol any
		if reasoning != nil {
			reasoningCol = string(reasoning)
		}
		_, err = stmt.ExecContext(ctx,
			e.ID, conversationID, e.OrderKey, string(e.Role),
			string(segments), reasoningCol, e.Timestamp.UnixMilli(),
		)
		if err != nil {
			return mapInsertError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	debug.Log(debug.Storage, "sqlite insert", "conversation_id", conversationID, "count", len(events))
	return nil
}

// MaxOrderKey returns the greatest order key, or "" for an empty conversation.
func (s *Store) MaxOrderKey(ctx context.Context, conversationID string) (string, error) {
	tenant := storage.GetTenant(ctx)
	var key sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT max(order_key) FROM events WHERE conversation_id = c.id)
		FROM conversations c
		WHERE c.`+visibleConversation,
		conversationID, tenant, tenant,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("max order key: %w", err)
	}
	return key.String, nil
}

// ListEvents returns the events of a conversation in order-key order.
func (s *Store) ListEvents(ctx context.Context, conversationID string) ([]api.DatabaseEvent, error) {
	ok, err := exists(ctx, s.db, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_key, role, segments, reasoning, ts
		FROM events
		WHERE conversation_id = ?
		ORDER BY order_key`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []api.DatabaseEvent
	for rows.Next() {
		var (
			e         api.DatabaseEvent
			role      string
			segments  string
			reasoning sql.NullString
			ts        int64
		)
		if err := rows.Scan(&e.ID, &e.OrderKey, &role, &segments, &reasoning, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.ConversationID = conversationID
		e.Role = api.Role(role)
		e.Timestamp = time.UnixMilli(ts).UTC()
		var reasoningJSON []byte
		if reasoning.Valid {
			reasoningJSON = []byte(reasoning.String)
		}
		if err := storage.DecodeContent(&e.Event, []byte(segments), reasoningJSON); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEvent replaces the segments and reasoning summary of a stored event.
func (s *Store) UpdateEvent(ctx context.Context, conversationID string, event *api.Event) error {
	segments, reasoning, err := storage.EncodeContent(event)
	if err != nil {
		return err
	}
	var reasoningCol any
	if reasoning != nil {
		reasoningCol = string(reasoning)
	}
	tenant := storage.GetTenant(ctx)
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET segments = ?, reasoning = ?
		WHERE id = ? AND conversation_id IN (SELECT id FROM conversations WHERE `+visibleConversation+`)`,
		string(segments), reasoningCol, event.ID, conversationID, tenant, tenant,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exists(ctx context.Context, q querier, id string) (bool, error) {
	tenant := storage.GetTenant(ctx)
	var found bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM conversations WHERE "+visibleConversation+")",
		id, tenant, tenant,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check conversation: %w", err)
	}
	return found, nil
}

// constraintCode returns the extended SQLite result code of a constraint
// violation, or 0 for any other error.
func constraintCode(err error) int {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return 0
	}
	return se.Code()
}

func mapInsertError(err error) error {
	code := constraintCode(err)
	if code == 0 {
		return fmt.Errorf("insert event: %w", err)
	}
	msg := err.Error()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY || strings.Contains(msg, "FOREIGN KEY"):
		return storage.ErrNotFound
	case strings.Contains(msg, "events.order_key"):
		return storage.ErrConflict
	default:
		return storage.ErrAlreadyExists
	}
}
