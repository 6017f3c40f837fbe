// Package postgres provides a PostgreSQL implementation of storage.EventStore.
// It uses pgx/v5 for connection pooling and JSONB for segment storage. The
// (conversation_id, order_key) unique constraint is the only coordination
// between concurrent writers.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/storage"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	orderKeyConstraint = "events_conversation_order_key"
)

// visibleConversation restricts a conversation id ($1) to the tenant ($2).
const visibleConversation = `id = $1 AND ($2::text = '' OR tenant_id = $2)`

// Store is a PostgreSQL-backed EventStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.EventStore at compile time.
var _ storage.EventStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Name identifies the backend in metrics.
func (s *Store) Name() string { return "postgres" }

// CreateConversation inserts an empty conversation owned by the tenant in ctx.
func (s *Store) CreateConversation(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, tenant_id) VALUES ($1, $2)`,
		id, storage.GetTenant(ctx),
	)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation; its events go with it via ON DELETE CASCADE.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE `+visibleConversation,
		id, storage.GetTenant(ctx),
	)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ConversationExists reports whether the conversation is visible to ctx.
func (s *Store) ConversationExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE `+visibleConversation+`)`,
		id, storage.GetTenant(ctx),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking conversation: %w", err)
	}
	return exists, nil
}

// InsertEvents writes the batch in one transaction.
func (s *Store) InsertEvents(ctx context.Context, conversationID string, events []api.DatabaseEvent) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx,
			`SELECT tenant_id FROM conversations WHERE `+visibleConversation+` FOR SHARE`,
			conversationID, storage.GetTenant(ctx),
		).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, e := range events {
			segments, reasoning, err := storage.EncodeContent(&e.Event)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO events (id, conversation_id, order_key, role, segments, reasoning, ts)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, e.ID, conversationID, e.OrderKey, string(e.Role), segments, reasoning, e.Timestamp)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return mapInsertError(err)
	}

	debug.Log(debug.Storage, "postgres insert", "conversation_id", conversationID, "count", len(events))
	return nil
}

// MaxOrderKey returns the greatest order key in byte order, or "" for an
// empty conversation.
func (s *Store) MaxOrderKey(ctx context.Context, conversationID string) (string, error) {
	var key *string
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT max(e.order_key) FROM events e WHERE e.conversation_id = c.id)
		FROM conversations c
		WHERE c.`+visibleConversation,
		conversationID, storage.GetTenant(ctx),
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading max order key: %w", err)
	}
	if key == nil {
		return "", nil
	}
	return *key, nil
}

// ListEvents returns the events of a conversation in order-key order.
func (s *Store) ListEvents(ctx context.Context, conversationID string) ([]api.DatabaseEvent, error) {
	ok, err := s.ConversationExists(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_key, role, segments, reasoning, ts
		FROM events
		WHERE conversation_id = $1
		ORDER BY order_key
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var out []api.DatabaseEvent
	for rows.Next() {
		var (
			e                   api.DatabaseEvent
			role                string
			segments, reasoning []byte
			ts                  time.Time
		)
		if err := rows.Scan(&e.ID, &e.OrderKey, &role, &segments, &reasoning, &ts); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.ConversationID = conversationID
		e.Role = api.Role(role)
		e.Timestamp = ts.UTC()
		if err := storage.DecodeContent(&e.Event, segments, reasoning); err != nil {
			return nil, fmt.Errorf("decoding event %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return out, nil
}

// UpdateEvent replaces the segments and reasoning summary of a stored event.
func (s *Store) UpdateEvent(ctx context.Context, conversationID string, event *api.Event) error {
	segments, reasoning, err := storage.EncodeContent(event)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE events SET segments = $3, reasoning = $4
		WHERE id = $5 AND conversation_id IN (SELECT id FROM conversations WHERE `+visibleConversation+`)
	`, conversationID, storage.GetTenant(ctx), segments, reasoning, event.ID)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// mapInsertError turns constraint violations into storage sentinels.
func mapInsertError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation && pgErr.ConstraintName == orderKeyConstraint:
			return storage.ErrConflict
		case pgErr.Code == uniqueViolation:
			return storage.ErrAlreadyExists
		case pgErr.Code == foreignKeyViolation:
			return storage.ErrNotFound
		}
	}
	return fmt.Errorf("inserting events: %w", err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
