// Package ordering assigns order keys to new events and appends them to a
// conversation without a lock. Writers read the current maximum key, derive
// fresh keys after it, and let the store's uniqueness constraint decide
// races; the loser re-reads and tries again.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/observability"
	"github.com/rhuss/convlog/pkg/orderkey"
	"github.com/rhuss/convlog/pkg/storage"
)

// DefaultMaxAttempts is used when Config.MaxAttempts is not positive.
const DefaultMaxAttempts = 5

// Config holds configuration for the Manager.
type Config struct {
	// MaxAttempts bounds how many times an append is tried after losing an
	// order-key race. Zero or negative means DefaultMaxAttempts.
	MaxAttempts int
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// Manager appends events to conversations in a store.
type Manager struct {
	store storage.EventStore
	cfg   Config
	label string
}

// AppendResult reports the stored events with their keys and the number of
// attempts the append took.
type AppendResult struct {
	Events   []api.DatabaseEvent
	Attempts int
}

// New creates a Manager. The store must not be nil.
func New(store storage.EventStore, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("ordering: store must not be nil")
	}
	return &Manager{store: store, cfg: cfg, label: storeName(store)}, nil
}

// Append validates events and stores them, in the given order, after the
// current last event of the conversation. The whole batch lands or none of
// it does. Events keep their ids; missing ids and timestamps are filled in.
func (m *Manager) Append(ctx context.Context, conversationID string, events ...*api.Event) (*AppendResult, error) {
	if len(events) == 0 {
		return &AppendResult{}, nil
	}
	for i, e := range events {
		if err := validate(i, e); err != nil {
			return nil, err
		}
	}

	max := m.cfg.maxAttempts()
	for attempt := 1; attempt <= max; attempt++ {
		last, err := m.store.MaxOrderKey(ctx, conversationID)
		if err != nil {
			return nil, mapStoreError(err, conversationID)
		}

		keys, err := orderkey.NKeysAfter(last, len(events))
		if err != nil {
			return nil, api.NewServerError(fmt.Sprintf("deriving order keys after %q: %v", last, err))
		}

		batch := make([]api.DatabaseEvent, len(events))
		for i, e := range events {
			batch[i] = api.DatabaseEvent{
				Event:          *e,
				ConversationID: conversationID,
				OrderKey:       keys[i],
			}
		}

		err = m.store.InsertEvents(ctx, conversationID, batch)
		if err == nil {
			observability.AppendAttempts.WithLabelValues("ok").Observe(float64(attempt))
			debug.Log(debug.Ordering, "appended events",
				"conversation_id", conversationID,
				"count", len(batch),
				"first_key", keys[0],
				"attempt", attempt,
			)
			return &AppendResult{Events: batch, Attempts: attempt}, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			observability.AppendAttempts.WithLabelValues("error").Observe(float64(attempt))
			return nil, mapStoreError(err, conversationID)
		}

		observability.OrderKeyConflictsTotal.WithLabelValues(m.label).Inc()
		debug.Log(debug.Ordering, "order key conflict",
			"conversation_id", conversationID,
			"after", last,
			"attempt", attempt,
		)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	observability.AppendAttempts.WithLabelValues("exhausted").Observe(float64(max))
	return nil, api.NewConflictError(fmt.Sprintf(
		"conversation %s: order key still contended after %d attempts", conversationID, max))
}

func validate(i int, e *api.Event) error {
	param := "events[" + strconv.Itoa(i) + "]"
	if e == nil {
		return api.NewValidationError(param, "event is nil")
	}
	if e.ID == "" {
		e.ID = api.NewEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if len(e.Segments) == 0 {
		return api.NewValidationError(param+".segments", "event must have at least one segment")
	}
	if err := api.ValidateEvent(e).Err(); err != nil {
		return err
	}
	return nil
}

func mapStoreError(err error, conversationID string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return api.NewNotFoundError(fmt.Sprintf("conversation %s not found", conversationID))
	case errors.Is(err, storage.ErrAlreadyExists):
		return api.NewConflictError(fmt.Sprintf("conversation %s: event id already stored", conversationID))
	}
	return err
}

// storeName returns the metrics label for a store.
func storeName(s storage.EventStore) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
