package storage

import (
	"context"

	"github.com/rhuss/convlog/pkg/api"
)

// EventStore persists conversations as ordered event sequences.
type EventStore interface {
	// CreateConversation registers an empty conversation owned by the
	// tenant in ctx. Reusing an id returns ErrAlreadyExists.
	CreateConversation(ctx context.Context, id string) error

	// DeleteConversation removes a conversation and all of its events.
	DeleteConversation(ctx context.Context, id string) error

	// ConversationExists reports whether the conversation is visible to ctx.
	ConversationExists(ctx context.Context, id string) (bool, error)

	// InsertEvents writes a batch atomically: either every event is stored
	// or none is. A taken order key yields ErrConflict and a reused event id
	// ErrAlreadyExists.
	InsertEvents(ctx context.Context, conversationID string, events []api.DatabaseEvent) error

	// MaxOrderKey returns the greatest order key in the conversation, or ""
	// when it has no events.
	MaxOrderKey(ctx context.Context, conversationID string) (string, error)

	// ListEvents returns the events sorted by ascending order key.
	ListEvents(ctx context.Context, conversationID string) ([]api.DatabaseEvent, error)

	// UpdateEvent replaces the stored segments and reasoning summary of an
	// existing event. Identity, role, timestamp, and order key never change.
	UpdateEvent(ctx context.Context, conversationID string, event *api.Event) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
