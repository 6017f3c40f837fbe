package api

import (
	"strings"

	"github.com/google/uuid"
)

const (
	eventIDPrefix        = "evt_"
	conversationIDPrefix = "conv_"
)

// NewEventID generates a new event ID: "evt_" followed by a time-ordered
// UUIDv7 without dashes.
func NewEventID() string {
	return eventIDPrefix + newUUID()
}

// NewConversationID generates a new conversation ID with the "conv_" prefix.
func NewConversationID() string {
	return conversationIDPrefix + newUUID()
}

// ValidateEventID reports whether id has the shape produced by NewEventID.
func ValidateEventID(id string) bool {
	return hasUUIDSuffix(id, eventIDPrefix)
}

// ValidateConversationID reports whether id has the shape produced by NewConversationID.
func ValidateConversationID(id string) bool {
	return hasUUIDSuffix(id, conversationIDPrefix)
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

func hasUUIDSuffix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
