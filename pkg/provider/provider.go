package provider

import (
	"encoding/json"
	"log/slog"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/observability"
	"github.com/rhuss/convlog/pkg/tools"
)

// Mapper converts between the canonical event log and one provider's wire
// format. Implementations must be safe for concurrent use.
type Mapper interface {
	// Name returns the provider identifier used for registry lookup.
	Name() string

	// Capabilities returns what this provider's format can carry.
	Capabilities() Capabilities

	// Encode converts a log into the provider's message list.
	Encode(log *api.EventLog) (*Payload, error)

	// Decode converts a provider message list back into events.
	Decode(p *Payload) (*Conversion, error)

	// DecodeResponse converts a complete, non-streaming response body into
	// the assistant events it contains.
	DecodeResponse(body []byte) (*Conversion, error)

	// RequestBody builds a complete request body that replays the log.
	RequestBody(log *api.EventLog, opts RequestOptions) ([]byte, error)

	// NewStreamFolder returns state for folding one streamed response.
	NewStreamFolder() StreamFolder
}

// Payload is the provider-side form of a log. System is set only for
// providers that take the system prompt outside the message list.
type Payload struct {
	System   string          `json:"system,omitempty"`
	Messages json.RawMessage `json:"messages"`
}

// SkippedSegment describes provider content that could not be converted.
type SkippedSegment struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// Conversion is the result of decoding provider content. Skipped lists
// pieces that were dropped; the remaining events are still usable.
type Conversion struct {
	Events  []*api.Event     `json:"events"`
	Skipped []SkippedSegment `json:"skipped,omitempty"`
}

// Skip records a dropped piece of provider content, logs it, and counts it.
func (c *Conversion) Skip(provider string, s SkippedSegment) {
	slog.Warn("skipping provider segment",
		"provider", provider,
		"id", s.ID,
		"name", s.Name,
		"reason", s.Reason,
	)
	observability.ProviderSegmentsSkippedTotal.WithLabelValues(provider).Inc()
	c.Skipped = append(c.Skipped, s)
}

// Outcome summarizes the conversion: total counts converted segments plus
// skipped ones.
func (c *Conversion) Outcome() api.Outcome {
	total := len(c.Skipped)
	for _, e := range c.Events {
		total += len(e.Segments)
	}
	ids := make([]string, 0, len(c.Skipped))
	for _, s := range c.Skipped {
		ids = append(ids, s.ID)
	}
	return api.AppliedWithSkips(total, ids)
}

// EventLog validates the decoded events as a log, rejecting duplicate ids
// and results without a matching call.
func (c *Conversion) EventLog() (*api.EventLog, error) {
	return api.NewEventLog(c.Events...)
}

// RequestOptions are the request fields besides the conversation itself.
type RequestOptions struct {
	Model     string
	MaxTokens int
	Stream    bool
	Tools     []tools.Endpoint

	// ReasoningEffort and ReasoningSummary are passed through to providers
	// that accept them ("low", "medium", "high"; "auto", "detailed").
	ReasoningEffort  string
	ReasoningSummary string
}

// StreamFolder accumulates one streamed provider response. Each decoded
// SSE data value is passed to Fold in arrival order; Finish returns the
// resulting events once the stream has ended. An error from Fold is a
// provider-reported failure and ends the stream.
type StreamFolder interface {
	Fold(data json.RawMessage) error
	Finish() (*Conversion, error)
}
