package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role identifies the author of an event.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ReasoningSummary is auxiliary reasoning metadata carried next to the segments.
type ReasoningSummary struct {
	Summary string `json:"summary"`
	Effort  string `json:"effort,omitempty"`
}

// Event is one turn of a conversation: an author and an ordered list of segments.
type Event struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Segments  Segments          `json:"segments"`
	Timestamp time.Time         `json:"-"`
	Reasoning *ReasoningSummary `json:"reasoning,omitempty"`
}

type eventWire struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Segments  Segments          `json:"segments"`
	TS        int64             `json:"ts"`
	Reasoning *ReasoningSummary `json:"reasoning,omitempty"`
}

// NewEvent builds an event with a fresh ID and the current time.
func NewEvent(role Role, segments ...Segment) *Event {
	return &Event{
		ID:        NewEventID(),
		Role:      role,
		Segments:  segments,
		Timestamp: time.Now().UTC(),
	}
}

// MarshalJSON encodes the event with ts as Unix milliseconds.
func (e Event) MarshalJSON() ([]byte, error) {
	segs := e.Segments
	if segs == nil {
		segs = Segments{}
	}
	return json.Marshal(eventWire{
		ID:        e.ID,
		Role:      e.Role,
		Segments:  segs,
		TS:        e.Timestamp.UnixMilli(),
		Reasoning: e.Reasoning,
	})
}

// UnmarshalJSON decodes an event; ts is read as Unix milliseconds.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		ID:        w.ID,
		Role:      w.Role,
		Segments:  w.Segments,
		Timestamp: time.UnixMilli(w.TS).UTC(),
		Reasoning: w.Reasoning,
	}
	return nil
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	c := *e
	c.Segments = make(Segments, len(e.Segments))
	for i, s := range e.Segments {
		c.Segments[i] = CloneSegment(s)
	}
	if e.Reasoning != nil {
		r := *e.Reasoning
		c.Reasoning = &r
	}
	return &c
}

// Text returns the concatenated text segments of the event.
func (e *Event) Text() string {
	var b strings.Builder
	for _, s := range e.Segments {
		if t, ok := s.(*Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ReplaceSegments swaps the event content wholesale, as done when a user
// edits a message. The replacement must be non-empty and every segment valid.
func (e *Event) ReplaceSegments(segments []Segment) error {
	if len(segments) == 0 {
		return NewValidationError("segments", "replacement segments must not be empty")
	}
	for i, s := range segments {
		if errs := validateSegment(fmt.Sprintf("segments[%d]", i), s); len(errs) > 0 {
			return NewValidationError(errs[0].Field, errs[0].Message)
		}
	}
	e.Segments = append(Segments(nil), segments...)
	return nil
}

// AnnotateTiming sets the timing of the tool call or reasoning segment with
// the given id. Nil times leave the existing value untouched. It reports
// whether a matching segment was found; a miss changes nothing.
func (e *Event) AnnotateTiming(segmentID string, startedAt, completedAt *time.Time) bool {
	for _, s := range e.Segments {
		var t *Timing
		switch v := s.(type) {
		case *ToolCall:
			if v.ID == segmentID {
				t = &v.Timing
			}
		case *Reasoning:
			if v.ID == segmentID {
				t = &v.Timing
			}
		}
		if t == nil {
			continue
		}
		if startedAt != nil {
			ts := *startedAt
			t.StartedAt = &ts
		}
		if completedAt != nil {
			ts := *completedAt
			t.CompletedAt = &ts
		}
		return true
	}
	return false
}

// MergeText coalesces adjacent text segments into one. It is meant for
// display and export; stored events keep their original segmentation.
func MergeText(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		t, ok := s.(*Text)
		if !ok {
			out = append(out, s)
			continue
		}
		if n := len(out); n > 0 {
			if prev, ok := out[n-1].(*Text); ok {
				out[n-1] = &Text{Text: prev.Text + t.Text}
				continue
			}
		}
		out = append(out, &Text{Text: t.Text})
	}
	return out
}

// JoinReasoningParts concatenates part texts ordered by summary index.
func JoinReasoningParts(parts []ReasoningPart) string {
	sorted := append([]ReasoningPart(nil), parts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SummaryIndex < sorted[j].SummaryIndex
	})
	var b strings.Builder
	for i, p := range sorted {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// DatabaseEvent is an event as persisted within a conversation.
type DatabaseEvent struct {
	Event
	ConversationID string `json:"conversation_id"`
	OrderKey       string `json:"order_key"`
}

// MarshalJSON keeps the flattened event fields next to the storage fields.
func (d DatabaseEvent) MarshalJSON() ([]byte, error) {
	ev, err := d.Event.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(ev, &m); err != nil {
		return nil, err
	}
	m["conversation_id"], _ = json.Marshal(d.ConversationID)
	m["order_key"], _ = json.Marshal(d.OrderKey)
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DatabaseEvent) UnmarshalJSON(data []byte) error {
	if err := d.Event.UnmarshalJSON(data); err != nil {
		return err
	}
	var keys struct {
		ConversationID string `json:"conversation_id"`
		OrderKey       string `json:"order_key"`
	}
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	d.ConversationID = keys.ConversationID
	d.OrderKey = keys.OrderKey
	return nil
}
