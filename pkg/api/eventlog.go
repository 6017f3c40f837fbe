package api

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// EventLog is an ordered sequence of events with an index of tool calls and
// the set of call ids that already have a result.
type EventLog struct {
	events    []*Event
	ids       map[string]struct{}
	calls     map[string]*ToolCall
	callOrder []string
	resolved  map[string]struct{}
}

// NewEventLog builds a log from events in order. It stops at the first
// event that Append rejects.
func NewEventLog(events ...*Event) (*EventLog, error) {
	l := &EventLog{
		ids:      make(map[string]struct{}),
		calls:    make(map[string]*ToolCall),
		resolved: make(map[string]struct{}),
	}
	for _, e := range events {
		if err := l.Append(e); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append adds an event to the end of the log. An event whose id is already
// present is rejected and logged, as is a tool result that answers no
// earlier tool call. A rejected event leaves the log unchanged.
func (l *EventLog) Append(e *Event) error {
	if e == nil {
		return NewValidationError("event", "event is nil")
	}
	if _, dup := l.ids[e.ID]; dup {
		slog.Warn("rejecting duplicate event", "event_id", e.ID)
		return NewValidationError("id", fmt.Sprintf("duplicate event id %q", e.ID))
	}

	pending := make(map[string]struct{})
	for i, s := range e.Segments {
		switch v := s.(type) {
		case *ToolCall:
			pending[v.ID] = struct{}{}
		case *ToolResult:
			_, known := l.calls[v.ID]
			_, sameEvent := pending[v.ID]
			if !known && !sameEvent {
				slog.Warn("rejecting orphan tool result", "event_id", e.ID, "call_id", v.ID)
				return NewValidationError(fmt.Sprintf("segments[%d].id", i),
					fmt.Sprintf("tool result %q has no matching tool call", v.ID))
			}
		}
	}

	l.ids[e.ID] = struct{}{}
	l.events = append(l.events, e)
	for _, s := range e.Segments {
		switch v := s.(type) {
		case *ToolCall:
			if _, seen := l.calls[v.ID]; !seen {
				l.callOrder = append(l.callOrder, v.ID)
			}
			l.calls[v.ID] = v
		case *ToolResult:
			l.resolved[v.ID] = struct{}{}
		}
	}
	return nil
}

// Events returns the events in log order. The slice is shared.
func (l *EventLog) Events() []*Event {
	return l.events
}

// Len returns the number of events.
func (l *EventLog) Len() int {
	return len(l.events)
}

// ToolCall returns the indexed tool call with the given id.
func (l *EventLog) ToolCall(id string) (*ToolCall, bool) {
	c, ok := l.calls[id]
	return c, ok
}

// UnresolvedToolCalls returns tool calls without a result, in the order
// they were first seen.
func (l *EventLog) UnresolvedToolCalls() []*ToolCall {
	var out []*ToolCall
	for _, id := range l.callOrder {
		if _, ok := l.resolved[id]; ok {
			continue
		}
		out = append(out, l.calls[id])
	}
	return out
}

// SystemParameter returns the text of the leading system event, or "" when
// the log does not start with one. Providers that take the system prompt as
// a separate request field use this.
func (l *EventLog) SystemParameter() string {
	if len(l.events) == 0 || l.events[0].Role != RoleSystem {
		return ""
	}
	var parts []string
	for _, s := range l.events[0].Segments {
		if t, ok := s.(*Text); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// AnnotateTiming applies Event.AnnotateTiming to the first event holding a
// segment with that id. It reports whether one was found.
func (l *EventLog) AnnotateTiming(segmentID string, startedAt, completedAt *time.Time) bool {
	for _, e := range l.events {
		if e.AnnotateTiming(segmentID, startedAt, completedAt) {
			return true
		}
	}
	return false
}
