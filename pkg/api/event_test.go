package api

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestEventJSONUsesMillisecondTimestamp(t *testing.T) {
	e := &Event{
		ID:        "evt_1",
		Role:      RoleUser,
		Segments:  Segments{&Text{Text: "hello"}},
		Timestamp: time.UnixMilli(1700000000123).UTC(),
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["ts"] != float64(1700000000123) {
		t.Errorf("ts = %v, want 1700000000123", raw["ts"])
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Timestamp.Equal(e.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, e.Timestamp)
	}
	if !reflect.DeepEqual(got.Segments, e.Segments) {
		t.Errorf("Segments = %#v, want %#v", got.Segments, e.Segments)
	}
}

func TestEventJSONEmptySegmentsIsArray(t *testing.T) {
	data, err := json.Marshal(Event{ID: "e", Role: RoleUser})
	if err != nil {
		t.Fatal(err)
	}
	if res := ValidateEventJSON(data); !res.Valid {
		t.Errorf("encoded event should validate, got %v", res.Errors)
	}
}

func TestDatabaseEventJSON(t *testing.T) {
	d := DatabaseEvent{
		Event:          Event{ID: "e1", Role: RoleAssistant, Segments: Segments{&Text{Text: "x"}}, Timestamp: time.UnixMilli(5)},
		ConversationID: "conv_1",
		OrderKey:       "a0",
	}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var got DatabaseEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ConversationID != "conv_1" || got.OrderKey != "a0" || got.ID != "e1" {
		t.Errorf("got %+v", got)
	}
}

func TestReplaceSegments(t *testing.T) {
	e := NewEvent(RoleUser, &Text{Text: "draft"})

	if err := e.ReplaceSegments(nil); err == nil {
		t.Error("empty replacement should be rejected")
	}
	if err := e.ReplaceSegments([]Segment{&ToolCall{ID: "c"}}); err == nil {
		t.Error("invalid replacement should be rejected")
	}
	if e.Text() != "draft" {
		t.Errorf("rejected edit changed content to %q", e.Text())
	}

	if err := e.ReplaceSegments([]Segment{&Text{Text: "final"}}); err != nil {
		t.Fatalf("ReplaceSegments: %v", err)
	}
	if e.Text() != "final" {
		t.Errorf("Text() = %q, want final", e.Text())
	}
}

func TestAnnotateTiming(t *testing.T) {
	start := mustTime(t, "2026-03-01T10:00:00Z")
	end := mustTime(t, "2026-03-01T10:00:02Z")
	call := &ToolCall{ID: "call_1", Name: "f", Args: map[string]any{}}
	reasoning := &Reasoning{ID: "rs_1", Parts: []ReasoningPart{}}
	log, err := NewEventLog(
		NewEvent(RoleUser, &Text{Text: "q"}),
		NewEvent(RoleAssistant, reasoning, call),
	)
	if err != nil {
		t.Fatal(err)
	}

	if !log.AnnotateTiming("call_1", &start, nil) {
		t.Fatal("AnnotateTiming(call_1) = false, want true")
	}
	if !log.AnnotateTiming("call_1", nil, &end) {
		t.Fatal("second AnnotateTiming(call_1) = false, want true")
	}
	if call.StartedAt == nil || !call.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", call.StartedAt, start)
	}
	if call.CompletedAt == nil || !call.CompletedAt.Equal(end) {
		t.Errorf("CompletedAt = %v, want %v", call.CompletedAt, end)
	}

	if !log.AnnotateTiming("rs_1", &start, &end) {
		t.Error("AnnotateTiming(rs_1) = false, want true")
	}

	before, _ := json.Marshal(log.Events())
	if log.AnnotateTiming("missing", &start, &end) {
		t.Error("AnnotateTiming(missing) = true, want false")
	}
	after, _ := json.Marshal(log.Events())
	if string(before) != string(after) {
		t.Error("annotation of a missing id changed the log")
	}
}

func TestMergeText(t *testing.T) {
	call := &ToolCall{ID: "c", Name: "f", Args: map[string]any{}}
	in := []Segment{&Text{Text: "a"}, &Text{Text: "b"}, call, &Text{Text: "c"}}

	got := MergeText(in)
	want := []Segment{&Text{Text: "ab"}, call, &Text{Text: "c"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeText = %#v, want %#v", got, want)
	}
	if in[0].(*Text).Text != "a" {
		t.Error("MergeText modified its input")
	}
}

func TestJoinReasoningPartsOrdersBySummaryIndex(t *testing.T) {
	parts := []ReasoningPart{
		{SummaryIndex: 2, Text: "third"},
		{SummaryIndex: 0, Text: "first"},
		{SummaryIndex: 1, Text: "second"},
	}
	if got := JoinReasoningParts(parts); got != "first\n\nsecond\n\nthird" {
		t.Errorf("JoinReasoningParts = %q", got)
	}
}
