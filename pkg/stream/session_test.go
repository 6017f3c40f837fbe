package stream

import (
	"errors"
	"testing"

	"github.com/rhuss/convlog/pkg/api"
)

func intPtr(i int) *int { return &i }

func TestSession_ReasoningPartsMergeAcrossFrames(t *testing.T) {
	s := NewSession()
	defer s.Close()

	e := api.NewEvent(api.RoleAssistant)
	if err := s.StartEvent(e); err != nil {
		t.Fatal(err)
	}

	frames := []*api.Reasoning{
		{ID: "rs_1", Parts: []api.ReasoningPart{{SummaryIndex: 1, Text: "sec"}}},
		{ID: "rs_1", Parts: []api.ReasoningPart{{SummaryIndex: 0, Text: "first", IsComplete: true}}},
		{ID: "rs_1", Parts: []api.ReasoningPart{{SummaryIndex: 1, Text: "second"}}},
	}
	for i, r := range frames {
		if err := s.ApplySegment(e.ID, nil, r); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if i == 1 {
			if got, _ := s.ReasoningText("rs_1"); got != "first\n\nsec" {
				t.Errorf("mid-stream text = %q", got)
			}
		}
	}
	if got, _ := s.ReasoningText("rs_1"); got != "first\n\nsecond" {
		t.Errorf("ReasoningText = %q", got)
	}

	got, _ := s.Event(e.ID)
	if len(got.Segments) != 1 {
		t.Fatalf("got %d segments, want the reasoning merged into one", len(got.Segments))
	}

	// A completed part cannot be revised.
	err := s.ApplySegment(e.ID, nil, &api.Reasoning{ID: "rs_1", Parts: []api.ReasoningPart{{SummaryIndex: 0, Text: "changed"}}})
	if !errors.Is(err, &api.APIError{Type: api.ErrorTypeValidation}) {
		t.Errorf("revision err = %v, want validation error", err)
	}
}

func TestSession_SegmentAddressing(t *testing.T) {
	s := NewSession()
	defer s.Close()
	e := api.NewEvent(api.RoleAssistant, &api.Text{Text: "a"})
	if err := s.StartEvent(e); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		index *int
		seg   api.Segment
	}{
		{intPtr(0), &api.Text{Text: "b"}},                                 // replace by index
		{nil, &api.ToolCall{ID: "c1", Name: "f", Args: map[string]any{}}}, // append
		{nil, &api.ToolCall{ID: "c1", Name: "g", Args: map[string]any{}}}, // replace by id
		{intPtr(2), &api.Text{Text: "tail"}},                              // index at the end appends
	}
	for i, st := range steps {
		if err := s.ApplySegment("", st.index, st.seg); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	got, _ := s.Event(e.ID)
	if len(got.Segments) != 3 {
		t.Fatalf("segments = %+v", got.Segments)
	}
	if got.Segments[0].(*api.Text).Text != "b" || got.Segments[1].(*api.ToolCall).Name != "g" {
		t.Errorf("segments = %+v", got.Segments)
	}
}

func TestSession_OutOfOrderIndexes(t *testing.T) {
	tests := []struct {
		name  string
		order []int
	}{
		{"in order", []int{0, 1, 2}},
		{"reversed", []int{2, 1, 0}},
		{"last first", []int{2, 0, 1}},
		{"middle first", []int{1, 2, 0}},
	}
	texts := []string{"A", "B", "C"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			defer s.Close()
			e := api.NewEvent(api.RoleAssistant)
			if err := s.StartEvent(e); err != nil {
				t.Fatal(err)
			}
			for _, i := range tt.order {
				if err := s.ApplySegment(e.ID, intPtr(i), &api.Text{Text: texts[i]}); err != nil {
					t.Fatalf("index %d: %v", i, err)
				}
			}
			if err := s.CompleteEvent(&api.Event{ID: e.ID}); err != nil {
				t.Fatal(err)
			}
			got, _ := s.Event(e.ID)
			if len(got.Segments) != len(texts) {
				t.Fatalf("got %d segments, want %d", len(got.Segments), len(texts))
			}
			for i, want := range texts {
				if text := got.Segments[i].(*api.Text).Text; text != want {
					t.Errorf("segment %d = %q, want %q", i, text, want)
				}
			}
		})
	}
}

func TestSession_CompleteWithIndexGap(t *testing.T) {
	s := NewSession()
	defer s.Close()
	e := api.NewEvent(api.RoleAssistant)
	if err := s.StartEvent(e); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplySegment(e.ID, intPtr(1), &api.Text{Text: "B"}); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Event(e.ID); len(got.Segments) != 0 {
		t.Errorf("held segment visible before index 0: %+v", got.Segments)
	}
	err := s.CompleteEvent(&api.Event{ID: e.ID})
	if !errors.Is(err, &api.APIError{Type: api.ErrorTypeValidation}) {
		t.Errorf("CompleteEvent err = %v, want validation error", err)
	}
	if err := s.ApplySegment(e.ID, intPtr(-1), &api.Text{Text: "x"}); !errors.Is(err, &api.APIError{Type: api.ErrorTypeValidation}) {
		t.Errorf("negative index err = %v, want validation error", err)
	}
}

func TestSession_CompletedEventRejectsSegments(t *testing.T) {
	s := NewSession()
	defer s.Close()
	e := api.NewEvent(api.RoleAssistant, &api.Text{Text: "x"})
	if err := s.StartEvent(e); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteEvent(&api.Event{ID: e.ID}); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplySegment(e.ID, nil, &api.Text{Text: "late"}); err == nil {
		t.Error("ApplySegment after completion succeeded")
	}
	if err := s.ApplySegment("evt_missing", nil, &api.Text{Text: "x"}); !errors.Is(err, &api.APIError{Type: api.ErrorTypeNotFound}) {
		t.Errorf("unknown event err = %v", err)
	}
}

func TestSession_SubscribeAndClose(t *testing.T) {
	s := NewSession()
	a, cancelA := s.Subscribe()
	b, _ := s.Subscribe()

	e := api.NewEvent(api.RoleUser, &api.Text{Text: "hi"})
	if err := s.StartEvent(e); err != nil {
		t.Fatal(err)
	}
	for name, ch := range map[string]<-chan Update{"a": a, "b": b} {
		u := <-ch
		if u.Type != FrameEventStart || u.Event.ID != e.ID {
			t.Errorf("%s got %+v", name, u)
		}
	}

	// Snapshots are independent of session state.
	if err := s.ApplySegment(e.ID, intPtr(0), &api.Text{Text: "edited"}); err != nil {
		t.Fatal(err)
	}
	u := <-b
	u.Event.Segments[0].(*api.Text).Text = "mutated"
	if got, _ := s.Event(e.ID); got.Text() != "edited" {
		t.Errorf("session event changed through a snapshot: %q", got.Text())
	}

	cancelA()
	cancelA()
	<-a // the segment update sent before cancel
	if _, ok := <-a; ok {
		t.Error("channel a still open after cancel")
	}

	s.Close()
	s.Close()
	for range b {
	}
	if err := s.StartEvent(api.NewEvent(api.RoleUser)); err == nil {
		t.Error("StartEvent after Close succeeded")
	}
	late, _ := s.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after Close is open")
	}
}
