package stream

import (
	"fmt"
	"sync"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/observability"
)

// listenerBuffer is the channel capacity of each subscription.
const listenerBuffer = 32

// Update is delivered to subscribers after every change to an event.
type Update struct {
	Type  FrameType
	Event *api.Event // snapshot; safe to keep
	Err   *FrameError
}

// Session holds the in-flight state of one stream: the events being built,
// their reasoning segments by id, and the subscribers watching them. A
// session belongs to a single stream and is never shared between streams.
type Session struct {
	mu        sync.Mutex
	events    map[string]*api.Event
	order     []string
	completed map[string]bool
	current   string
	reasoning map[string]*api.Reasoning
	pending   map[string]map[int]api.Segment // by event id, then segment index

	listeners map[int]chan Update
	nextID    int
	closed    bool
}

// NewSession creates an open session.
func NewSession() *Session {
	observability.ActiveStreams.Inc()
	return &Session{
		events:    make(map[string]*api.Event),
		completed: make(map[string]bool),
		reasoning: make(map[string]*api.Reasoning),
		pending:   make(map[string]map[int]api.Segment),
		listeners: make(map[int]chan Update),
	}
}

// StartEvent registers a new in-flight event. The event becomes the target
// of segment frames that do not name an event.
func (s *Session) StartEvent(e *api.Event) error {
	if e == nil || e.ID == "" {
		return api.NewValidationError("event.id", "event_start requires an event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	if _, ok := s.events[e.ID]; ok {
		return api.NewValidationError("event.id", fmt.Sprintf("event %s already started", e.ID))
	}

	e = e.Clone()
	s.events[e.ID] = e
	s.order = append(s.order, e.ID)
	s.current = e.ID
	for _, seg := range e.Segments {
		if r, ok := seg.(*api.Reasoning); ok {
			s.reasoning[r.ID] = r
		}
	}
	s.notify(Update{Type: FrameEventStart, Event: e.Clone()})
	return nil
}

// ApplySegment merges a one-shot segment update into an in-flight event.
// With an index inside the event the segment at that position is replaced.
// An index past the end is held until the segments before it arrive, then
// placed at that index. Without an index, a segment with the same id is
// replaced, otherwise the segment is appended. Reasoning updates merge part
// by part.
func (s *Session) ApplySegment(eventID string, index *int, seg api.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}

	e, err := s.inFlight(eventID)
	if err != nil {
		return err
	}
	if index != nil && *index < 0 {
		return api.NewValidationError("segmentIndex", fmt.Sprintf("negative segment index %d", *index))
	}

	if r, ok := seg.(*api.Reasoning); ok {
		if existing, ok := s.reasoning[r.ID]; ok {
			if err := mergeReasoning(existing, r); err != nil {
				return err
			}
			s.notify(Update{Type: FrameSegment, Event: e.Clone()})
			return nil
		}
		s.reasoning[r.ID] = r
	}

	switch {
	case index != nil && *index < len(e.Segments):
		e.Segments[*index] = seg
	case index != nil && *index > len(e.Segments):
		held := s.pending[e.ID]
		if held == nil {
			held = make(map[int]api.Segment)
			s.pending[e.ID] = held
		}
		held[*index] = seg
		debug.Log(debug.Streaming, "holding segment until earlier indexes arrive",
			"event_id", e.ID, "index", *index, "have", len(e.Segments))
		return nil
	case index == nil && replaceByID(e, seg):
	default:
		e.Segments = append(e.Segments, seg)
	}
	s.placePending(e)
	s.notify(Update{Type: FrameSegment, Event: e.Clone()})
	return nil
}

// placePending moves held segments that are now contiguous into e.
func (s *Session) placePending(e *api.Event) {
	held := s.pending[e.ID]
	for len(held) > 0 {
		seg, ok := held[len(e.Segments)]
		if !ok {
			return
		}
		delete(held, len(e.Segments))
		e.Segments = append(e.Segments, seg)
	}
	delete(s.pending, e.ID)
}

func replaceByID(e *api.Event, seg api.Segment) bool {
	id := api.SegmentID(seg)
	if id == "" {
		return false
	}
	for i, existing := range e.Segments {
		if existing.Type() == seg.Type() && api.SegmentID(existing) == id {
			e.Segments[i] = seg
			return true
		}
	}
	return false
}

// CompleteEvent finalizes an event. When final carries segments it replaces
// the accumulated content; further segment frames for the event are rejected.
func (s *Session) CompleteEvent(final *api.Event) error {
	if final == nil || final.ID == "" {
		return api.NewValidationError("event.id", "event_complete requires an event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}

	e, ok := s.events[final.ID]
	if !ok {
		// A complete event that was never started is accepted as is.
		e = final.Clone()
		s.events[e.ID] = e
		s.order = append(s.order, e.ID)
	} else if len(final.Segments) > 0 {
		c := final.Clone()
		e.Segments = c.Segments
		e.Reasoning = c.Reasoning
	} else if held := s.pending[e.ID]; len(held) > 0 {
		return api.NewValidationError("segmentIndex",
			fmt.Sprintf("event %s completed with %d segments still waiting for earlier indexes", e.ID, len(held)))
	}
	delete(s.pending, e.ID)
	for _, seg := range e.Segments {
		if r, ok := seg.(*api.Reasoning); ok {
			s.reasoning[r.ID] = r
		}
	}
	s.completed[e.ID] = true
	s.notify(Update{Type: FrameEventComplete, Event: e.Clone()})
	return nil
}

// Fail delivers a stream error to subscribers.
func (s *Session) Fail(err *FrameError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.notify(Update{Type: FrameTypeError, Err: err})
	}
}

// Event returns a snapshot of the event with the given id.
func (s *Session) Event(id string) (*api.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Events returns snapshots of all events in start order.
func (s *Session) Events() []*api.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*api.Event, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.events[id].Clone())
	}
	return out
}

// Completed reports whether the event received event_complete.
func (s *Session) Completed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[id]
}

// ReasoningText returns the combined text of a reasoning segment, valid
// while parts are still streaming.
func (s *Session) ReasoningText(reasoningID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reasoning[reasoningID]
	if !ok {
		return "", false
	}
	return r.Text(), true
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. Each update carries a full snapshot, so a listener that
// falls behind misses intermediate states but never the latest one it
// receives. The channel is closed by cancel or by Close.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Update, listenerBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if l, ok := s.listeners[id]; ok {
				delete(s.listeners, id)
				close(l)
			}
		})
	}
}

// Close ends the session and closes every subscription. It is safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.listeners {
		close(ch)
		delete(s.listeners, id)
	}
	observability.ActiveStreams.Dec()
}

func (s *Session) inFlight(eventID string) (*api.Event, error) {
	if eventID == "" {
		eventID = s.current
	}
	e, ok := s.events[eventID]
	if !ok {
		return nil, api.NewNotFoundError(fmt.Sprintf("segment for unknown event %q", eventID))
	}
	if s.completed[eventID] {
		return nil, api.NewValidationError("event.id", fmt.Sprintf("event %s is already complete", eventID))
	}
	return e, nil
}

// notify must be called with s.mu held.
func (s *Session) notify(u Update) {
	for id, ch := range s.listeners {
		select {
		case ch <- u:
		default:
			debug.Log(debug.Streaming, "listener behind, dropping update", "listener", id, "type", u.Type)
		}
	}
}

func mergeReasoning(dst, src *api.Reasoning) error {
	for _, p := range src.Parts {
		if err := dst.MergePart(p); err != nil {
			return err
		}
	}
	if src.SequenceNumber != 0 {
		dst.SequenceNumber = src.SequenceNumber
	}
	return nil
}

var errSessionClosed = api.NewServerError("stream session is closed")
