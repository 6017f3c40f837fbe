package stream

import (
	"encoding/json"
	"fmt"

	"github.com/rhuss/convlog/pkg/api"
)

// FrameType discriminates stream frames.
type FrameType string

const (
	FrameEventStart    FrameType = "event_start"
	FrameSegment       FrameType = "segment"
	FrameEventComplete FrameType = "event_complete"
	FrameComplete      FrameType = "complete"
	FrameDone          FrameType = "done"
	FrameTypeError     FrameType = "error"
)

// Terminal reports whether no frames follow t.
func (t FrameType) Terminal() bool {
	return t == FrameComplete || t == FrameDone || t == FrameTypeError
}

// Frame is one decoded stream value. Data holds the type-specific payload.
// Error is set for the bare {"error": {...}} form, which has no type.
type Frame struct {
	Type     FrameType       `json:"type,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Error    *FrameError     `json:"error,omitempty"`
}

// FrameError is the structured error carried by an error frame.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FrameError) Error() string {
	if e.Code == "" {
		return "stream error: " + e.Message
	}
	return fmt.Sprintf("stream error %s: %s", e.Code, e.Message)
}

// EventData is the payload of event_start and event_complete frames.
type EventData struct {
	Event *api.Event `json:"event"`
}

// SegmentData is the payload of a segment frame. The segment is addressed
// by SegmentIndex when present, else by its id, else appended.
type SegmentData struct {
	Segment      json.RawMessage `json:"segment"`
	SegmentIndex *int            `json:"segmentIndex,omitempty"`
	Event        EventRef        `json:"event"`
}

// EventRef names the event a segment frame applies to.
type EventRef struct {
	ID string `json:"id"`
}

type errorData struct {
	Error *FrameError `json:"error"`
}

// DecodeFrame parses a raw value into a Frame. A value with an error
// object and no type is normalized to an error frame.
func DecodeFrame(raw json.RawMessage) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, err
	}
	if f.Type == "" && f.Error != nil {
		f.Type = FrameTypeError
	}
	return f, nil
}

// StreamError returns the error carried by an error frame, from either
// data.error or the bare form.
func (f Frame) StreamError() *FrameError {
	if f.Error != nil {
		return f.Error
	}
	var d errorData
	if len(f.Data) > 0 && json.Unmarshal(f.Data, &d) == nil && d.Error != nil {
		return d.Error
	}
	return &FrameError{Code: "unknown", Message: "error frame without details"}
}

// EventStartFrame builds an event_start frame.
func EventStartFrame(e *api.Event) (Frame, error) {
	return dataFrame(FrameEventStart, EventData{Event: e})
}

// SegmentFrame builds a segment frame. A negative index leaves the segment
// to be addressed by id.
func SegmentFrame(eventID string, index int, s api.Segment) (Frame, error) {
	seg, err := api.MarshalSegment(s)
	if err != nil {
		return Frame{}, err
	}
	d := SegmentData{Segment: seg, Event: EventRef{ID: eventID}}
	if index >= 0 {
		d.SegmentIndex = &index
	}
	return dataFrame(FrameSegment, d)
}

// EventCompleteFrame builds an event_complete frame.
func EventCompleteFrame(e *api.Event) (Frame, error) {
	return dataFrame(FrameEventComplete, EventData{Event: e})
}

// CompleteFrame builds the frame that ends a stream.
func CompleteFrame() Frame {
	return Frame{Type: FrameComplete}
}

// ErrorFrame builds an error frame.
func ErrorFrame(code, message string) Frame {
	data, _ := json.Marshal(errorData{Error: &FrameError{Code: code, Message: message}})
	return Frame{Type: FrameTypeError, Data: data}
}

func dataFrame(t FrameType, v any) (Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s frame: %w", t, err)
	}
	return Frame{Type: t, Data: data}, nil
}
