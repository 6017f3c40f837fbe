package storage

import (
	"encoding/json"
	"fmt"

	"github.com/rhuss/convlog/pkg/api"
)

// EncodeContent marshals the segments and optional reasoning summary of an
// event for SQL adapters. reasoning is nil when the event has none.
func EncodeContent(e *api.Event) (segments []byte, reasoning []byte, err error) {
	segs := e.Segments
	if segs == nil {
		segs = api.Segments{}
	}
	segments, err = json.Marshal(segs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling segments: %w", err)
	}
	if e.Reasoning != nil {
		reasoning, err = json.Marshal(e.Reasoning)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling reasoning: %w", err)
		}
	}
	return segments, reasoning, nil
}

// DecodeContent is the inverse of EncodeContent.
func DecodeContent(e *api.Event, segments, reasoning []byte) error {
	if err := json.Unmarshal(segments, &e.Segments); err != nil {
		return fmt.Errorf("unmarshaling segments: %w", err)
	}
	e.Reasoning = nil
	if len(reasoning) > 0 {
		e.Reasoning = &api.ReasoningSummary{}
		if err := json.Unmarshal(reasoning, e.Reasoning); err != nil {
			return fmt.Errorf("unmarshaling reasoning: %w", err)
		}
	}
	return nil
}
