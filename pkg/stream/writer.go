package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rhuss/convlog/pkg/api"
)

// ErrWriterClosed is returned for writes after a terminal frame.
var ErrWriterClosed = errors.New("stream writer is closed")

// Writer produces the stream protocol. Each frame is written as
//
//	data: {json}\n
//	\n
//
// and a terminal frame (complete, done or error) is followed by
//
//	data: [DONE]\n
//	\n
type Writer struct {
	w     io.Writer
	flush func() error

	mu     sync.Mutex
	closed bool
}

// NewWriter returns a writer on w. When w is an http.ResponseWriter every
// frame is flushed to the client.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w, flush: func() error { return nil }}
	if rw, ok := w.(http.ResponseWriter); ok {
		rc := http.NewResponseController(rw)
		sw.flush = rc.Flush
	}
	return sw
}

// SetHeaders sets the response headers of an event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

// WriteFrame writes one frame.
func (w *Writer) WriteFrame(f Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if f.Type.Terminal() {
		if _, err := io.WriteString(w.w, "data: [DONE]\n\n"); err != nil {
			return fmt.Errorf("failed to write [DONE]: %w", err)
		}
		w.closed = true
	}
	if err := w.flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// WriteEvent streams a finished event as event_start, one segment frame per
// segment, and event_complete.
func (w *Writer) WriteEvent(e *api.Event) error {
	shell := *e
	shell.Segments = nil
	start, err := EventStartFrame(&shell)
	if err != nil {
		return err
	}
	if err := w.WriteFrame(start); err != nil {
		return err
	}
	for i, s := range e.Segments {
		f, err := SegmentFrame(e.ID, i, s)
		if err != nil {
			return err
		}
		if err := w.WriteFrame(f); err != nil {
			return err
		}
	}
	done, err := EventCompleteFrame(e)
	if err != nil {
		return err
	}
	return w.WriteFrame(done)
}

// Complete writes the complete frame, ending the stream.
func (w *Writer) Complete() error {
	return w.WriteFrame(CompleteFrame())
}

// Fail writes an error frame, ending the stream.
func (w *Writer) Fail(code, message string) error {
	return w.WriteFrame(ErrorFrame(code, message))
}
