package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/observability"
	"github.com/rhuss/convlog/pkg/provider"
)

// Handlers are optional callbacks invoked while frames are processed.
type Handlers struct {
	// OnFrame receives every decoded value, whatever its type.
	OnFrame func(raw json.RawMessage)

	OnEventStart    func(e *api.Event)
	OnSegment       func(eventID string, s api.Segment)
	OnEventComplete func(e *api.Event)
	OnDone          func()
}

// Processor interprets frames and applies them to its session.
type Processor struct {
	session   *Session
	handlers  Handlers
	chunkSize int
}

// NewProcessor creates a processor feeding session.
func NewProcessor(session *Session, h Handlers) *Processor {
	return &Processor{session: session, handlers: h, chunkSize: DefaultChunkSize}
}

// Session returns the session the processor applies frames to.
func (p *Processor) Session() *Session { return p.session }

// Frames returns an iterator over the interpreted frames of body. Each frame
// has been applied to the session before it is yielded. Unknown frame
// types and frames with unusable payloads are skipped. An error frame is
// yielded with its error and ends iteration, as does complete or done.
//
// body is closed when iteration ends for any reason, including a break by
// the caller and cancellation of ctx, which also unblocks a pending read.
func (p *Processor) Frames(ctx context.Context, body io.ReadCloser) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		closeBody := closeOnce(body)
		defer closeBody()
		stop := context.AfterFunc(ctx, closeBody)
		defer stop()

		dec := NewDecoderSize(body, p.chunkSize)
		for {
			if err := ctx.Err(); err != nil {
				yield(Frame{}, err)
				return
			}
			raw, err := dec.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				yield(Frame{}, err)
				return
			}
			if p.handlers.OnFrame != nil {
				p.handlers.OnFrame(raw)
			}

			f, err := DecodeFrame(raw)
			if err != nil {
				observability.StreamMalformedLinesTotal.Inc()
				slog.Warn("skipping undecodable frame", "error", err)
				continue
			}
			applied, err := p.apply(f)
			if err != nil {
				var fe *FrameError
				if errors.As(err, &fe) {
					yield(f, fe)
					return
				}
				// A frame the session rejects is skipped like a malformed line.
				slog.Warn("skipping frame", "type", f.Type, "error", err)
				continue
			}
			if !applied {
				continue
			}
			if !yield(f, nil) || f.Type.Terminal() {
				return
			}
		}
	}
}

// Run processes body to the end and returns the stream error, if any.
func (p *Processor) Run(ctx context.Context, body io.ReadCloser) error {
	for _, err := range p.Frames(ctx, body) {
		if err != nil {
			return err
		}
	}
	return nil
}

// Fold drives a provider stream folder over a provider's native stream and
// returns the folded conversion. The resulting events are also published
// to the session as started and completed.
func (p *Processor) Fold(ctx context.Context, body io.ReadCloser, folder provider.StreamFolder) (*provider.Conversion, error) {
	closeBody := closeOnce(body)
	defer closeBody()
	stop := context.AfterFunc(ctx, closeBody)
	defer stop()

	dec := NewDecoderSize(body, p.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if p.handlers.OnFrame != nil {
			p.handlers.OnFrame(raw)
		}
		if err := folder.Fold(raw); err != nil {
			return nil, err
		}
	}

	conv, err := folder.Finish()
	if err != nil {
		return nil, err
	}
	for _, e := range conv.Events {
		if err := p.session.StartEvent(e); err != nil {
			return nil, err
		}
		if err := p.session.CompleteEvent(e); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

// apply dispatches one frame. It reports false for frames that were
// ignored.
func (p *Processor) apply(f Frame) (bool, error) {
	switch f.Type {
	case FrameEventStart, FrameEventComplete:
		var d EventData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return false, err
		}
		if f.Type == FrameEventStart {
			if err := p.session.StartEvent(d.Event); err != nil {
				return false, err
			}
			if p.handlers.OnEventStart != nil {
				p.handlers.OnEventStart(d.Event)
			}
		} else {
			if err := p.session.CompleteEvent(d.Event); err != nil {
				return false, err
			}
			if p.handlers.OnEventComplete != nil {
				p.handlers.OnEventComplete(d.Event)
			}
		}

	case FrameSegment:
		var d SegmentData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return false, err
		}
		seg, err := api.UnmarshalSegment(d.Segment)
		if err != nil {
			return false, err
		}
		if err := p.session.ApplySegment(d.Event.ID, d.SegmentIndex, seg); err != nil {
			return false, err
		}
		if p.handlers.OnSegment != nil {
			p.handlers.OnSegment(d.Event.ID, seg)
		}

	case FrameComplete, FrameDone:
		if p.handlers.OnDone != nil {
			p.handlers.OnDone()
		}

	case FrameTypeError:
		fe := f.StreamError()
		p.session.Fail(fe)
		observability.StreamFramesTotal.WithLabelValues(string(f.Type)).Inc()
		return true, fe

	default:
		debug.Log(debug.Streaming, "ignoring unknown frame type", "type", f.Type)
		return false, nil
	}

	observability.StreamFramesTotal.WithLabelValues(string(f.Type)).Inc()
	return true, nil
}

func closeOnce(c io.Closer) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := c.Close(); err != nil {
				debug.Log(debug.Streaming, "closing stream body", "error", err)
			}
		})
	}
}
