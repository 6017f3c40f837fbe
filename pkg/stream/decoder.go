package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/observability"
)

// DefaultChunkSize is the read size used by NewDecoder.
const DefaultChunkSize = 4096

// maxLogBytes bounds malformed payloads in warnings.
const maxLogBytes = 200

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Decoder splits an SSE byte stream into data payloads. Lines may end in
// CR, LF or CRLF, and a line or a CRLF pair may straddle two reads. Lines
// have no length limit.
type Decoder struct {
	r     io.Reader
	chunk []byte
	rest  []byte // unread part of the current chunk
	line  []byte // partial line carried across chunks
	err   error  // sticky read error

	skipLF bool // the previous chunk ended in CR
	done   bool // a [DONE] payload was seen

	malformed int
}

// NewDecoder returns a decoder reading r in chunks of DefaultChunkSize.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, DefaultChunkSize)
}

// NewDecoderSize returns a decoder reading r in chunks of size bytes.
func NewDecoderSize(r io.Reader, size int) *Decoder {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Decoder{r: r, chunk: make([]byte, size)}
}

// Next returns the next JSON payload. It returns io.EOF once the reader is
// exhausted; [DONE] does not end iteration by itself. Payloads that are not
// valid JSON are logged, counted and skipped.
func (d *Decoder) Next() (json.RawMessage, error) {
	for {
		for len(d.rest) > 0 {
			if d.skipLF {
				d.skipLF = false
				if d.rest[0] == '\n' {
					d.rest = d.rest[1:]
					continue
				}
			}

			i := bytes.IndexAny(d.rest, "\r\n")
			if i < 0 {
				d.line = append(d.line, d.rest...)
				d.rest = nil
				break
			}
			d.line = append(d.line, d.rest[:i]...)
			d.skipLF = d.rest[i] == '\r'
			d.rest = d.rest[i+1:]

			v, ok := d.payload(d.line)
			d.line = d.line[:0]
			if ok {
				return v, nil
			}
		}

		if d.err != nil {
			// The stream may end without a final line break.
			if len(d.line) > 0 {
				v, ok := d.payload(d.line)
				d.line = d.line[:0]
				if ok {
					return v, nil
				}
			}
			if errors.Is(d.err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("reading stream: %w", d.err)
		}

		n, err := d.r.Read(d.chunk)
		d.rest = d.chunk[:n]
		d.err = err
	}
}

// Done reports whether the stream carried a [DONE] payload.
func (d *Decoder) Done() bool { return d.done }

// Malformed returns the number of data lines skipped as invalid JSON.
func (d *Decoder) Malformed() int { return d.malformed }

// payload extracts the data of one line. Non-data lines, empty payloads and
// [DONE] yield nothing.
func (d *Decoder) payload(line []byte) (json.RawMessage, bool) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	data := bytes.TrimSpace(line[len(dataPrefix):])
	if len(data) == 0 {
		return nil, false
	}
	if bytes.Equal(data, doneMarker) {
		d.done = true
		return nil, false
	}
	if !json.Valid(data) {
		d.malformed++
		observability.StreamMalformedLinesTotal.Inc()
		slog.Warn("skipping malformed stream line", "data", debug.Truncate(string(data), maxLogBytes))
		return nil, false
	}
	debug.Trace(debug.Streaming, "stream line", "data", string(data))
	return append(json.RawMessage(nil), data...), true
}
