package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/provider"
	"github.com/rhuss/convlog/pkg/stream"
)

// Encode converts a stored conversation into the message shape of the
// named provider.
func (s *Service) Encode(ctx context.Context, conversationID, providerName string) (*provider.Payload, error) {
	log, err := s.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.providers.Encode(log, providerName)
}

// Export builds a complete request body for the named provider from a
// stored conversation.
func (s *Service) Export(ctx context.Context, conversationID, providerName string, opts provider.RequestOptions) ([]byte, error) {
	m, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	log, err := s.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return m.RequestBody(log, opts)
}

// Replay writes a stored conversation as a native frame stream and
// terminates it. A conversation that cannot be loaded ends the stream with
// an error frame and the load error is returned.
func (s *Service) Replay(ctx context.Context, conversationID string, w *stream.Writer) error {
	log, err := s.Load(ctx, conversationID)
	if err != nil {
		if ferr := w.Fail(string(errorType(err)), err.Error()); ferr != nil {
			return ferr
		}
		return err
	}
	for _, e := range log.Events() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.WriteEvent(e); err != nil {
			return err
		}
	}
	return w.Complete()
}

// TranscriptEntry is one event prepared for display.
type TranscriptEntry struct {
	ID        string                `json:"id"`
	Role      api.Role              `json:"role"`
	Timestamp time.Time             `json:"timestamp"`
	Text      string                `json:"text,omitempty"`
	Segments  api.Segments          `json:"segments"`
	Reasoning *api.ReasoningSummary `json:"reasoning,omitempty"`
}

// Transcript returns the conversation for display, with adjacent text
// segments merged. Stored events are not changed.
func (s *Service) Transcript(ctx context.Context, conversationID string) ([]TranscriptEntry, error) {
	log, err := s.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	entries := make([]TranscriptEntry, 0, log.Len())
	for _, e := range log.Events() {
		entries = append(entries, TranscriptEntry{
			ID:        e.ID,
			Role:      e.Role,
			Timestamp: e.Timestamp,
			Text:      e.Text(),
			Segments:  api.MergeText(e.Segments),
			Reasoning: e.Reasoning,
		})
	}
	return entries, nil
}

func errorType(err error) api.ErrorType {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return api.ErrorTypeServerError
}
