package engine

import (
	"context"
	"io"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/provider"
	"github.com/rhuss/convlog/pkg/storage"
	"github.com/rhuss/convlog/pkg/stream"
)

// NativeStream names the convlog frame protocol in IngestStream.
const NativeStream = "convlog"

// IngestResult reports the events a response or stream added to a
// conversation.
type IngestResult struct {
	Events  []api.DatabaseEvent       `json:"events"`
	Skipped []provider.SkippedSegment `json:"skipped,omitempty"`
	Outcome api.Outcome               `json:"outcome"`
}

// ImportResponse decodes a complete, non-streaming response body of the
// named provider and appends the resulting events. Items the mapper could
// not convert are reported as skips.
func (s *Service) ImportResponse(ctx context.Context, conversationID, providerName string, body []byte) (*IngestResult, error) {
	m, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	conv, err := m.DecodeResponse(body)
	if err != nil {
		return nil, err
	}
	return s.appendConversion(ctx, conversationID, conv)
}

// IngestStream reads an SSE body to its end and appends the finalized
// events. providerName selects the provider whose stream format body is
// in; NativeStream (or "") reads convlog frames. body is closed before
// IngestStream returns. A native stream that ends in an error frame stores
// nothing and returns the frame's error.
func (s *Service) IngestStream(ctx context.Context, conversationID, providerName string, body io.ReadCloser) (*IngestResult, error) {
	session := stream.NewSession()
	defer session.Close()
	p := stream.NewProcessor(session, stream.Handlers{})

	if providerName == "" || providerName == NativeStream {
		if err := p.Run(ctx, body); err != nil {
			return &IngestResult{Outcome: api.NotApplied(len(session.Events()))}, err
		}
		conv := &provider.Conversion{}
		for _, e := range session.Events() {
			if !session.Completed(e.ID) {
				conv.Skip(NativeStream, provider.SkippedSegment{ID: e.ID, Reason: "event not completed"})
				continue
			}
			conv.Events = append(conv.Events, e)
		}
		return s.appendConversion(ctx, conversationID, conv)
	}

	m, err := s.providers.Get(providerName)
	if err != nil {
		body.Close()
		return nil, err
	}
	conv, err := p.Fold(ctx, body, m.NewStreamFolder())
	if err != nil {
		return nil, err
	}
	return s.appendConversion(ctx, conversationID, conv)
}

func (s *Service) appendConversion(ctx context.Context, conversationID string, conv *provider.Conversion) (*IngestResult, error) {
	if len(conv.Events) == 0 {
		// Nothing to store; the conversation must still exist.
		if err := s.requireConversation(ctx, conversationID); err != nil {
			return nil, err
		}
		return &IngestResult{Skipped: conv.Skipped, Outcome: conv.Outcome()}, nil
	}
	res, err := s.Append(ctx, conversationID, conv.Events...)
	if err != nil {
		return &IngestResult{Skipped: conv.Skipped, Outcome: api.NotApplied(len(conv.Events))}, err
	}
	return &IngestResult{Events: res.Events, Skipped: conv.Skipped, Outcome: conv.Outcome()}, nil
}

func (s *Service) requireConversation(ctx context.Context, conversationID string) error {
	ok, err := s.store.ConversationExists(ctx, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return mapStoreError(storage.ErrNotFound, conversationID)
	}
	return nil
}
