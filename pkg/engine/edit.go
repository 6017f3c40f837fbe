package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
)

// EditSegments replaces the content of a stored event. The conversation
// must remain a valid log afterwards: a removed tool call may not leave a
// later result unanswered, and new results must answer earlier calls. The
// event keeps its id, role, timestamp and position.
func (s *Service) EditSegments(ctx context.Context, conversationID, eventID string, segments []api.Segment) (*api.Event, error) {
	stored, err := s.store.ListEvents(ctx, conversationID)
	if err != nil {
		return nil, mapStoreError(err, conversationID)
	}

	events := make([]*api.Event, len(stored))
	var edited *api.Event
	for i := range stored {
		events[i] = &stored[i].Event
		if stored[i].ID == eventID {
			edited = stored[i].Event.Clone()
			if err := edited.ReplaceSegments(segments); err != nil {
				return nil, err
			}
			events[i] = edited
		}
	}
	if edited == nil {
		return nil, api.NewNotFoundError(fmt.Sprintf("event %s not found in conversation %s", eventID, conversationID))
	}
	if _, err := api.NewEventLog(events...); err != nil {
		return nil, err
	}

	if err := s.store.UpdateEvent(ctx, conversationID, edited); err != nil {
		return nil, mapStoreError(err, conversationID)
	}
	debug.Log(debug.Storage, "event segments replaced",
		"conversation_id", conversationID,
		"event_id", eventID,
		"segments", len(segments),
	)
	return edited, nil
}

// AnnotateTiming sets the start and completion time of the tool call or
// reasoning segment with the given id. It reports false, and changes
// nothing, when no such segment exists. Nil times leave the stored value.
func (s *Service) AnnotateTiming(ctx context.Context, conversationID, segmentID string, startedAt, completedAt *time.Time) (bool, error) {
	log, err := s.Load(ctx, conversationID)
	if err != nil {
		return false, err
	}
	for _, e := range log.Events() {
		if !e.AnnotateTiming(segmentID, startedAt, completedAt) {
			continue
		}
		if err := s.store.UpdateEvent(ctx, conversationID, e); err != nil {
			return false, mapStoreError(err, conversationID)
		}
		return true, nil
	}
	return false, nil
}
