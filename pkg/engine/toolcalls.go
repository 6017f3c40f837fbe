package engine

import (
	"context"
	"log/slog"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/tools"
)

// ToolResolution reports a ResolveToolCalls run.
type ToolResolution struct {
	// Event is the stored tool event, nil when nothing was pending.
	Event   *api.DatabaseEvent `json:"event,omitempty"`
	Results []*api.ToolResult  `json:"results,omitempty"`
	Outcome api.Outcome        `json:"outcome"`
}

// ResolveToolCalls executes the conversation's unresolved tool calls and
// appends one tool event holding a result per call, in call order. Calls
// outside the allowed tools are not executed; they are answered with an
// error result and reported as skips. The execution timing of each call
// is recorded on its stored event.
func (s *Service) ResolveToolCalls(ctx context.Context, conversationID string) (*ToolResolution, error) {
	log, err := s.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	calls := log.UnresolvedToolCalls()
	if len(calls) == 0 {
		return &ToolResolution{Outcome: api.Applied(0)}, nil
	}

	filtered := tools.FilterAllowedTools(calls, s.cfg.AllowedTools)
	executed := tools.ExecuteAll(ctx, s.cfg.Executors, filtered.Allowed, s.cfg.ToolLimit)

	byID := make(map[string]*api.ToolResult, len(calls))
	for _, r := range executed {
		byID[r.ID] = r
	}
	skipped := make([]string, 0, len(filtered.Rejected))
	for _, r := range filtered.Rejected {
		byID[r.ID] = r
		skipped = append(skipped, r.ID)
	}

	results := make([]*api.ToolResult, len(calls))
	segments := make([]api.Segment, len(calls))
	for i, c := range calls {
		results[i] = byID[c.ID]
		segments[i] = results[i]
	}
	debug.Log(debug.Tools, "tool calls resolved",
		"conversation_id", conversationID,
		"executed", len(executed),
		"rejected", len(skipped),
	)

	s.recordTiming(ctx, conversationID, log, filtered.Allowed)

	res, err := s.Append(ctx, conversationID, api.NewEvent(api.RoleTool, segments...))
	if err != nil {
		return &ToolResolution{Results: results, Outcome: api.NotApplied(len(calls))}, err
	}
	return &ToolResolution{
		Event:   &res.Events[0],
		Results: results,
		Outcome: api.AppliedWithSkips(len(calls), skipped),
	}, nil
}

// recordTiming stores the events whose calls were just executed. The
// executor set the timing on the calls in place. A failed update loses
// only timing and is logged.
func (s *Service) recordTiming(ctx context.Context, conversationID string, log *api.EventLog, ran []*api.ToolCall) {
	if len(ran) == 0 {
		return
	}
	ids := make(map[string]bool, len(ran))
	for _, c := range ran {
		ids[c.ID] = true
	}
	for _, e := range log.Events() {
		if !hasCall(e, ids) {
			continue
		}
		if err := s.store.UpdateEvent(ctx, conversationID, e); err != nil {
			slog.Warn("failed to record tool call timing",
				"conversation_id", conversationID,
				"event_id", e.ID,
				"error", err,
			)
		}
	}
}

func hasCall(e *api.Event, ids map[string]bool) bool {
	for _, seg := range e.Segments {
		if c, ok := seg.(*api.ToolCall); ok && ids[c.ID] {
			return true
		}
	}
	return false
}
