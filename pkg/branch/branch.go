// Package branch forks a conversation: it copies the events up to a cut
// point into a new conversation that then evolves independently.
//
// Copied events get fresh ids but keep their source order keys, which are
// scoped per conversation and so cannot collide in the destination. The
// destination is created before the copy; if the copy fails it is deleted
// again so no partially seeded conversation is left behind.
package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/observability"
	"github.com/rhuss/convlog/pkg/storage"
)

// DefaultCopyBatchSize is used when Config.CopyBatchSize is not positive.
const DefaultCopyBatchSize = 100

// Config holds configuration for the Engine.
type Config struct {
	// CopyBatchSize is the number of events written per insert.
	CopyBatchSize int
}

func (c Config) batchSize() int {
	if c.CopyBatchSize <= 0 {
		return DefaultCopyBatchSize
	}
	return c.CopyBatchSize
}

// Request describes a branch operation.
type Request struct {
	SourceConversationID string
	// CutIndex is the zero-based index of the last copied event.
	CutIndex int
	// ExpectedRole is the caller's belief about the role of the event at
	// CutIndex. A mismatch is logged; the stored event is authoritative.
	ExpectedRole api.Role
	// DestinationConversationID names the new conversation. Empty means a
	// generated id.
	DestinationConversationID string
}

// Result reports a branch operation. Outcome is set even when Branch
// returns an error.
type Result struct {
	ConversationID     string      `json:"conversation_id,omitempty"`
	CopiedCount        int         `json:"copied_count"`
	BranchPointEventID string      `json:"branch_point_event_id,omitempty"`
	Outcome            api.Outcome `json:"outcome"`
}

// Engine performs branch operations against a store.
type Engine struct {
	store storage.EventStore
	cfg   Config
}

// New creates an Engine. The store must not be nil.
func New(store storage.EventStore, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("branch: store must not be nil")
	}
	return &Engine{store: store, cfg: cfg}, nil
}

// Branch copies events [0, CutIndex] of the source conversation into a new
// conversation. A cut index outside the source is an out_of_range error and
// nothing is created. When the copy fails after the destination was
// created, the destination is deleted and the original error is returned
// with a rolled_back outcome. Tool calls left without a result in the copied
// prefix are reported as skips of an otherwise applied outcome.
func (e *Engine) Branch(ctx context.Context, req Request) (*Result, error) {
	res, err := e.branch(ctx, req)
	observability.BranchesTotal.WithLabelValues(string(res.Outcome.Kind)).Inc()
	return res, err
}

func (e *Engine) branch(ctx context.Context, req Request) (*Result, error) {
	source, err := e.store.ListEvents(ctx, req.SourceConversationID)
	if err != nil {
		return notApplied(0), mapStoreError(err, req.SourceConversationID)
	}
	if req.CutIndex < 0 || req.CutIndex >= len(source) {
		return notApplied(0), api.NewOutOfRangeError("cut_index",
			fmt.Sprintf("cut index %d is outside [0, %d]", req.CutIndex, len(source)-1))
	}

	cut := source[req.CutIndex]
	if req.ExpectedRole != "" && req.ExpectedRole != cut.Role {
		slog.Warn("branch point role differs from caller expectation; using stored event",
			"conversation_id", req.SourceConversationID,
			"cut_index", req.CutIndex,
			"expected_role", req.ExpectedRole,
			"stored_role", cut.Role,
		)
	}

	destID := req.DestinationConversationID
	if destID == "" {
		destID = api.NewConversationID()
	}
	copies := copyPrefix(source[:req.CutIndex+1], destID)

	if err := e.store.CreateConversation(ctx, destID); err != nil {
		return notApplied(len(copies)), mapStoreError(err, destID)
	}
	debug.Log(debug.Branch, "branch destination created",
		"source", req.SourceConversationID,
		"destination", destID,
		"events", len(copies),
	)

	if err := e.insertBatches(ctx, destID, copies); err != nil {
		e.compensate(ctx, destID, err)
		return &Result{Outcome: api.RolledBack(len(copies))}, err
	}

	res := &Result{
		ConversationID:     destID,
		CopiedCount:        len(copies),
		BranchPointEventID: copies[len(copies)-1].ID,
		Outcome:            api.Applied(len(copies)),
	}
	if ids := unresolvedCalls(copies); len(ids) > 0 {
		// The prefix is fully copied; the skips name calls whose results
		// lie past the cut.
		res.Outcome = api.Outcome{
			Kind:    api.OutcomeAppliedWithSkips,
			Total:   len(copies),
			Applied: len(copies),
			Skipped: ids,
		}
	}
	return res, nil
}

func (e *Engine) insertBatches(ctx context.Context, destID string, events []api.DatabaseEvent) error {
	size := e.cfg.batchSize()
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		if err := e.store.InsertEvents(ctx, destID, events[start:end]); err != nil {
			return fmt.Errorf("copying events %d-%d: %w", start, end-1, err)
		}
		debug.Log(debug.Branch, "branch batch copied", "destination", destID, "from", start, "to", end-1)
	}
	return nil
}

// compensate deletes a partially seeded destination. It runs even when ctx
// is already cancelled.
func (e *Engine) compensate(ctx context.Context, destID string, cause error) {
	if err := e.store.DeleteConversation(context.WithoutCancel(ctx), destID); err != nil {
		slog.Error("failed to delete partially copied branch",
			"conversation_id", destID,
			"cause", cause,
			"error", err,
		)
		return
	}
	slog.Warn("branch copy failed, destination deleted",
		"conversation_id", destID,
		"error", cause,
	)
}

// copyPrefix clones events into the destination with fresh ids and the
// source order keys.
func copyPrefix(events []api.DatabaseEvent, destID string) []api.DatabaseEvent {
	out := make([]api.DatabaseEvent, len(events))
	for i := range events {
		c := events[i].Event.Clone()
		c.ID = api.NewEventID()
		out[i] = api.DatabaseEvent{
			Event:          *c,
			ConversationID: destID,
			OrderKey:       events[i].OrderKey,
		}
	}
	return out
}

// unresolvedCalls returns the ids of calls in events that have no result
// in events.
func unresolvedCalls(events []api.DatabaseEvent) []string {
	log, err := api.NewEventLog()
	if err != nil {
		return nil
	}
	for i := range events {
		if err := log.Append(&events[i].Event); err != nil {
			debug.Log(debug.Branch, "copied prefix is not a valid log", "error", err)
		}
	}
	var ids []string
	for _, c := range log.UnresolvedToolCalls() {
		ids = append(ids, c.ID)
	}
	return ids
}

func notApplied(total int) *Result {
	return &Result{Outcome: api.NotApplied(total)}
}

func mapStoreError(err error, conversationID string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return api.NewNotFoundError(fmt.Sprintf("conversation %s not found", conversationID))
	case errors.Is(err, storage.ErrAlreadyExists):
		return api.NewConflictError(fmt.Sprintf("conversation %s already exists", conversationID))
	}
	return err
}
