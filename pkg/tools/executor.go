package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/debug"
	"github.com/rhuss/convlog/pkg/observability"
)

// Endpoint is a callable tool as offered to a model.
type Endpoint struct {
	// Name is the function name the model uses in tool calls.
	Name string `json:"name"`

	// Description tells the model what the tool does.
	Description string `json:"description,omitempty"`

	// InputSchema is the JSON Schema of the arguments object.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// Server names the backend that provides the tool, if any.
	Server string `json:"server,omitempty"`
}

// Schema returns the input schema, defaulting to an open object schema.
func (e Endpoint) Schema() json.RawMessage {
	if len(e.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return e.InputSchema
}

// Executor runs tool calls.
type Executor interface {
	// CanExecute checks if this executor can handle the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool. Tool-level failures are reported through
	// ToolResult.Error; a returned error means the executor itself failed.
	Execute(ctx context.Context, call *api.ToolCall) (*api.ToolResult, error)
}

// ExecuteAll runs calls on the first executor that accepts each tool name,
// at most limit at a time (no limit when limit <= 0). Results come back in
// call order, one per call. Calls no executor accepts, and calls whose
// executor fails, get an error result instead of aborting the batch.
// started and completed timestamps are recorded on each call.
func ExecuteAll(ctx context.Context, executors []Executor, calls []*api.ToolCall, limit int) []*api.ToolResult {
	results := make([]*api.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = execute(gctx, executors, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func execute(ctx context.Context, executors []Executor, call *api.ToolCall) *api.ToolResult {
	var exec Executor
	for _, e := range executors {
		if e.CanExecute(call.Name) {
			exec = e
			break
		}
	}
	if exec == nil {
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "unavailable").Inc()
		return &api.ToolResult{ID: call.ID, Error: fmt.Sprintf("no executor provides tool %q", call.Name)}
	}

	started := time.Now().UTC()
	res, err := exec.Execute(ctx, call)
	completed := time.Now().UTC()
	call.StartedAt, call.CompletedAt = &started, &completed

	debug.Log(debug.Tools, "tool executed",
		"call_id", call.ID,
		"tool", call.Name,
		"duration", completed.Sub(started),
	)

	switch {
	case err != nil:
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
		return &api.ToolResult{ID: call.ID, Error: err.Error()}
	case res == nil:
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
		return &api.ToolResult{ID: call.ID, Error: "executor returned no result"}
	case res.Error != "":
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "error").Inc()
	default:
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, "success").Inc()
	}
	res.ID = call.ID
	return res
}
