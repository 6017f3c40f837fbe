package provider

import (
	"sort"
	"strings"

	"github.com/rhuss/convlog/pkg/api"
)

// ToolCallAssembler accumulates tool calls that arrive as streamed deltas.
// Calls are keyed by the provider's index, which is distinct from the call
// id; the id and name may arrive on any delta.
type ToolCallAssembler struct {
	calls map[int]*pendingCall
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// AssembledCall is a finalized call with the provider index it was built under.
type AssembledCall struct {
	Index int
	Call  *api.ToolCall
}

// NewToolCallAssembler creates an empty assembler.
func NewToolCallAssembler() *ToolCallAssembler {
	return &ToolCallAssembler{calls: make(map[int]*pendingCall)}
}

// Delta applies one incremental update. Non-empty id and name overwrite
// earlier values; args is appended to the raw argument string.
func (a *ToolCallAssembler) Delta(index int, id, name, args string) {
	c, ok := a.calls[index]
	if !ok {
		c = &pendingCall{}
		a.calls[index] = c
	}
	if id != "" {
		c.id = id
	}
	if name != "" {
		c.name = name
	}
	c.args.WriteString(args)
}

// SetArgs replaces the raw arguments of a call, for providers that repeat
// the complete argument string when the call is done.
func (a *ToolCallAssembler) SetArgs(index int, args string) {
	a.Delta(index, "", "", "")
	c := a.calls[index]
	c.args.Reset()
	c.args.WriteString(args)
}

// Len returns the number of calls under construction.
func (a *ToolCallAssembler) Len() int {
	return len(a.calls)
}

// Finalize parses every pending call in index order and resets the
// assembler. A call whose arguments do not parse, or that never received
// a name, is reported as skipped without affecting its siblings.
func (a *ToolCallAssembler) Finalize() ([]AssembledCall, []SkippedSegment) {
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var (
		out     []AssembledCall
		skipped []SkippedSegment
	)
	for _, i := range indexes {
		c := a.calls[i]
		if c.name == "" {
			skipped = append(skipped, SkippedSegment{ID: c.id, Reason: "tool call has no name"})
			continue
		}
		args, err := ParseArgs(c.args.String())
		if err != nil {
			skipped = append(skipped, SkippedSegment{ID: c.id, Name: c.name, Reason: err.Error()})
			continue
		}
		id := c.id
		if id == "" {
			id = NewID("call_")
		}
		out = append(out, AssembledCall{
			Index: i,
			Call:  &api.ToolCall{ID: id, Name: c.name, Args: args},
		})
	}
	a.calls = make(map[int]*pendingCall)
	return out, skipped
}
