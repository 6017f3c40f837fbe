// Package providertest holds round-trip checks shared by the provider
// mappers. Mapper tests call RoundTrip with a log the provider can carry.
package providertest

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/provider"
)

// ToolLog returns a log with a system prompt, a user turn, an assistant
// tool call, its result, and a final answer.
func ToolLog(t *testing.T) *api.EventLog {
	t.Helper()
	log, err := api.NewEventLog(
		api.NewEvent(api.RoleSystem, &api.Text{Text: "You are terse."}),
		api.NewEvent(api.RoleUser, &api.Text{Text: "Weather in Paris?"}),
		api.NewEvent(api.RoleAssistant,
			&api.Text{Text: "Checking."},
			&api.ToolCall{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": "Paris", "days": float64(2)}},
		),
		api.NewEvent(api.RoleTool, &api.ToolResult{ID: "call_1", Output: map[string]any{"temp": float64(21)}}),
		api.NewEvent(api.RoleAssistant, &api.Text{Text: "21 degrees."}),
	)
	if err != nil {
		t.Fatalf("building log: %v", err)
	}
	return log
}

// RoundTrip encodes log with m, decodes the payload, and fails unless the
// decoded events have the same roles and segment content. Event ids are
// not compared.
func RoundTrip(t *testing.T, m provider.Mapper, log *api.EventLog) *provider.Conversion {
	t.Helper()

	payload, err := m.Encode(log)
	if err != nil {
		t.Fatalf("%s Encode: %v", m.Name(), err)
	}
	conv, err := m.Decode(payload)
	if err != nil {
		t.Fatalf("%s Decode: %v", m.Name(), err)
	}
	if len(conv.Skipped) != 0 {
		t.Errorf("%s skipped %+v", m.Name(), conv.Skipped)
	}

	want := Shape(log.Events())
	got := Shape(conv.Events)
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("%s round trip mismatch\n got: %v\nwant: %v", m.Name(), got, want)
	}
	return conv
}

// Shape renders each event as "role: segment-json | segment-json" for comparison.
func Shape(events []*api.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		segs := make([]string, 0, len(e.Segments))
		for _, s := range e.Segments {
			data, err := api.MarshalSegment(s)
			if err != nil {
				data = []byte(err.Error())
			}
			segs = append(segs, string(data))
		}
		out = append(out, fmt.Sprintf("%s: %s", e.Role, strings.Join(segs, " | ")))
	}
	return out
}

// StringOutputResults checks the lossy points of mappers whose wire format
// carries tool output as a plain string with no error flag: a result that
// only has an error decodes as output text, and string output holding a
// JSON object decodes as structured output.
func StringOutputResults(t *testing.T, m provider.Mapper) {
	t.Helper()
	log, err := api.NewEventLog(
		api.NewEvent(api.RoleUser, &api.Text{Text: "go"}),
		api.NewEvent(api.RoleAssistant,
			&api.ToolCall{ID: "call_1", Name: "f", Args: map[string]any{}},
			&api.ToolCall{ID: "call_2", Name: "g", Args: map[string]any{}},
		),
		api.NewEvent(api.RoleTool,
			&api.ToolResult{ID: "call_1", Error: "boom"},
			&api.ToolResult{ID: "call_2", Output: `{"a":1}`},
		),
	)
	if err != nil {
		t.Fatalf("building log: %v", err)
	}
	payload, err := m.Encode(log)
	if err != nil {
		t.Fatalf("%s Encode: %v", m.Name(), err)
	}
	conv, err := m.Decode(payload)
	if err != nil {
		t.Fatalf("%s Decode: %v", m.Name(), err)
	}

	results := map[string]*api.ToolResult{}
	for _, e := range conv.Events {
		for _, seg := range e.Segments {
			if r, ok := seg.(*api.ToolResult); ok {
				results[r.ID] = r
			}
		}
	}
	if r := results["call_1"]; r == nil || r.Output != "boom" || r.Error != "" {
		t.Errorf("%s error-only result = %+v, want output %q and no error", m.Name(), r, "boom")
	}
	want := map[string]any{"a": float64(1)}
	if r := results["call_2"]; r == nil || !reflect.DeepEqual(r.Output, want) {
		t.Errorf("%s JSON string result = %+v, want output %v", m.Name(), r, want)
	}
}

// Fold feeds data values to a fresh folder of m and returns the result.
func Fold(t *testing.T, m provider.Mapper, values ...string) *provider.Conversion {
	t.Helper()
	f := m.NewStreamFolder()
	for i, v := range values {
		if err := f.Fold([]byte(v)); err != nil {
			t.Fatalf("Fold(%d): %v", i, err)
		}
	}
	conv, err := f.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return conv
}
