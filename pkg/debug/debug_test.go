package debug

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "ordering", map[string]bool{"ordering": true}},
		{"multiple", "ordering,streaming", map[string]bool{"ordering": true, "streaming": true}},
		{"with spaces", " providers , branch ", map[string]bool{"providers": true, "branch": true}},
		{"uppercase normalized", "STORAGE,Tools", map[string]bool{"storage": true, "tools": true}},
		{"empty segments", "ordering,,branch", map[string]bool{"ordering": true, "branch": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %v, want %v", k, got[k], v)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("len(got) = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("ordering,branch")

	if !Enabled(Ordering) || !Enabled(Branch) {
		t.Error("ordering and branch should be enabled")
	}
	if Enabled(Streaming) {
		t.Error("streaming should not be enabled")
	}

	categories = parseCategories("all")
	if !Enabled(Tools) {
		t.Error("tools should be enabled via 'all'")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitJSONFormat(t *testing.T) {
	t.Setenv("CONVLOG_DEBUG", "")
	t.Setenv("CONVLOG_LOG_LEVEL", "")
	orig := slog.Default()
	origCats := categories
	defer func() {
		slog.SetDefault(orig)
		categories = origCats
	}()

	var buf bytes.Buffer
	Init(Options{Categories: "ordering", Level: "DEBUG", Format: "json", Output: &buf})
	Log(Ordering, "key conflict", "attempt", 2)
	Log(Streaming, "hidden")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not one JSON record: %q (%v)", buf.String(), err)
	}
	if rec["msg"] != "key conflict" || rec["debug"] != "ordering" || rec["attempt"] != float64(2) {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestInitEnvOverridesConfig(t *testing.T) {
	t.Setenv("CONVLOG_DEBUG", "streaming")
	t.Setenv("CONVLOG_LOG_LEVEL", "TRACE")
	orig := slog.Default()
	origCats := categories
	defer func() {
		slog.SetDefault(orig)
		categories = origCats
	}()

	var buf bytes.Buffer
	Init(Options{Categories: "ordering", Level: "ERROR", Output: &buf})

	if Enabled(Ordering) || !Enabled(Streaming) {
		t.Errorf("categories = %v, want env value", EnabledCategories())
	}
	Trace(Streaming, "raw line", "line", "data: {}")
	if !strings.Contains(buf.String(), "raw line") {
		t.Errorf("trace output missing: %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q, want %q", got, "short")
	}
	if got := Truncate("this is a long string", 10); got != "this is a ..." {
		t.Errorf("Truncate long = %q, want %q", got, "this is a ...")
	}
}
