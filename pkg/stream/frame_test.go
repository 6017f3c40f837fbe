package stream

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeFrame_ErrorForms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want FrameError
	}{
		{"typed", `{"type":"error","data":{"error":{"code":"rate_limited","message":"slow down"}}}`, FrameError{"rate_limited", "slow down"}},
		{"bare", `{"error":{"code":"overloaded","message":"try later"}}`, FrameError{"overloaded", "try later"}},
		{"no details", `{"type":"error"}`, FrameError{"unknown", "error frame without details"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if f.Type != FrameTypeError {
				t.Errorf("Type = %q, want %q", f.Type, FrameTypeError)
			}
			if !f.Type.Terminal() {
				t.Error("error frame is not terminal")
			}
			if got := f.StreamError(); *got != tt.want {
				t.Errorf("StreamError() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestErrorFrame_CarriesFrameError(t *testing.T) {
	f := ErrorFrame("server_error", "boom")
	var err error = f.StreamError()
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("StreamError() is not a *FrameError: %T", err)
	}
	if got, want := fe.Error(), "stream error server_error: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestFrameType_Terminal(t *testing.T) {
	tests := []struct {
		typ  FrameType
		want bool
	}{
		{FrameEventStart, false},
		{FrameSegment, false},
		{FrameEventComplete, false},
		{FrameComplete, true},
		{FrameDone, true},
		{FrameTypeError, true},
	}
	for _, tt := range tests {
		if got := tt.typ.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
