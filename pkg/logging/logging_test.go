package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := Component(NewWithWriter(&buf, "debug"), "layout")
	l.Info().Int("nodes", 5).Msg("started")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["component"] != "layout" {
		t.Errorf("component = %v, want layout", line["component"])
	}
	if line["nodes"] != float64(5) {
		t.Errorf("nodes = %v, want 5", line["nodes"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")
	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %s", buf.String())
	}
	l.Warn().Msg("shown")
	if buf.Len() == 0 {
		t.Error("expected warn line to be written")
	}
}
