package logutil

import (
	"log/slog"
	"testing"
)

func TestParseSlogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "info", want: slog.LevelInfo},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: " warn ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseSlogLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseSlogLevel(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseSlogLevel(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseSlogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerFromConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := newLoggerFromConfig(loggerConfig{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := newLoggerFromConfig(loggerConfig{Format: "json", Level: "debug"}); err != nil {
		t.Fatalf("newLoggerFromConfig() error = %v", err)
	}
}
