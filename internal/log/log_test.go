package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"loud", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTee(t *testing.T) {
	var a, b bytes.Buffer
	h := tee{
		level: slog.LevelInfo,
		handlers: []slog.Handler{
			slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
			slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
		},
	}
	l := slog.New(h).With("component", "guide")

	l.Debug("hidden")
	l.Info("frame dropped")
	l.Warn("ocr failed")

	if strings.Contains(a.String(), "hidden") {
		t.Error("records below the tee level must be dropped")
	}
	if !strings.Contains(a.String(), "frame dropped") || !strings.Contains(a.String(), "component=guide") {
		t.Errorf("first handler output = %q", a.String())
	}
	if strings.Contains(b.String(), "frame dropped") || !strings.Contains(b.String(), "ocr failed") {
		t.Errorf("second handler output = %q", b.String())
	}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled")
	}
}

func TestL_DefaultsToInfo(t *testing.T) {
	if L() == nil {
		t.Fatal("L() returned nil")
	}
	if L().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("default logger should not log debug")
	}
}
