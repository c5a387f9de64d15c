package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_HandlerFromEnv(t *testing.T) {
	t.Setenv("ARKB_LOG_FORMAT", "text")
	if _, ok := New().Handler().(*slog.TextHandler); !ok {
		t.Error("ARKB_LOG_FORMAT=text should select the text handler")
	}

	t.Setenv("ARKB_LOG_FORMAT", "")
	if _, ok := New().Handler().(*slog.JSONHandler); !ok {
		t.Error("default format should select the JSON handler")
	}
}

func TestFromContext_Fallback(t *testing.T) {
	t.Parallel()
	if got := FromContext(context.Background()); got == nil {
		t.Fatal("expected default logger, got nil")
	}
}

func TestWithLogger_RoundTrip(t *testing.T) {
	t.Parallel()
	logger := slog.Default().With("component", "test")
	ctx := WithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Error("expected the stored logger back from context")
	}
}
