package logging

import (
	"context"
	"testing"
)

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		if logger := New(level, "text"); logger == nil {
			t.Errorf("New(%q) returned nil", level)
		}
	}
}

func TestNew_Formats(t *testing.T) {
	if New("info", "json") == nil {
		t.Error("expected json logger")
	}
	if New("info", "text") == nil {
		t.Error("expected text logger")
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" {
		t.Error("expected empty request ID for fresh context")
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
}

func TestUserID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if UserID(ctx) != 0 {
		t.Error("expected zero user ID for fresh context")
	}

	ctx = WithUserID(ctx, 42)
	if got := UserID(ctx); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestL_FallsBackToDefault(t *testing.T) {
	if L(context.Background()) == nil {
		t.Error("expected non-nil logger")
	}
}

func TestFromContext_RoundTrip(t *testing.T) {
	logger := New("info", "text")
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
}
