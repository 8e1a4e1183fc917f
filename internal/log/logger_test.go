package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Output: &buf}).WithComponent(ComponentIngest)
	logger.Info("parsed", FieldCount, 3)

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=ingest") {
		t.Fatalf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "count=3") {
		t.Fatalf("missing field: %s", out)
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	ctx := NewContext(context.Background(), New(Config{Output: &buf}))
	LogError(ctx, "write failed", errors.New("boom"), ErrorTypeDatabase, ComponentStorage, OpCreate, NewFields().WithUser("maria"))

	out := buf.String()
	for _, want := range []string{"level=ERROR", "error=boom", "error_type=database_error", "component=storage", "operation=create", "user_id=maria"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected default logger")
	}
}
