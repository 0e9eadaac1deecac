package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("indexing started", "library", "/facebook/react")

	out := buf.String()
	if !strings.Contains(out, "indexing started") {
		t.Errorf("log output missing message, got %q", out)
	}
	if !strings.Contains(out, "library=/facebook/react") {
		t.Errorf("log output missing attribute, got %q", out)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("hello")

	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Errorf("JSON handler output should start with '{', got %q", out)
	}
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("JSON output missing msg field, got %q", out)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("too quiet")
	logger.Info("still too quiet")
	logger.Warn("audible")

	out := buf.String()
	if strings.Contains(out, "too quiet") {
		t.Errorf("below-level records should be dropped, got %q", out)
	}
	if !strings.Contains(out, "audible") {
		t.Errorf("warn record should be emitted, got %q", out)
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept every level.
	logger.Debug("a")
	logger.Info("b")
	logger.Warn("c")
	logger.Error("d")
}
