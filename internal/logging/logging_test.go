package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatalf("no log output")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	return rec
}

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info(context.Background(), "entity frozen",
		EntityID("bus-7"),
		Int("frames", 3),
		Err(errors.New("boom")),
	)

	rec := decodeLine(t, &buf)
	if rec["msg"] != "entity frozen" {
		t.Fatalf("msg = %v, want entity frozen", rec["msg"])
	}
	if rec["entity_id"] != "bus-7" {
		t.Fatalf("entity_id = %v, want bus-7", rec["entity_id"])
	}
	if rec["frames"] != float64(3) {
		t.Fatalf("frames = %v, want 3", rec["frames"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("error = %v, want boom", rec["error"])
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("below-level records written: %q", buf.String())
	}
	log.Warn(context.Background(), "shown")
	if rec := decodeLine(t, &buf); rec["level"] != "WARN" {
		t.Fatalf("level = %v, want WARN", rec["level"])
	}
}

func TestLoggerAddsRequestIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "json", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	log.Info(ctx, "publish")

	if rec := decodeLine(t, &buf); rec["request_id"] != "req-1" {
		t.Fatalf("request_id = %v, want req-1", rec["request_id"])
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "json", Output: &buf}).With(String("component", "controller"))

	log.Info(context.Background(), "started")

	if rec := decodeLine(t, &buf); rec["component"] != "controller" {
		t.Fatalf("component = %v, want controller", rec["component"])
	}
}

func TestTextFormatIsDefault(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf}).Info(context.Background(), "hello", Bool("ok", true))
	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "ok=true") {
		t.Fatalf("text output = %q, want msg=hello and ok=true", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFromEnvOverridesFallback(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")

	var buf bytes.Buffer
	log := NewFromEnv(Config{Level: "debug", Format: "text", Output: &buf})
	log.Warn(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("warn written at error level: %q", buf.String())
	}
	log.Error(context.Background(), "shown")
	decodeLine(t, &buf)
}

func TestEnsureRequestID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatalf("EnsureRequestID returned empty id")
	}
	if got := RequestIDFromContext(ctx); got != id {
		t.Fatalf("RequestIDFromContext = %q, want %q", got, id)
	}

	again, id2 := EnsureRequestID(ctx)
	if id2 != id || RequestIDFromContext(again) != id {
		t.Fatalf("EnsureRequestID replaced existing id %q with %q", id, id2)
	}
}

func TestFromContext(t *testing.T) {
	if _, ok := FromContext(context.Background(), nil).(noopLogger); !ok {
		t.Fatalf("FromContext with nil fallback did not return Noop")
	}

	fallback := New(Config{Output: &bytes.Buffer{}})
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatalf("FromContext did not return fallback")
	}

	stored := New(Config{Output: &bytes.Buffer{}})
	ctx := ContextWithLogger(context.Background(), stored)
	if got := FromContext(ctx, fallback); got != stored {
		t.Fatalf("FromContext did not return stored logger")
	}
}

func TestNoopIgnoresEverything(t *testing.T) {
	log := Noop().With(String("k", "v"))
	log.Debug(context.Background(), "x")
	log.Info(context.Background(), "x")
	log.Warn(context.Background(), "x")
	log.Error(context.Background(), "x")
}
