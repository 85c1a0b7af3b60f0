package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEnsureRunIDIsStable(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("EnsureRunID returned empty id")
	}
	again, id2 := EnsureRunID(ctx)
	if id2 != id {
		t.Fatalf("second EnsureRunID = %q, want %q", id2, id)
	}
	if RunIDFromContext(again) != id {
		t.Fatalf("RunIDFromContext = %q, want %q", RunIDFromContext(again), id)
	}
	if RunIDFromContext(context.Background()) != "" {
		t.Fatalf("background context carries a run id")
	}
}

func TestWithRunLoggerAnnotatesRecords(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)

	ctx := ContextWithRunID(context.Background(), "abc123")
	ctx, log := WithRunLogger(ctx, base)
	log.Info(ctx, "grid built", Int("buses", 4), Bool("source_from_substation", true), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["run_id"] != "abc123" {
		t.Fatalf("run_id = %v, want abc123", rec["run_id"])
	}
	if rec["msg"] != "grid built" || rec["buses"] != float64(4) || rec["error"] != "boom" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn"}, &buf)
	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("unexpected output at warn level: %q", out)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on bare context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("nil logger was not replaced by Noop")
	}
}
