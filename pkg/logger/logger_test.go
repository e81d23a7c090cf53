package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{" info ", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	for lvl, want := range map[Level]string{
		DebugLevel: "debug",
		InfoLevel:  "info",
		WarnLevel:  "warn",
		ErrorLevel: "error",
		Level(-1):  "unknown",
		Level(42):  "unknown",
	} {
		if got := lvl.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", int(lvl), got, want)
		}
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew_JSONRecord(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: InfoLevel, Format: "json", Writer: buf})

	log.Debug("hidden")
	log.Info("project created", "project_id", 7)

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("got %d records, want 1", len(lines))
	}
	if lines[0]["message"] != "project created" {
		t.Errorf("message = %v, want %q", lines[0]["message"], "project created")
	}
	if lines[0]["project_id"] != float64(7) {
		t.Errorf("project_id = %v, want 7", lines[0]["project_id"])
	}
}

func TestNew_RedactsSecrets(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: DebugLevel, Writer: buf})

	log.Info("login", "email", "ada@example.com", "password", "hunter2", "Authorization", "Bearer abc")

	rec := decodeLines(t, buf)[0]
	if rec["password"] != redactedValue {
		t.Errorf("password = %v, want %q", rec["password"], redactedValue)
	}
	if rec["Authorization"] != redactedValue {
		t.Errorf("Authorization = %v, want %q", rec["Authorization"], redactedValue)
	}
	if rec["email"] != "ada@example.com" {
		t.Errorf("email = %v, want unchanged", rec["email"])
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Error("output contains the raw password")
	}
}

func TestNew_TextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	New(&Config{Level: InfoLevel, Format: "text", Writer: buf}).Warn("slow query", "ms", 120)

	out := buf.String()
	if !strings.Contains(out, "message=\"slow query\"") || !strings.Contains(out, "ms=120") {
		t.Errorf("text output = %q", out)
	}
}

func TestWith_SharesLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	root := New(&Config{Level: InfoLevel, Writer: buf})
	child := Component(root, "memory")

	child.SetLevel(DebugLevel)
	if got := root.GetLevel(); got != DebugLevel {
		t.Errorf("root GetLevel() = %v, want %v", got, DebugLevel)
	}

	child.Debug("scanned", "n", 3)
	rec := decodeLines(t, buf)[0]
	if rec["component"] != "memory" {
		t.Errorf("component = %v, want memory", rec["component"])
	}
}

func TestSetGetLevel(t *testing.T) {
	log := New(&Config{Writer: &bytes.Buffer{}})
	if got := log.GetLevel(); got != InfoLevel {
		t.Errorf("zero Config GetLevel() = %v, want %v", got, InfoLevel)
	}
	for _, lvl := range []Level{DebugLevel, WarnLevel, ErrorLevel, InfoLevel} {
		log.SetLevel(lvl)
		if got := log.GetLevel(); got != lvl {
			t.Errorf("after SetLevel(%v) GetLevel() = %v", lvl, got)
		}
	}
}

func TestContextVariants_AddTraceIDs(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: DebugLevel, Writer: buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	log.InfoContext(ctx, "with span")
	log.InfoContext(context.Background(), "without span")

	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("got %d records, want 2", len(lines))
	}
	if lines[0]["trace_id"] != traceID.String() || lines[0]["span_id"] != spanID.String() {
		t.Errorf("trace fields = %v/%v", lines[0]["trace_id"], lines[0]["span_id"])
	}
	if _, ok := lines[1]["trace_id"]; ok {
		t.Error("record without span has trace_id")
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ved.log")
	log := New(&Config{Level: InfoLevel, Output: path})
	log.Info("to file")
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("file content = %q", data)
	}
}

func TestNew_UnwritableFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "ved.log")
	log := New(&Config{Level: ErrorLevel, Output: path})
	if log == nil {
		t.Fatal("New() = nil")
	}
	if err := log.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	log := New(nil)
	if got := log.GetLevel(); got != InfoLevel {
		t.Errorf("GetLevel() = %v, want %v", got, InfoLevel)
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("discarded")
	log.With("k", "v").ErrorContext(context.Background(), "discarded")
	if err := log.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestGlobal(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	buf := &bytes.Buffer{}
	SetGlobal(New(&Config{Level: InfoLevel, Writer: buf}))
	SetGlobal(nil)

	Component(nil, "cache").Info("from global")
	rec := decodeLines(t, buf)[0]
	if rec["component"] != "cache" {
		t.Errorf("component = %v, want cache", rec["component"])
	}
}
