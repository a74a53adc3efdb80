package logging

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestFormatEventLine_InlineFieldsAndPayloadLast(t *testing.T) {
	event := Event{
		Time:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Level:   slog.LevelWarn,
		Message: "request failed",
		Fields: map[string]any{
			"status":   "500",
			"response": `{"message":"failed"}`,
			"error":    errors.New("submit failed"),
		},
	}
	line := FormatEventLine(event)
	if !strings.HasPrefix(line, "09:30:00 [WARN] request failed") {
		t.Fatalf("line = %q", line)
	}
	if !strings.Contains(line, "error=submit failed") {
		t.Fatalf("expected error field inline, got %q", line)
	}
	respIdx := strings.Index(line, "response=")
	statusIdx := strings.Index(line, "status=")
	if respIdx < statusIdx {
		t.Fatalf("expected payload-like field last, got %q", line)
	}
}

func TestOrderedFieldKeys_PayloadKeysLast(t *testing.T) {
	keys := orderedFieldKeys(map[string]any{
		"payload": `{"a":1}`,
		"status":  "500",
		"error":   "boom",
	})
	if len(keys) != 3 {
		t.Fatalf("len(keys) = %d, want 3", len(keys))
	}
	if keys[len(keys)-1] != "payload" {
		t.Fatalf("expected payload last, got %v", keys)
	}
}

func TestFormatHTTPPayload_PrettyPrintsJSON(t *testing.T) {
	got := FormatHTTPPayload([]byte(`{"message":"failed","status":500}`))
	if !strings.Contains(got, "\n") || !strings.Contains(got, `"message": "failed"`) {
		t.Fatalf("FormatHTTPPayload() = %q", got)
	}
	if got := FormatHTTPPayload(nil); got != "<empty>" {
		t.Fatalf("FormatHTTPPayload(nil) = %q, want <empty>", got)
	}
	if got := FormatHTTPPayload([]byte("plain text")); got != "plain text" {
		t.Fatalf("FormatHTTPPayload(plain) = %q", got)
	}
}

func TestFormatHTTPPayload_ClampsOversizedBodies(t *testing.T) {
	got := FormatHTTPPayload([]byte(strings.Repeat("x", 5000)))
	if !strings.HasSuffix(got, "...(truncated)") {
		t.Fatalf("oversized payload not clamped, len = %d", len(got))
	}
	if len(got) > 2048+len("...(truncated)") {
		t.Fatalf("clamped payload too long: %d", len(got))
	}
}

func TestLoggerSubscribe_ReceivesEventsAndUnsubscribes(t *testing.T) {
	logger := New(false)
	var got []Event
	unsubscribe := logger.Subscribe(func(event Event) { got = append(got, event) })

	logger.Info("hello", Field("k", "v"))
	logger.Debug("hidden") // debug disabled, not emitted

	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if got[0].Message != "hello" || got[0].Fields["k"] != "v" {
		t.Fatalf("event = %#v", got[0])
	}

	unsubscribe()
	unsubscribe() // idempotent
	logger.Warn("after")
	if len(got) != 1 {
		t.Fatalf("events after unsubscribe = %d, want 1", len(got))
	}
}
