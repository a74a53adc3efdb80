package logging

import (
	"bytes"
	"encoding/json"
	"strings"
)

const maxRenderedPayload = 2048

// FormatHTTPPayload renders an HTTP or websocket payload for log output.
// JSON is re-encoded with indentation; oversized bodies are clamped so a
// large frame cannot flood the log.
func FormatHTTPPayload(raw []byte) string {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return "<empty>"
	}
	if decoded, ok := reencodeJSON(body); ok {
		body = decoded
	}
	return clampPayload(body)
}

func reencodeJSON(body string) (string, bool) {
	// Double-encoded bodies ("\"{...}\"") unwrap one level first.
	var unwrapped string
	if err := json.Unmarshal([]byte(body), &unwrapped); err == nil {
		body = strings.TrimSpace(unwrapped)
	}

	var value any
	if err := json.Unmarshal([]byte(body), &value); err != nil {
		return "", false
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return "", false
	}
	return strings.TrimSpace(buf.String()), true
}

func clampPayload(body string) string {
	if len(body) <= maxRenderedPayload {
		return body
	}
	clamped := body[:maxRenderedPayload]
	// Do not cut a rune in half.
	for len(clamped) > 0 && clamped[len(clamped)-1]&0xC0 == 0x80 {
		clamped = clamped[:len(clamped)-1]
	}
	return clamped + "...(truncated)"
}
