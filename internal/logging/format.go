package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

func FormatEventLine(event Event) string {
	ts := event.Time.Format("15:04:05")
	level := strings.ToUpper(event.Level.String())
	fields := ""
	if len(event.Fields) > 0 {
		keys := orderedFieldKeys(event.Fields)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, formatFieldValue(event.Fields[key])))
		}
		fields = " " + strings.Join(parts, " ")
	}
	return fmt.Sprintf("%s [%s] %s%s\n", ts, level, event.Message, fields)
}

func formatFieldValue(value any) string {
	if value == nil {
		return "<nil>"
	}
	switch v := value.(type) {
	case error:
		return v.Error()
	case string:
		return maybeDecodeJSONString(v)
	case []byte:
		return maybeDecodeJSONString(string(v))
	default:
		switch reflect.ValueOf(value).Kind() {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
			if payload, err := marshalPrettyJSON(value); err == nil {
				return payload
			}
		}
		return fmt.Sprintf("%v", value)
	}
}

func maybeDecodeJSONString(input string) string {
	trimmed := strings.TrimSpace(input)
	// Decode JSON-shaped strings only; leave normal text untouched.
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return FormatHTTPPayload([]byte(trimmed))
	}
	return input
}

func marshalPrettyJSON(value any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// orderedFieldKeys sorts keys alphabetically, then moves payload-like keys
// to the end so multi-line JSON bodies do not split the inline fields.
func orderedFieldKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	inline := make([]string, 0, len(keys))
	payload := make([]string, 0, len(keys))
	for _, key := range keys {
		if isPayloadFieldKey(key) {
			payload = append(payload, key)
			continue
		}
		inline = append(inline, key)
	}
	return append(inline, payload...)
}

func isPayloadFieldKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "payload", "response", "response_body", "body", "data", "frame":
		return true
	default:
		return false
	}
}
