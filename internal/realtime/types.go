package realtime

import (
	"encoding/json"
	"fmt"
)

// Category is one of the closed set of subscriber-visible event types
// pushed over the realtime channel.
type Category string

const (
	CategoryNotification     Category = "notification"
	CategoryAttendanceUpdate Category = "attendance_update"
	CategoryLeaveUpdate      Category = "leave_update"
	CategoryShiftUpdate      Category = "shift_update"
	CategoryPayrollUpdate    Category = "payroll_update"
	CategorySystemMessage    Category = "system_message"
	CategoryUnreadCount      Category = "unread_count"
)

// Channel-internal frame types, never routed to subscribers.
const (
	frameTypePing        = "ping"
	frameTypePong        = "pong"
	frameTypeConnected   = "connection_established"
	frameTypeMarkRead    = "mark_read"
	frameTypeUnreadCount = "get_unread_count"
)

func KnownCategories() []Category {
	return []Category{
		CategoryNotification,
		CategoryAttendanceUpdate,
		CategoryLeaveUpdate,
		CategoryShiftUpdate,
		CategoryPayrollUpdate,
		CategorySystemMessage,
		CategoryUnreadCount,
	}
}

func knownCategory(name string) (Category, bool) {
	for _, category := range KnownCategories() {
		if string(category) == name {
			return category, true
		}
	}
	return "", false
}

// Frame is one decoded unit of inbound channel traffic.
type Frame struct {
	Category Category
	Payload  json.RawMessage
}

type frameEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeEnvelope(raw []byte) (frameEnvelope, error) {
	var envelope frameEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return frameEnvelope{}, &ProtocolError{Reason: fmt.Sprintf("malformed frame: %v", err), Raw: raw}
	}
	if envelope.Type == "" {
		return frameEnvelope{}, &ProtocolError{Reason: "frame missing type", Raw: raw}
	}
	return envelope, nil
}

type pingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type markReadFrame struct {
	Type           string `json:"type"`
	NotificationID int64  `json:"notification_id"`
}

type typeOnlyFrame struct {
	Type string `json:"type"`
}

type connectedPayload struct {
	Message  string `json:"message"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}
