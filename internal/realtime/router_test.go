package realtime

import (
	"encoding/json"
	"testing"

	"staffsync-client/internal/logging"
)

func TestRouter_DispatchInRegistrationOrder(t *testing.T) {
	router := NewRouter(logging.New(false))
	var order []string
	router.Subscribe(CategoryNotification, func(json.RawMessage) { order = append(order, "first") })
	router.Subscribe(CategoryNotification, func(json.RawMessage) { order = append(order, "second") })
	router.Subscribe(CategoryLeaveUpdate, func(json.RawMessage) { order = append(order, "other-category") })

	router.Dispatch(Frame{Category: CategoryNotification, Payload: json.RawMessage(`{"id":1}`)})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("dispatch order = %v", order)
	}
}

func TestRouter_SubscriberPayload(t *testing.T) {
	router := NewRouter(logging.New(false))
	var got json.RawMessage
	router.Subscribe(CategoryPayrollUpdate, func(payload json.RawMessage) { got = payload })

	router.Dispatch(Frame{Category: CategoryPayrollUpdate, Payload: json.RawMessage(`{"period":"2026-08"}`)})
	if string(got) != `{"period":"2026-08"}` {
		t.Fatalf("payload = %s", got)
	}
}

func TestRouter_PanickingSubscriberIsIsolated(t *testing.T) {
	router := NewRouter(logging.New(false))
	var delivered int
	router.Subscribe(CategoryNotification, func(json.RawMessage) { panic("subscriber bug") })
	router.Subscribe(CategoryNotification, func(json.RawMessage) { delivered++ })

	frame := Frame{Category: CategoryNotification, Payload: json.RawMessage(`{}`)}
	router.Dispatch(frame)
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1 despite earlier panic", delivered)
	}

	// The next frame is unaffected.
	router.Dispatch(frame)
	if delivered != 2 {
		t.Fatalf("delivered = %d after second frame, want 2", delivered)
	}
}

func TestRouter_UnsubscribeIsIdempotent(t *testing.T) {
	router := NewRouter(logging.New(false))
	var first, second int
	unsubscribe := router.Subscribe(CategoryShiftUpdate, func(json.RawMessage) { first++ })
	router.Subscribe(CategoryShiftUpdate, func(json.RawMessage) { second++ })

	unsubscribe()
	unsubscribe() // no-op, must not remove the remaining subscriber

	router.Dispatch(Frame{Category: CategoryShiftUpdate, Payload: json.RawMessage(`{}`)})
	if first != 0 {
		t.Fatalf("unsubscribed handler called %d times", first)
	}
	if second != 1 {
		t.Fatalf("remaining handler called %d times, want 1", second)
	}
}

func TestRouter_UnknownCategoryDropped(t *testing.T) {
	router := NewRouter(logging.New(false))
	var called bool
	router.Subscribe(CategoryNotification, func(json.RawMessage) { called = true })

	router.Dispatch(Frame{Category: Category("mystery_event"), Payload: json.RawMessage(`{}`)})
	if called {
		t.Fatalf("unknown category must not reach subscribers")
	}
}

func TestRouter_SubscribeUnknownCategoryPanics(t *testing.T) {
	router := NewRouter(logging.New(false))
	defer func() {
		if recover() == nil {
			t.Fatalf("Subscribe() with unknown category should panic")
		}
	}()
	router.Subscribe(Category("mystery_event"), func(json.RawMessage) {})
}
