package realtime

import (
	"encoding/json"
	"sync"

	"staffsync-client/internal/logging"
)

// Handler receives the decoded payload of one frame. Handlers run
// synchronously on the channel's dispatch goroutine, in registration order.
type Handler func(payload json.RawMessage)

type subscriber struct {
	id int
	fn Handler
}

// Router fans inbound frames out to registered subscribers. A panicking
// subscriber is isolated: it never blocks delivery to the rest, nor
// corrupts the next frame.
type Router struct {
	logger *logging.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[Category][]subscriber
}

func NewRouter(logger *logging.Logger) *Router {
	if logger == nil {
		panic("realtime.NewRouter: logger must not be nil")
	}
	return &Router{
		logger: logger,
		subs:   map[Category][]subscriber{},
	}
}

// Subscribe registers a handler for one category and returns its
// unsubscribe func. Unsubscribing twice is a no-op.
func (r *Router) Subscribe(category Category, fn Handler) func() {
	if fn == nil {
		panic("realtime.Router.Subscribe: handler must not be nil")
	}
	if _, ok := knownCategory(string(category)); !ok {
		panic("realtime.Router.Subscribe: unknown category " + string(category))
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[category] = append(r.subs[category], subscriber{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.remove(category, id)
		})
	}
}

func (r *Router) remove(category Category, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.subs[category]
	for i, sub := range current {
		if sub.id == id {
			r.subs[category] = append(current[:i:i], current[i+1:]...)
			return
		}
	}
}

// Dispatch delivers one frame to every subscriber of its category, in
// registration order. Unknown categories are dropped with a diagnostic.
func (r *Router) Dispatch(frame Frame) {
	if _, ok := knownCategory(string(frame.Category)); !ok {
		r.logger.Warn("dropping frame with unknown category",
			logging.Field("category", string(frame.Category)),
			logging.Field("data", logging.FormatHTTPPayload(frame.Payload)),
		)
		return
	}

	r.mu.RLock()
	targets := append([]subscriber(nil), r.subs[frame.Category]...)
	r.mu.RUnlock()

	if len(targets) == 0 {
		r.logger.Debug("no subscribers for frame", logging.Field("category", string(frame.Category)))
		return
	}
	for _, target := range targets {
		r.invoke(frame, target)
	}
}

func (r *Router) invoke(frame Frame, target subscriber) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("subscriber panicked, isolating",
				logging.Field("category", string(frame.Category)),
				logging.Field("panic", recovered),
			)
		}
	}()
	target.fn(frame.Payload)
}
