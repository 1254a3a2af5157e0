package realtime

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
)

// Event is one inbound delivery. Rooms lists the joined rooms the event was
// published to; it is empty for transport events. Err is set on
// connect_error and on disconnect.
type Event struct {
	Name  string
	Rooms []string
	Data  json.RawMessage
	Err   error
}

type Handler func(Event)

// Subscriber registers handlers. The router, a room membership and a
// scope all implement it.
type Subscriber interface {
	On(name string, h Handler) *Subscription
}

type entry struct {
	id      uint64
	room    string
	handler Handler
	active  atomic.Bool
}

// Subscription identifies one registered handler.
type Subscription struct {
	router *Router
	name   string
	id     uint64
}

// Unsubscribe removes the handler. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.router == nil {
		return
	}
	s.router.Off(s)
}

// Router demultiplexes inbound events by name.
type Router struct {
	log *logger.Logger

	mu       sync.Mutex
	handlers map[string][]*entry
	nextID   uint64
}

func NewRouter(lg *logger.Logger) *Router {
	if lg == nil {
		lg = logger.Nop()
	}
	return &Router{log: lg, handlers: make(map[string][]*entry)}
}

// On registers h for every event called name.
func (r *Router) On(name string, h Handler) *Subscription {
	return r.on(name, "", h)
}

func (r *Router) on(name, room string, h Handler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e := &entry{id: r.nextID, room: room, handler: h}
	e.active.Store(true)
	r.handlers[name] = append(r.handlers[name], e)
	return &Subscription{router: r, name: name, id: e.id}
}

// Off removes the handler behind s.
func (r *Router) Off(s *Subscription) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[s.name]
	for i, e := range list {
		if e.id == s.id {
			e.active.Store(false)
			r.handlers[s.name] = slices.Delete(slices.Clone(list), i, i+1)
			return
		}
	}
}

// HandlerCount reports how many handlers are registered for name.
func (r *Router) HandlerCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[name])
}

// Clear drops every handler.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range r.handlers {
		for _, e := range list {
			e.active.Store(false)
		}
	}
	r.handlers = make(map[string][]*entry)
}

// Dispatch calls every handler registered for ev.Name, oldest first.
// Room-scoped handlers only see events published to their room. A handler
// removed while an earlier handler runs is skipped.
func (r *Router) Dispatch(ev Event) {
	r.mu.Lock()
	list := r.handlers[ev.Name]
	r.mu.Unlock()

	for _, e := range list {
		if !e.active.Load() {
			continue
		}
		if e.room != "" && !slices.Contains(ev.Rooms, e.room) {
			continue
		}
		r.invoke(e, ev)
	}
}

func (r *Router) invoke(e *entry, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("event_handler_panicked", fmt.Errorf("%v", p), map[string]any{"event": ev.Name})
		}
	}()
	e.handler(ev)
}

type payload interface{ Validate() error }

// Decoded adapts a typed callback into a Handler. Payloads that fail to
// decode or validate are dropped with a warning.
func Decoded[T payload](lg *logger.Logger, fn func(T)) Handler {
	if lg == nil {
		lg = logger.Nop()
	}
	return func(ev Event) {
		v, err := domain.Decode[T](ev.Data)
		if err != nil {
			lg.Warn("malformed_event_dropped", err, map[string]any{"event": ev.Name})
			return
		}
		fn(v)
	}
}
