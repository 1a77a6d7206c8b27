package event

import (
	"sync"
	"sync/atomic"
)

// Handler receives one published event.
type Handler func(Event)

// Subscription is a disposable registration of one handler on a Bus.
type Subscription struct {
	bus    *Bus
	name   string
	fn     Handler
	active atomic.Bool
}

// Name returns the event name the subscription listens for.
func (s *Subscription) Name() string { return s.name }

// Active reports whether the handler can still be invoked.
func (s *Subscription) Active() bool { return s.active.Load() }

// Dispose removes the handler. It takes effect immediately: a dispatch already
// in progress skips the handler from this point on. Safe to call repeatedly.
func (s *Subscription) Dispose() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.bus.remove(s)
}

// Bus delivers events to handlers subscribed by event name. Publish dispatches
// synchronously; Emit queues into a back buffer that becomes readable after the
// next SwapBuffers, which EventDispatchSystem calls once per tick.
type Bus struct {
	mu       sync.Mutex // protects handlers only
	handlers map[string][]*Subscription
	front    []Event
	back     []Event
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]*Subscription),
		front:    make([]Event, 0, 64),
		back:     make([]Event, 0, 64),
	}
}

// SubscribeName registers fn for every event whose Name() equals name.
func (b *Bus) SubscribeName(name string, fn Handler) *Subscription {
	s := &Subscription{bus: b, name: name, fn: fn}
	s.active.Store(true)
	b.mu.Lock()
	b.handlers[name] = append(b.handlers[name], s)
	b.mu.Unlock()
	return s
}

// Subscribe registers a typed handler. The event name is taken from T's zero
// value, so T must be a value type with a fixed Name (Custom is not).
func Subscribe[T Event](b *Bus, fn func(T)) *Subscription {
	var zero T
	return b.SubscribeName(zero.Name(), func(ev Event) {
		if typed, ok := ev.(T); ok {
			fn(typed)
		}
	})
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[s.name]
	for i, h := range list {
		if h == s {
			// Copy rather than shift in place: a dispatch may hold the old slice.
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, s.name)
			} else {
				b.handlers[s.name] = next
			}
			return
		}
	}
}

// HandlerCount returns the number of live handlers for name.
func (b *Bus) HandlerCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[name])
}

// Publish delivers ev to every live handler before returning and reports how
// many handlers ran.
func (b *Bus) Publish(ev Event) int {
	b.mu.Lock()
	list := b.handlers[ev.Name()]
	b.mu.Unlock()

	n := 0
	for _, s := range list {
		if !s.active.Load() {
			continue
		}
		s.fn(ev)
		n++
	}
	return n
}

// Emit queues an event into the back buffer (delivered after the next swap).
func (b *Bus) Emit(ev Event) {
	b.back = append(b.back, ev)
}

// SwapBuffers rotates back→front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// DispatchAll delivers all front-buffer events in emission order.
func (b *Bus) DispatchAll() int {
	n := 0
	for _, ev := range b.front {
		n += b.Publish(ev)
	}
	b.front = b.front[:0]
	return n
}
