package realtime

import "sync"

// Delivery is what subscriber callbacks receive: the admitted event plus its
// insertion position in the stream's chronological timeline. A position lower
// than the timeline's previous length means a late arrival that belongs
// before already-delivered events.
type Delivery struct {
	Event Event
	Index int
}

// Handler consumes admitted deliveries for one stream key.
type Handler func(Delivery)

type registration struct {
	fn      Handler
	removed bool
}

// Registry maps stream keys to local delivery callbacks. Multiple callbacks
// may share a key; registration never requires an active connection.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]*registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]*registration)}
}

// Subscribe registers a callback under a stream key and returns a cancel
// function that removes exactly that registration. Calling cancel more than
// once is a no-op.
func (r *Registry) Subscribe(key string, fn Handler) func() {
	reg := &registration{fn: fn}
	r.mu.Lock()
	r.handlers[key] = append(r.handlers[key], reg)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if reg.removed {
			return
		}
		reg.removed = true
		regs := r.handlers[key]
		for i, candidate := range regs {
			if candidate == reg {
				r.handlers[key] = append(regs[:i], regs[i+1:]...)
				break
			}
		}
		if len(r.handlers[key]) == 0 {
			delete(r.handlers, key)
		}
	}
}

// Dispatch invokes every callback registered under the key. The handler set
// is snapshotted first so callbacks may subscribe or unsubscribe freely.
func (r *Registry) Dispatch(key string, d Delivery) {
	r.mu.RLock()
	snapshot := make([]Handler, 0, len(r.handlers[key]))
	for _, reg := range r.handlers[key] {
		snapshot = append(snapshot, reg.fn)
	}
	r.mu.RUnlock()

	for _, fn := range snapshot {
		fn(d)
	}
}

// HasSubscribers reports whether any callback is registered under the key.
func (r *Registry) HasSubscribers(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[key]) > 0
}
