package intercept

import (
	"sync"

	"github.com/haukened/surfguard/internal/guard/domain"
)

// Dispatcher is an in-process HostHook: transports hand it in-flight
// requests and it routes them to whichever listeners are registered. With
// no listener covering a request's type the host default applies:
// everything is allowed.
type Dispatcher struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]registration
}

type registration struct {
	types   map[domain.ResourceType]struct{}
	handler Handler
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[uint64]registration)}
}

// Register implements HostHook.
func (d *Dispatcher) Register(types []domain.ResourceType, h Handler) (func(), error) {
	set := make(map[domain.ResourceType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}

	d.mu.Lock()
	id := d.next
	d.next++
	d.listeners[id] = registration{types: set, handler: h}
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}, nil
}

// Handle routes a request to the first listener registered for its type.
func (d *Dispatcher) Handle(req domain.Request) Response {
	d.mu.RLock()
	var h Handler
	for _, reg := range d.listeners {
		if _, ok := reg.types[req.Type]; ok {
			h = reg.handler
			break
		}
	}
	d.mu.RUnlock()

	if h == nil {
		return Response{Action: ActionAllow}
	}
	return h(req)
}

// Enabled reports whether any listener is registered.
func (d *Dispatcher) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners) > 0
}
