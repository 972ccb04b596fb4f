package app

import (
	"fmt"
	"sync"

	"github.com/haukened/snap/internal/domain"
)

// EventKind names the external event a suspended call is waiting for.
type EventKind int

const (
	EventNone EventKind = iota
	EventPermissions
	EventSource
	EventCapture
	EventPick
)

func (k EventKind) String() string {
	switch k {
	case EventPermissions:
		return "permissions"
	case EventSource:
		return "source"
	case EventCapture:
		return "capture"
	case EventPick:
		return "pick"
	}
	return "none"
}

// Event is a host outcome that resumes a suspended call.
type Event struct {
	Kind      EventKind
	States    map[domain.PermissionAlias]domain.PermissionState // EventPermissions
	Source    domain.Source                                     // EventSource
	Cancelled bool                                              // EventSource, EventCapture
	URI       string                                            // EventPick; empty means no selection
}

// pendingCall is the suspended-call record of one in-flight bridge call.
type pendingCall struct {
	id       domain.ID
	awaiting EventKind // guarded by registry.mu
	events   chan Event
}

// registry maps call ids to suspended calls so several calls can be in
// flight at once; each result is matched to its call by id.
type registry struct {
	mu    sync.Mutex
	calls map[domain.ID]*pendingCall
}

func newRegistry() *registry {
	return &registry{calls: make(map[domain.ID]*pendingCall)}
}

func (r *registry) open() (*pendingCall, error) {
	id, err := domain.NewID()
	if err != nil {
		return nil, err
	}
	c := &pendingCall{id: id, events: make(chan Event, 1)}
	r.mu.Lock()
	r.calls[id] = c
	r.mu.Unlock()
	return c, nil
}

func (r *registry) close(id domain.ID) {
	r.mu.Lock()
	delete(r.calls, id)
	r.mu.Unlock()
}

// expect arms c for exactly one event of kind. It must be called before the
// host is asked to act, so a fast answer cannot be rejected.
func (r *registry) expect(c *pendingCall, kind EventKind) {
	r.mu.Lock()
	c.awaiting = kind
	r.mu.Unlock()
}

// deliver hands ev to the call it belongs to. Each expect admits one delivery.
func (r *registry) deliver(id domain.ID, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return domain.ErrUnknownCall
	}
	if c.awaiting == EventNone || c.awaiting != ev.Kind {
		return fmt.Errorf("%w: call awaits %s, got %s", domain.ErrUnexpectedEvent, c.awaiting, ev.Kind)
	}
	c.awaiting = EventNone
	c.events <- ev // buffered; at most one event is ever outstanding
	return nil
}

func (r *registry) awaiting(id domain.ID) (EventKind, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return EventNone, domain.ErrUnknownCall
	}
	return c.awaiting, nil
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
