package relation

import "fmt"

// Event names a point in a relationship's lifecycle where listeners run.
type Event string

const (
	// BeforeLink fires before a record joins the working set.
	BeforeLink Event = "before_link"
	// AfterLink fires after a record joined the working set.
	AfterLink Event = "after_link"
	// BeforeUnlink fires before a record leaves the working set.
	BeforeUnlink Event = "before_unlink"
	// AfterUnlink fires after a record left the working set.
	AfterUnlink Event = "after_unlink"

	// BeforeAdd fires before a link is written to storage.
	BeforeAdd Event = "before_add"
	// AfterAdd fires after a link was written to storage.
	AfterAdd Event = "after_add"
	// BeforeRemove fires before an unlink is written to storage.
	BeforeRemove Event = "before_remove"
	// AfterRemove fires after an unlink was written to storage.
	AfterRemove Event = "after_remove"
)

// Events lists every event in declaration order.
var Events = []Event{
	BeforeLink, AfterLink, BeforeUnlink, AfterUnlink,
	BeforeAdd, AfterAdd, BeforeRemove, AfterRemove,
}

// ParseEvent returns the event with the given name.
func ParseEvent(name string) (Event, error) {
	for _, e := range Events {
		if string(e) == name {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown relationship event %q", name)
}

// Listener binds a handler on an owner to one event.
type Listener[P any, R Entity] struct {
	Event   Event
	Owner   P
	Handler func(owner P, r R)
}

// dispatcher invokes listeners synchronously in registration order.
type dispatcher[P any, R Entity] struct {
	listeners map[Event][]Listener[P, R]
}

func newDispatcher[P any, R Entity](ls []Listener[P, R]) *dispatcher[P, R] {
	d := &dispatcher[P, R]{listeners: make(map[Event][]Listener[P, R])}
	for _, l := range ls {
		d.register(l)
	}
	return d
}

func (d *dispatcher[P, R]) register(l Listener[P, R]) {
	if l.Handler == nil {
		return
	}
	d.listeners[l.Event] = append(d.listeners[l.Event], l)
}

func (d *dispatcher[P, R]) notify(e Event, r R) {
	for _, l := range d.listeners[e] {
		l.Handler(l.Owner, r)
	}
}

func (d *dispatcher[P, R]) notifyAll(e Event, rs []R) {
	for _, r := range rs {
		d.notify(e, r)
	}
}
