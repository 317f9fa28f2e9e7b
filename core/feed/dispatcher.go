package feed

import (
	"sync"
)

// Dispatcher consumes the change stream of a feed, keeps its last messages in memory
// and notifies its listeners of every change.
type Dispatcher struct {
	limit int

	mu        sync.RWMutex
	msgs      []Message
	ready     bool
	listeners map[int]chan []Message
	nextID    int

	done chan struct{}
}

func newDispatcher(limit int) *Dispatcher {
	return &Dispatcher{
		limit:     limit,
		msgs:      []Message{},
		listeners: make(map[int]chan []Message),
		done:      make(chan struct{}),
	}
}

func (d *Dispatcher) run(changes <-chan Change) {
	defer d.stop()
	for ch := range changes {
		d.apply(ch)
	}
}

func (d *Dispatcher) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, l := range d.listeners {
		close(l)
		delete(d.listeners, id)
	}
	close(d.done)
}

func (d *Dispatcher) apply(ch Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ch.Type {
	case ChangeSnapshot:
		d.msgs = append([]Message{}, ch.Messages...)
		d.ready = true
	case ChangeAdded:
		for _, m := range ch.Messages {
			if i := d.index(m.ID); i >= 0 {
				d.msgs[i] = m
				continue
			}
			d.msgs = append(d.msgs, m)
		}
	case ChangeChanged:
		for _, m := range ch.Messages {
			if i := d.index(m.ID); i >= 0 {
				d.msgs[i] = m
			}
		}
	case ChangeRemoved:
		for _, m := range ch.Messages {
			if i := d.index(m.ID); i >= 0 {
				d.msgs = append(d.msgs[:i], d.msgs[i+1:]...)
			}
		}
	default:
		return
	}
	if len(d.msgs) > d.limit {
		d.msgs = d.msgs[len(d.msgs)-d.limit:]
	}

	window := d.window()
	for _, l := range d.listeners {
		notify(l, window)
	}
}

func (d *Dispatcher) index(id string) int {
	for i, m := range d.msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// window returns a copy of the current messages. d.mu must be held.
func (d *Dispatcher) window() []Message {
	return append(make([]Message, 0, len(d.msgs)), d.msgs...)
}

// notify replaces any unread window of l with the latest one.
func notify(l chan []Message, window []Message) {
	select {
	case <-l:
	default:
	}
	l <- window
}

// Messages returns the last messages of the feed, oldest first.
func (d *Dispatcher) Messages() []Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.window()
}

// Listen returns a channel receiving the message window after every change, starting with the
// current one once the snapshot is loaded. Slow listeners only get the latest window.
// The channel is closed when the dispatcher stops or cancel is called.
func (d *Dispatcher) Listen() (<-chan []Message, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l := make(chan []Message, 1)
	select {
	case <-d.done:
		close(l)
		return l, func() {}
	default:
	}

	id := d.nextID
	d.nextID++
	d.listeners[id] = l
	if d.ready {
		l <- d.window()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if _, ok := d.listeners[id]; ok {
				close(l)
				delete(d.listeners, id)
			}
		})
	}
	return l, cancel
}

// Done is closed once the change stream ends.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }
