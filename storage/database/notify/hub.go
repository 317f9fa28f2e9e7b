// Package notify fans out document change notifications to the store subscriptions.
package notify

import (
	"context"
	"sync"

	"github.com/trezcool/chuo/core"
)

// ListFunc lists the direct children of a path, e.g. DocStore.List.
type ListFunc func(ctx context.Context, path string, q core.Query) ([]core.Doc, error)

type (
	// Hub wakes up the subscriptions whose path is affected by a write.
	Hub struct {
		logger core.Logger

		mu       sync.Mutex
		watchers map[*watcher]struct{}
		closed   bool
	}

	watcher struct {
		path   string
		signal chan struct{}
	}
)

func NewHub(logger core.Logger) *Hub {
	return &Hub{logger: logger, watchers: make(map[*watcher]struct{})}
}

// Publish notifies the subscriptions of the parent of path, and those below path when
// a subtree was deleted.
func (h *Hub) Publish(path string) {
	parent, _, err := core.SplitPath(path)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		if w.path == parent || core.IsDescendant(w.path, path) {
			// signals coalesce: one pending wake-up is enough
			select {
			case w.signal <- struct{}{}:
			default:
			}
		}
	}
}

// Resync wakes up every subscription, e.g. after notifications may have been lost.
func (h *Hub) Resync() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		select {
		case w.signal <- struct{}{}:
		default:
		}
	}
}

// Close stops every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for w := range h.watchers {
		close(w.signal)
		delete(h.watchers, w)
	}
}

func (h *Hub) watch(path string) (*watcher, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	w := &watcher{path: path, signal: make(chan struct{}, 1)}
	h.watchers[w] = struct{}{}
	return w, true
}

func (h *Hub) unwatch(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[w]; ok {
		close(w.signal)
		delete(h.watchers, w)
	}
}

// Subscribe streams the changes of the children of path: a snapshot of the current window
// first, then one Added, Changed or Removed event per document.
// The window is re-listed after every notification and compared with the previous one.
func (h *Hub) Subscribe(ctx context.Context, path string, q core.Query, list ListFunc) (<-chan core.Event, error) {
	w, ok := h.watch(path)
	if !ok {
		return nil, core.NewShutdownError("store is closed")
	}

	window, err := list(ctx, path, q)
	if err != nil {
		h.unwatch(w)
		return nil, err
	}

	events := make(chan core.Event, 16)
	go func() {
		defer close(events)
		defer h.unwatch(w)

		if !send(ctx, events, core.Event{Type: core.EventSnapshot, Docs: window}) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.signal:
				if !ok {
					return
				}
			}

			next, err := list(ctx, path, q)
			if err != nil {
				if ctx.Err() == nil && h.logger != nil {
					h.logger.Error("listing "+path, err)
				}
				continue
			}
			for _, ev := range Diff(window, next) {
				if !send(ctx, events, ev) {
					return
				}
			}
			window = next
		}
	}()
	return events, nil
}

func send(ctx context.Context, events chan<- core.Event, ev core.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Diff returns the events turning the prev window into next.
func Diff(prev, next []core.Doc) []core.Event {
	prevVersions := make(map[string]int64, len(prev))
	for _, d := range prev {
		prevVersions[d.Key] = d.Version
	}
	nextKeys := make(map[string]struct{}, len(next))
	for _, d := range next {
		nextKeys[d.Key] = struct{}{}
	}

	var events []core.Event
	for _, d := range prev {
		if _, ok := nextKeys[d.Key]; !ok {
			events = append(events, core.Event{Type: core.EventRemoved, Docs: []core.Doc{d}})
		}
	}
	for _, d := range next {
		version, ok := prevVersions[d.Key]
		switch {
		case !ok:
			events = append(events, core.Event{Type: core.EventAdded, Docs: []core.Doc{d}})
		case version != d.Version:
			events = append(events, core.Event{Type: core.EventChanged, Docs: []core.Doc{d}})
		}
	}
	return events
}
