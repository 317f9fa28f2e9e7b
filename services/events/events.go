package eventsvc

import (
	"context"
	"sync"

	"github.com/trezcool/chuo/core"
)

// LogPublisher only logs the events. Used when no broker is configured.
type LogPublisher struct {
	logger core.Logger
}

var _ core.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev core.DomainEvent) error {
	p.logger.Debug("event "+ev.Name, map[string]interface{}{"payload": ev.Payload, "occurred_at": ev.OccurredAt})
	return nil
}

// Recorder keeps the published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []core.DomainEvent
}

var _ core.EventPublisher = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, ev core.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Names returns the names of the recorded events, in publishing order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		names = append(names, ev.Name)
	}
	return names
}

func (r *Recorder) Events() []core.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.DomainEvent(nil), r.events...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
