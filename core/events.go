package core

import (
	"context"
	"time"
)

// domain event names
const (
	EventEnrollmentRequested = "enrollment.requested"
	EventEnrollmentApproved  = "enrollment.approved"
	EventModuleCompleted     = "progress.module_completed"
	EventAssignmentSubmitted = "progress.assignment_submitted"
	EventCourseDeleted       = "course.deleted"
)

type DomainEvent struct {
	Name       string      `json:"name"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func NewDomainEvent(name string, payload interface{}) DomainEvent {
	return DomainEvent{Name: name, OccurredAt: NowFunc(), Payload: payload}
}

// EventPublisher broadcasts domain events to other systems.
// The document store stays the source of truth: publishing failures must never fail an operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev DomainEvent) error
}

// PublishEvent publishes ev and logs (but swallows) any failure.
func PublishEvent(ctx context.Context, pub EventPublisher, logger Logger, ev DomainEvent) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil && logger != nil {
		logger.Warn("publishing event "+ev.Name, err)
	}
}
