package task

import (
	"time"

	"github.com/ahrav/castverify/internal/domain/engagement"
)

// EventType names a task domain event on the wire.
type EventType string

const (
	EventTypeTaskCompleted     EventType = "TaskCompleted"
	EventTypeAllTasksSatisfied EventType = "AllTasksSatisfied"
)

// CompletedEvent records that an actor's task reached the terminal state.
type CompletedEvent struct {
	occurredAt time.Time
	Actor      engagement.ActorID
	TaskID     string
	Reference  engagement.ContentReference
	ContentID  engagement.ContentID
	Action     engagement.ActionKind
}

// NewCompletedEvent builds a CompletedEvent for rec.
func NewCompletedEvent(actor engagement.ActorID, rec Record, at time.Time) CompletedEvent {
	return CompletedEvent{
		occurredAt: at,
		Actor:      actor,
		TaskID:     rec.Key(),
		Reference:  rec.Reference,
		ContentID:  rec.ContentID,
		Action:     rec.Action,
	}
}

// EventType returns the wire name of the event.
func (e CompletedEvent) EventType() EventType { return EventTypeTaskCompleted }

// OccurredAt returns when the completion happened.
func (e CompletedEvent) OccurredAt() time.Time { return e.occurredAt }

// AllSatisfiedEvent records that every tracked task for an action is done.
type AllSatisfiedEvent struct {
	occurredAt time.Time
	Actor      engagement.ActorID
	Action     engagement.ActionKind
	TaskCount  int
}

// NewAllSatisfiedEvent builds an AllSatisfiedEvent.
func NewAllSatisfiedEvent(actor engagement.ActorID, action engagement.ActionKind, count int, at time.Time) AllSatisfiedEvent {
	return AllSatisfiedEvent{occurredAt: at, Actor: actor, Action: action, TaskCount: count}
}

// EventType returns the wire name of the event.
func (e AllSatisfiedEvent) EventType() EventType { return EventTypeAllTasksSatisfied }

// OccurredAt returns when the aggregate condition was observed.
func (e AllSatisfiedEvent) OccurredAt() time.Time { return e.occurredAt }
