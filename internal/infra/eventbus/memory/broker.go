// Package memory provides an in-process task event broker for deployments
// without Kafka. Events are delivered synchronously and are not persisted.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/castverify/internal/domain/task"
)

type subscription[T any] struct {
	id      uint64
	handler func(context.Context, T) error
}

type handlerList[T any] []subscription[T]

// Broker fans task events out to every subscribed handler.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64

	completedHandlers    handlerList[task.CompletedEvent]
	allSatisfiedHandlers handlerList[task.AllSatisfiedEvent]
}

var _ task.EventPublisher = (*Broker)(nil)

// NewBroker creates a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{}
}

// subscribe registers handler until ctx is done.
func subscribe[T any](
	ctx context.Context,
	b *Broker,
	handlers *handlerList[T],
	handler func(context.Context, T) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	*handlers = append(*handlers, subscription[T]{id: id, handler: handler})
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range *handlers {
			if s.id == id {
				*handlers = append((*handlers)[:i:i], (*handlers)[i+1:]...)
				return
			}
		}
	}()

	return nil
}

// publish delivers msg to a snapshot of the handlers, joining their errors.
func publish[T any](ctx context.Context, b *Broker, handlers *handlerList[T], msg T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	snapshot := make(handlerList[T], len(*handlers))
	copy(snapshot, *handlers)
	b.mu.RUnlock()

	var errs []error
	for _, s := range snapshot {
		if err := s.handler(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishCompleted delivers evt to every completion subscriber.
func (b *Broker) PublishCompleted(ctx context.Context, evt task.CompletedEvent) error {
	return publish(ctx, b, &b.completedHandlers, evt)
}

// PublishAllSatisfied delivers evt to every all-satisfied subscriber.
func (b *Broker) PublishAllSatisfied(ctx context.Context, evt task.AllSatisfiedEvent) error {
	return publish(ctx, b, &b.allSatisfiedHandlers, evt)
}

// SubscribeCompleted registers handler for completion events until ctx is done.
func (b *Broker) SubscribeCompleted(ctx context.Context, handler func(context.Context, task.CompletedEvent) error) error {
	return subscribe(ctx, b, &b.completedHandlers, handler)
}

// SubscribeAllSatisfied registers handler for all-satisfied events until ctx
// is done.
func (b *Broker) SubscribeAllSatisfied(
	ctx context.Context,
	handler func(context.Context, task.AllSatisfiedEvent) error,
) error {
	return subscribe(ctx, b, &b.allSatisfiedHandlers, handler)
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.completedHandlers) + len(b.allSatisfiedHandlers)
}
