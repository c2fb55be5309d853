package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler processes one broadcast id taken off a topic.
type Handler func(ctx context.Context, broadcastID string) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic, broadcastID string) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers each job once to every subscriber of its topic.
// Failed jobs are logged and dropped; a broadcast left in failed status has
// to be resent explicitly.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	log      *logrus.Logger
	wg       sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log *logrus.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Publish hands the job to all subscribers and returns without waiting.
func (q *InMemoryQueue) Publish(ctx context.Context, topic, broadcastID string) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	jobCtx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		q.wg.Add(1)
		go func(h Handler) {
			defer q.wg.Done()
			q.process(jobCtx, topic, h, broadcastID)
		}(handler)
	}
	return nil
}

func (q *InMemoryQueue) process(ctx context.Context, topic string, h Handler, broadcastID string) {
	entry := q.log.WithFields(logrus.Fields{"topic": topic, "broadcastId": broadcastID})
	if err := h(ctx, broadcastID); err != nil {
		entry.WithError(err).Warn("📭 [QUEUE] Job failed")
		return
	}
	entry.Debug("📬 [QUEUE] Job processed")
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has been handled.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// StartBroadcastSendSubscriber wires the send topic to handler.
func StartBroadcastSendSubscriber(q Queue, topic string, handler Handler, log *logrus.Logger) error {
	if err := q.Subscribe(topic, handler); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	log.WithField("topic", topic).Info("📨 [QUEUE] Broadcast send subscriber started")
	return nil
}
