package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// Job is the wire body of a queued send.
type Job struct {
	BroadcastID string `json:"broadcast_id"`
}

// AMQPQueue publishes and consumes jobs on durable RabbitMQ queues named
// after their topic.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
	log  *logrus.Logger

	declared map[string]bool
}

func DialAMQP(url string, log *logrus.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, log: log, declared: map[string]bool{}}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, topic, broadcastID string) error {
	body, err := json.Marshal(Job{BroadcastID: broadcastID})
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Subscribe consumes topic in the background. Every message is acked after
// one attempt, successful or not.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	go func() {
		for d := range msgs {
			q.handle(topic, d, handler)
		}
		q.log.WithField("topic", topic).Warn("📭 [QUEUE] Consumer channel closed")
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler Handler) {
	entry := q.log.WithField("topic", topic)
	defer func() {
		if err := d.Ack(false); err != nil {
			entry.WithError(err).Warn("📭 [QUEUE] Ack failed")
		}
	}()

	job, err := DecodeJob(d.Body)
	if err != nil {
		entry.WithError(err).Warn("📭 [QUEUE] Invalid job dropped")
		return
	}
	entry = entry.WithField("broadcastId", job.BroadcastID)
	if err := handler(context.Background(), job.BroadcastID); err != nil {
		entry.WithError(err).Warn("📭 [QUEUE] Job failed")
		return
	}
	entry.Info("📬 [QUEUE] Job processed")
}

func DecodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.BroadcastID == "" {
		return Job{}, fmt.Errorf("decode job: missing broadcast_id")
	}
	return job, nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var (
	_ Queue = (*InMemoryQueue)(nil)
	_ Queue = (*AMQPQueue)(nil)
)
