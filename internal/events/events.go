// Package events publishes gameplay events to RabbitMQ so classroom
// analytics can consume them out of band. Publishing is fire-and-forget:
// gameplay never blocks on the broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueName holds gameplay events, durable with a short TTL since the
// analytics consumer drains continuously.
const QueueName = "dojo.events"

// Event types.
const (
	TypeChallengeCompleted = "challenge_completed"
	TypeExamCompleted      = "exam_completed"
)

// Event is one gameplay occurrence worth recording.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// ChallengeCompleted fields.
	ModuleID    int    `json:"module_id,omitempty"`
	ChallengeID string `json:"challenge_id,omitempty"`
	Stars       int    `json:"stars,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	HintsUsed   int    `json:"hints_used,omitempty"`

	// ExamCompleted fields.
	Scope string `json:"scope,omitempty"`
	Score int    `json:"score,omitempty"`
	Total int    `json:"total,omitempty"`
}

// Publisher sends events somewhere. The daemon uses an AMQP publisher
// when a broker is configured and a no-op otherwise.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// AMQPPublisher publishes events to a RabbitMQ queue.
type AMQPPublisher struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// NewAMQPPublisher connects to the broker and declares the event queue.
func NewAMQPPublisher(url string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &AMQPPublisher{url: url, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": int32(300000),
		},
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare event queue: %w", err)
	}

	p.conn = conn
	p.channel = channel
	go p.handleReconnect(conn)

	p.logger.Info("connected to RabbitMQ", "queue", QueueName)
	return nil
}

func (p *AMQPPublisher) handleReconnect(conn *amqp.Connection) {
	err := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if err == nil {
		return // normal shutdown
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return
	}

	p.logger.Warn("RabbitMQ connection lost, reconnecting", "error", err)
	for i := 0; i < 10; i++ {
		backoff := time.Duration(1<<i) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		time.Sleep(backoff)

		if err := p.connect(); err != nil {
			p.logger.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}
		return
	}
	p.logger.Error("giving up reconnecting to RabbitMQ")
}

// Publish sends one event. Event identity and timestamp are filled in
// when absent.
func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.RLock()
	channel := p.channel
	p.mu.RUnlock()

	err = channel.PublishWithContext(
		ctx,
		"",        // exchange
		QueueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	p.logger.Debug("published event", "event_id", evt.ID, "type", evt.Type)
	return nil
}

// Close shuts the connection down.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
