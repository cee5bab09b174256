package broker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeDead receives repair events that a downstream consumer
	// fatally rejected. Anything landing here needs operator attention.
	ExchangeDead = "textmend.dlx"

	queueDead = "textmend.queue.dead"
)

// DeadLetterHandler processes one dead-lettered message body.
type DeadLetterHandler func(ctx context.Context, body []byte) error

// DeadLetterConsumer drains the dead-letter queue so rejected repairs can
// be flagged back in the queue database instead of rotting in the broker.
type DeadLetterConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler DeadLetterHandler
	logger  *slog.Logger
}

func NewDeadLetterConsumer(url string, handler DeadLetterHandler, logger *slog.Logger) (*DeadLetterConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %v", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %v", err)
	}

	return &DeadLetterConsumer{
		conn:    conn,
		channel: ch,
		handler: handler,
		logger:  logger,
	}, nil
}

// Listen declares the dead-letter topology and consumes until ctx ends.
func (c *DeadLetterConsumer) Listen(ctx context.Context) error {
	if err := c.channel.ExchangeDeclare(ExchangeDead, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %v", err)
	}

	q, err := c.channel.QueueDeclare(queueDead, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %v", err)
	}

	// Catch everything: routing keys on dead letters carry their original key
	if err := c.channel.QueueBind(q.Name, "#", ExchangeDead, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %v", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register dead-letter consumer: %v", err)
	}

	c.logger.Info("Dead-letter consumer is online", "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			if err := c.handler(ctx, d.Body); err != nil {
				// Never requeue here: a dead letter that fails to process
				// would otherwise loop forever
				c.logger.Error("Dead-letter handling failed, dropping", "error", err)
				d.Nack(false, false)
				continue
			}

			if err := d.Ack(false); err != nil {
				c.logger.Error("Failed to Ack dead letter", "error", err)
			}
		}
	}
}

func (c *DeadLetterConsumer) Close() {
	c.channel.Close()
	c.conn.Close()
}
