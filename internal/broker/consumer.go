package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/textmend/textmend/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// requeueDelay throttles redelivery of requests that failed transiently so
// a struggling Firebird is not hammered in a tight loop.
const requeueDelay = 5 * time.Second

// RequestProcessor applies one repair request. Errors prefixed with FATAL:
// mark the request as poisonous: it is dead-lettered instead of requeued.
type RequestProcessor interface {
	ProcessRequest(ctx context.Context, req models.RepairRequest) error
}

// RabbitMQConsumer feeds repair requests from a unit queue into the
// processor, one message at a time.
type RabbitMQConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	handler RequestProcessor
	logger  *slog.Logger
	unitID  int
	delay   time.Duration
}

func NewRabbitMQConsumer(url string, unitID int, handler RequestProcessor, logger *slog.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %v", err)
	}

	// Prefetch 1: repairs apply in delivery order, one row at a time
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %v", err)
	}

	return &RabbitMQConsumer{
		conn:    conn,
		channel: ch,
		handler: handler,
		logger:  logger,
		unitID:  unitID,
		delay:   requeueDelay,
	}, nil
}

// Listen binds this unit's queue and consumes until ctx is canceled or the
// delivery channel breaks.
func (c *RabbitMQConsumer) Listen(ctx context.Context) error {
	msgs, queueName, err := c.bindQueue()
	if err != nil {
		return err
	}

	c.logger.Info("Consumer is online and waiting for repair requests", "queue", queueName)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *RabbitMQConsumer) bindQueue() (<-chan amqp.Delivery, string, error) {
	queueName := fmt.Sprintf("textmend.queue.unit.%d", c.unitID)
	routingKey := fmt.Sprintf("textmend.unit.%d.#", c.unitID)

	// Rejected deliveries route to the dead-letter exchange, where the
	// daemon's feedback loop picks them up.
	args := amqp.Table{"x-dead-letter-exchange": ExchangeDead}
	q, err := c.channel.QueueDeclare(queueName, true, false, false, false, args)
	if err != nil {
		return nil, "", fmt.Errorf("failed to declare queue: %v", err)
	}

	if err := c.channel.QueueBind(q.Name, routingKey, ExchangeRepair, false, nil); err != nil {
		return nil, "", fmt.Errorf("failed to bind queue: %v", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to register consumer: %v", err)
	}

	return msgs, q.Name, nil
}

// dispatch runs one delivery through the handler and settles it. Malformed
// bodies and FATAL: errors are dead-lettered, never requeued; transient
// failures go back to the queue after a throttle; the ack only happens
// after the Firebird commit.
func (c *RabbitMQConsumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var req models.RepairRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		c.logger.Error("Failed to unmarshal repair request, dead-lettering", "error", err)
		d.Nack(false, false)
		return
	}

	if err := c.handler.ProcessRequest(ctx, req); err != nil {
		if strings.HasPrefix(err.Error(), "FATAL:") {
			c.logger.Error("Poison request, dead-lettering", "event_id", req.EventID, "error", err)
			d.Nack(false, false)
			return
		}

		c.logger.Error("Processing failed, requeueing", "event_id", req.EventID, "error", err)
		time.Sleep(c.delay)
		d.Nack(false, true)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("Failed to Ack message", "event_id", req.EventID, "error", err)
	}
}

func (c *RabbitMQConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.channel.Close()
	c.conn.Close()
}
