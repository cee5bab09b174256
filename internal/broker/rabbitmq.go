package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/textmend/textmend/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeRepair is the topic exchange carrying repair traffic: audit
// events from the daemon and repair requests bound for unit consumers.
const ExchangeRepair = "textmend.topic"

// confirmTimeout bounds how long Publish waits for the broker ACK.
const confirmTimeout = 10 * time.Second

// RabbitMQClient is a publisher with confirms enabled. It watches its own
// connection and channel and flips unhealthy on the first close event, so
// the owning loop knows to rebuild it.
type RabbitMQClient struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *slog.Logger
	healthy   atomic.Bool
	closeOnce sync.Once
	stop      context.CancelFunc
}

func NewRabbitMQClient(url string, l *slog.Logger) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	ch, err := setupChannel(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	client := &RabbitMQClient{
		conn:    conn,
		channel: ch,
		logger:  l,
		stop:    cancel,
	}

	client.healthy.Store(true)
	metrics.HealthStatus.Set(1)
	go client.watch(watchCtx)

	l.Info("Connected to RabbitMQ, publisher confirms active", "url", url)
	return client, nil
}

// setupChannel opens a channel, declares the repair exchange and switches
// the channel into confirm mode.
func setupChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %v", err)
	}

	if err := ch.ExchangeDeclare(ExchangeRepair, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare topic exchange: %v", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to activate publisher confirms: %v", err)
	}

	return ch, nil
}

// watch waits for the first close notification from either the connection
// or the channel and marks the client unhealthy.
func (r *RabbitMQClient) watch(ctx context.Context) {
	connClosed := r.conn.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := r.channel.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case err := <-connClosed:
		r.markUnhealthy("connection", err)
	case err := <-chanClosed:
		r.markUnhealthy("channel", err)
	case <-ctx.Done():
	}
}

func (r *RabbitMQClient) markUnhealthy(what string, err *amqp.Error) {
	r.healthy.Store(false)
	metrics.HealthStatus.Set(0)
	r.logger.Warn("RabbitMQ link lost", "what", what, "error", err)
}

// Publish sends a payload to the repair exchange and blocks until the
// broker confirms it was persisted.
func (r *RabbitMQClient) Publish(ctx context.Context, routingKey, correlationID string, payload any) error {
	if !r.IsHealthy() {
		return fmt.Errorf("broker connection is closed")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize payload: %v", err)
	}

	deferred, err := r.channel.PublishWithDeferredConfirmWithContext(
		ctx, ExchangeRepair, routingKey, false, false,
		amqp.Publishing{
			Headers:      amqp.Table{"correlation_id": correlationID},
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		r.logger.Error("Publish to exchange failed",
			"correlation_id", correlationID,
			"routing_key", routingKey,
			"error", err,
		)
		return fmt.Errorf("publish call failed: %v", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received: message not persisted")
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("publisher confirm timeout")
	}
}

// Close releases the channel and connection. Safe to call more than once.
func (r *RabbitMQClient) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("Terminating RabbitMQ client")
		r.stop()
		if r.channel != nil {
			r.channel.Close()
		}
		if r.conn != nil {
			r.conn.Close()
		}
	})
	return nil
}

// IsHealthy reports whether the connection and channel are still open.
func (r *RabbitMQClient) IsHealthy() bool {
	return r.healthy.Load()
}
