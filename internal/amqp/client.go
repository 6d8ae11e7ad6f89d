package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fintrack/internal/core"
)

const publishTimeout = 5 * time.Second

// Client wraps one connection and channel bound to the mirror queue.
type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key matches the queue name on a direct exchange.
	err = c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishRecordSync enqueues a mirror request for one record.
func (c *Client) PublishRecordSync(ctx context.Context, kind core.Kind, id int64) error {
	msg := NewRecordSyncMessage(kind, id)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, TypeRecordSync, msg.MessageID, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published record sync message",
		"kind", kind,
		"id", id,
		"message_id", msg.MessageID,
		"queue", c.queueName)
	return nil
}

// PublishRecordDelete enqueues a tombstone for a record that was just removed.
func (c *Client) PublishRecordDelete(ctx context.Context, kind core.Kind, id int64, title string) error {
	msg := NewRecordDeleteMessage(kind, id, title)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, TypeRecordDelete, msg.MessageID, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published record delete message",
		"kind", kind,
		"id", id,
		"message_id", msg.MessageID,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, msgType, messageID string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Type:         msgType,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Handlers dispatches consumed messages by type. A nil handler drops the
// corresponding messages with an ack.
type Handlers struct {
	OnSync   func(*RecordSyncMessage) error
	OnDelete func(*RecordDeleteMessage) error
}

// Consume delivers queue messages to the handlers until ctx is cancelled.
// Handler errors nack with requeue; undecodable messages nack without.
func (c *Client) Consume(ctx context.Context, h Handlers) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming mirror messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.dispatch(ctx, delivery, h)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, delivery amqp091.Delivery, h Handlers) {
	var handler func() error

	switch delivery.Type {
	case TypeRecordSync:
		if h.OnSync == nil {
			delivery.Ack(false)
			return
		}
		msg, err := RecordSyncMessageFromJSON(delivery.Body)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal message", "type", delivery.Type, "error", err)
			delivery.Nack(false, false)
			return
		}
		handler = func() error { return h.OnSync(msg) }
	case TypeRecordDelete:
		if h.OnDelete == nil {
			delivery.Ack(false)
			return
		}
		msg, err := RecordDeleteMessageFromJSON(delivery.Body)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal message", "type", delivery.Type, "error", err)
			delivery.Nack(false, false)
			return
		}
		handler = func() error { return h.OnDelete(msg) }
	default:
		slog.WarnContext(ctx, "Unknown message type", "type", delivery.Type)
		delivery.Nack(false, false)
		return
	}

	if err := handler(); err != nil {
		slog.ErrorContext(ctx, "Failed to handle message",
			"type", delivery.Type,
			"message_id", delivery.MessageId,
			"error", err)
		delivery.Nack(false, true)
		return
	}
	delivery.Ack(false)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
