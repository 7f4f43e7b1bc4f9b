// Package amqp carries realtime snapshot-change notifications between a
// user's devices. Each remote write publishes the new snapshot to a direct
// exchange keyed by user id; every other device holds an exclusive queue
// bound to that key and feeds deliveries into the merge path.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"saldo/internal/core"
	"saldo/internal/gateway"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	deviceID     string
}

func NewClient(url, exchangeName, deviceID string) (*Client, error) {
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
		deviceID:     deviceID,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange: %w", err)
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
	return nil
}

// PublishSnapshotChange announces a completed remote write to the user's
// other devices.
func (c *Client) PublishSnapshotChange(ctx context.Context, userID string, snap core.Snapshot) error {
	data, err := core.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	msg := NewSnapshotChangeMessage(userID, c.deviceID, data)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		userID,         // routing key: one stream per user
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Transient, // realtime hint, remote doc is the durable copy
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.DebugContext(ctx, "Published snapshot change",
		"user_id", userID,
		"device_id", c.deviceID,
		"bytes", len(body))
	return nil
}

// Subscribe binds an exclusive queue to the user's routing key and delivers
// decoded snapshots to onChange. Self-echoes (messages this device itself
// published) and malformed payloads are dropped, the latter with a log line.
func (c *Client) Subscribe(ctx context.Context, userID string, onChange func(core.Snapshot)) (gateway.Subscription, error) {
	// Dedicated channel per subscription so Close tears down exactly one feed.
	channel, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open subscription channel: %w", err)
	}

	queue, err := channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, userID, c.exchangeName, false, nil); err != nil {
		channel.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack: a lost push is recovered by the next reconcile
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for delivery := range msgs {
			msg, err := SnapshotChangeMessageFromJSON(delivery.Body)
			if err != nil {
				slog.WarnContext(ctx, "Dropping malformed change message",
					"user_id", userID, "error", err)
				continue
			}
			if msg.DeviceID == c.deviceID {
				continue
			}
			snap, err := core.DecodeSnapshot(msg.Snapshot)
			if err != nil {
				slog.WarnContext(ctx, "Dropping change message with undecodable snapshot",
					"user_id", userID,
					"device_id", msg.DeviceID,
					"error", err)
				continue
			}
			onChange(snap)
		}
	}()

	slog.InfoContext(ctx, "Subscribed to snapshot changes",
		"user_id", userID,
		"queue", queue.Name)

	return &subscription{channel: channel}, nil
}

type subscription struct {
	channel *amqp091.Channel
}

// Close shuts the subscription channel, which ends the delivery loop.
func (s *subscription) Close() error {
	return s.channel.Close()
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

// WrapWriter decorates a snapshot writer so every successful remote write
// also notifies the user's other devices. A failed publish is logged, not
// surfaced: the write itself succeeded and the next reconcile on the other
// device converges anyway.
func (c *Client) WrapWriter(w gateway.SnapshotWriter) gateway.SnapshotWriter {
	return &notifyingWriter{inner: w, client: c}
}

type notifyingWriter struct {
	inner  gateway.SnapshotWriter
	client *Client
}

func (n *notifyingWriter) Write(ctx context.Context, userID string, snap core.Snapshot) error {
	if err := n.inner.Write(ctx, userID, snap); err != nil {
		return err
	}
	if err := n.client.PublishSnapshotChange(ctx, userID, snap); err != nil {
		slog.WarnContext(ctx, "Failed to publish snapshot change",
			"user_id", userID, "error", err)
	}
	return nil
}
