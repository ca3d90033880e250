/*
Package events carries activity template usage over RabbitMQ.

PURPOSE:
  The engine records template usage after a budget write commits. With
  messaging enabled, the Publisher turns that call into a persistent message
  and a consumer (the template-worker binary, or the server in-process)
  applies it to the TemplateStore. A broker outage only costs suggestions,
  never a budget write.

TOPOLOGY:
  One durable direct exchange, one durable queue bound with the queue name
  as routing key. Deliveries are acked manually.

  malformed body        → Nack, dropped
  client-side error     → Nack, dropped
  anything else         → Nack, requeued
*/
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/warp/paa-engine/budget"
	"github.com/warp/paa-engine/log"
)

const publishTimeout = 5 * time.Second

// Handler applies one decoded message.
type Handler func(ctx context.Context, msg *TemplateUsageMessage) error

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	logger       *log.Logger
}

func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if logger == nil {
		logger = log.Discard()
	}
	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
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

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishTemplateUsage publishes a persistent usage message.
func (c *Client) PublishTemplateUsage(ctx context.Context, msg *TemplateUsageMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.DebugContext(ctx, "Published template usage message",
		log.FieldCenterID, msg.CenterID,
		log.FieldLines, len(msg.Lines))
	return nil
}

// ConsumeTemplateUsage blocks, handing each delivery to handler until ctx
// is cancelled or the channel closes.
func (c *Client) ConsumeTemplateUsage(ctx context.Context, handler Handler) error {
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

	c.logger.InfoContext(ctx, "Started consuming template usage messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			handleDelivery(ctx, c.logger, delivery, handler)
		}
	}
}

// handleDelivery decodes, applies and acknowledges a single delivery.
func handleDelivery(ctx context.Context, logger *log.Logger, delivery amqp091.Delivery, handler Handler) {
	msg, err := TemplateUsageMessageFromJSON(delivery.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
		delivery.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		requeue := !budget.IsClientError(err)
		logger.ErrorContext(ctx, "Failed to handle message",
			log.FieldOperation, log.OpConsume,
			log.FieldCenterID, msg.CenterID,
			log.FieldError, err,
			"requeue", requeue)
		delivery.Nack(false, requeue)
		return
	}

	delivery.Ack(false)
	logger.DebugContext(ctx, "Processed template usage message",
		log.FieldCenterID, msg.CenterID,
		log.FieldLines, len(msg.Lines))
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
