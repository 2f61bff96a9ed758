package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"finsession/internal/log"
)

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

// AMQPNotifier publishes toasts as persistent JSON messages to a direct
// exchange, routed by queue name.
type AMQPNotifier struct {
	conn         *amqp091.Connection
	channel      channel
	exchangeName string
	queueName    string
	logger       *log.Logger
}

func NewAMQPNotifier(url, exchangeName, queueName string, logger *log.Logger) (*AMQPNotifier, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	n, err := newAMQPNotifier(ch, exchangeName, queueName, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	n.conn = conn
	return n, nil
}

func newAMQPNotifier(ch channel, exchangeName, queueName string, logger *log.Logger) (*AMQPNotifier, error) {
	if logger == nil {
		logger = log.Discard()
	}
	n := &AMQPNotifier{
		channel:      ch,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentNotify),
	}
	if err := n.setup(); err != nil {
		ch.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return n, nil
}

func (n *AMQPNotifier) setup() error {
	err := n.channel.ExchangeDeclare(
		n.exchangeName, // name
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

	_, err = n.channel.QueueDeclare(
		n.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Direct exchange: routing key is the queue name.
	err = n.channel.QueueBind(n.queueName, n.queueName, n.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, t Toast) error {
	msg := NewToastMessage(t)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal toast: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = n.channel.PublishWithContext(
		ctx,
		n.exchangeName, // exchange
		n.queueName,    // routing key
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
		return fmt.Errorf("publish toast: %w", err)
	}

	n.logger.DebugContext(ctx, "Published toast",
		"level", t.Level,
		"exchange", n.exchangeName,
		"queue", n.queueName)
	return nil
}

// Consume hands every toast on the queue to handler until ctx is done.
// Undecodable messages are dropped; handler failures are requeued.
func (n *AMQPNotifier) Consume(ctx context.Context, handler func(Toast) error) error {
	msgs, err := n.channel.Consume(
		n.queueName, // queue
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

	n.logger.InfoContext(ctx, "Started consuming toasts", "queue", n.queueName)

	for {
		select {
		case <-ctx.Done():
			n.logger.InfoContext(ctx, "Stopping toast consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := ToastMessageFromJSON(delivery.Body)
			if err != nil {
				n.logger.ErrorContext(ctx, "Failed to unmarshal toast", log.FieldError, err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(msg.Toast()); err != nil {
				n.logger.ErrorContext(ctx, "Failed to handle toast", log.FieldError, err)
				delivery.Nack(false, true)
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
