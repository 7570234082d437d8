package message_broaker

import (
	"context"
	"fmt"

	"github.com/RezaEskandarii/hostfire/types/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queueName   string
	exchange    string
	routingKey  string
	contentType string
}

// NewRabbitMQ creates a new instance of RabbitMQ message broker.
func NewRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.QueueBind(
		cfg.Queue,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	return &RabbitMQ{
		conn:        conn,
		channel:     ch,
		queueName:   cfg.Queue,
		exchange:    cfg.Exchange,
		routingKey:  cfg.RoutingKey,
		contentType: contentType,
	}, nil
}

// Publish sends message through the configured exchange; the queue argument
// is ignored because routing is fixed by the binding.
func (r *RabbitMQ) Publish(ctx context.Context, _ string, message []byte) error {
	return r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  r.contentType,
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
}

func (r *RabbitMQ) Consume(ctx context.Context) (<-chan []byte, error) {
	msgs, err := r.channel.ConsumeWithContext(
		ctx,
		r.queueName,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return forward(ctx, msgs, func(d amqp.Delivery) []byte { return d.Body }), nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
