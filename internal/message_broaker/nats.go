package message_broaker

import (
	"context"
	"fmt"
	"time"

	"github.com/RezaEskandarii/hostfire/internal/constants"
	"github.com/RezaEskandarii/hostfire/types/config"
	"github.com/nats-io/nats.go"
)

// syncQueueGroup makes every message reach exactly one consuming server.
const syncQueueGroup = "hostfire-sync"

type NATS struct {
	nc      *nats.Conn
	subject string
}

// NewNATS connects to the NATS server described by cfg.
func NewNATS(cfg config.NATSConfig) (*NATS, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("hostfire"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{nc: nc, subject: cfg.Subject}, nil
}

func (n *NATS) subjectFor(queue string) string {
	if queue == "" {
		queue = constants.DefaultQueue
	}
	return n.subject + "." + queue
}

func (n *NATS) Publish(_ context.Context, queue string, message []byte) error {
	if err := n.nc.Publish(n.subjectFor(queue), message); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Consume subscribes to the jobs of every queue.
func (n *NATS) Consume(ctx context.Context) (<-chan []byte, error) {
	subject := n.subject + ".>"

	msgs := make(chan *nats.Msg, consumeBufferSize)
	sub, err := n.nc.ChanQueueSubscribe(subject, syncQueueGroup, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return forward(ctx, msgs, func(m *nats.Msg) []byte { return m.Data }), nil
}

func (n *NATS) Close() error {
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
		return err
	}
	return nil
}
