package sensorbus

import (
	"context"

	"github.com/nats-io/nats.go"
)

// NatsSubscriber backs Subscriber with a real NATS connection.
type NatsSubscriber struct {
	conn *nats.Conn
}

// NewNatsSubscriber wraps an already-connected *nats.Conn. Connection
// bring-up (URL, credentials, reconnect policy) is process-level
// configuration out of this package's scope.
func NewNatsSubscriber(conn *nats.Conn) *NatsSubscriber {
	return &NatsSubscriber{conn: conn}
}

func (s *NatsSubscriber) Subscribe(ctx context.Context, topic string, handler func(payload []byte) error) (Subscription, error) {
	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		_ = handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
