// Package sensorbus subscribes, by topic name only, to the external IMU/
// LiDAR sensor producer's pub/sub bus. The producer and the bus itself are
// an out-of-scope external collaborator (spec.md §1); this package is the
// only seam the core touches.
//
// Grounded on helixml-helix/api/pkg/pubsub/pubsub.go's PubSub.Subscribe
// interface shape, narrowed to the single method this responsibility needs
// and backed by github.com/nats-io/nats.go.
package sensorbus

import "context"

// Subscription is returned by Subscribe; Unsubscribe stops delivery.
type Subscription interface {
	Unsubscribe() error
}

// Subscriber subscribes to a named topic on the sensor bus.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler func(payload []byte) error) (Subscription, error)
}
