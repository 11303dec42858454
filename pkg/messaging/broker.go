package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe delivers messages from channels until ctx is done, then
	// closes the returned channel.
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	Close() error
}

type Message struct {
	Channel string
	Payload []byte
}
