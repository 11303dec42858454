package messaging

import (
	"context"
)

// Handler processes one delivered message.
type Handler func(ctx context.Context, msg Message) error

// Consume subscribes to channels and feeds every message to handler until
// ctx is done. A handler error is reported through onError and does not stop
// consumption.
func Consume(ctx context.Context, broker Broker, handler Handler, onError func(Message, error), channels ...string) error {
	msgs, err := broker.Subscribe(ctx, channels...)
	if err != nil {
		return err
	}

	for msg := range msgs {
		if err := handler(ctx, msg); err != nil && onError != nil {
			onError(msg, err)
		}
	}
	return ctx.Err()
}
