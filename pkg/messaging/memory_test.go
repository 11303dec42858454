package messaging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func TestMemoryBrokerRoutesByChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewMemoryBroker()
	booked, err := b.Subscribe(ctx, "appointment.booked")
	require.NoError(t, err)
	both, err := b.Subscribe(ctx, "appointment.booked", "appointment.cancelled")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "appointment.cancelled", []byte("c")))
	require.NoError(t, b.Publish(ctx, "appointment.booked", []byte("b")))

	assert.Equal(t, "b", string(receive(t, booked).Payload))
	assert.Equal(t, "appointment.cancelled", receive(t, both).Channel)
	assert.Equal(t, "appointment.booked", receive(t, both).Channel)
}

func TestMemoryBrokerClosesOnContextAndClose(t *testing.T) {
	b := NewMemoryBroker()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "x")
	require.NoError(t, err)
	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-sub
		return !ok
	}, time.Second, time.Millisecond)

	other, err := b.Subscribe(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, b.Close())
	_, ok := <-other
	assert.False(t, ok)

	assert.ErrorIs(t, b.Publish(context.Background(), "x", nil), ErrClosed)
	_, err = b.Subscribe(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, b.Close())
}

func TestConsumeReportsHandlerErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewMemoryBroker()

	var failed []string
	done := make(chan error, 1)
	handled := make(chan string, 2)
	go func() {
		done <- Consume(ctx, b, func(_ context.Context, msg Message) error {
			handled <- string(msg.Payload)
			if string(msg.Payload) == "bad" {
				return fmt.Errorf("rejected")
			}
			return nil
		}, func(msg Message, _ error) { failed = append(failed, string(msg.Payload)) }, "events")
	}()

	// Publish until the subscription is registered.
	assert.Eventually(t, func() bool {
		_ = b.Publish(ctx, "events", []byte("bad"))
		select {
		case <-handled:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Publish(ctx, "events", []byte("ok")))
	for p := range handled {
		if p == "ok" {
			break
		}
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Contains(t, failed, "bad")
}
