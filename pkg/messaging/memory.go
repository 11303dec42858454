package messaging

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("broker closed")

// MemoryBroker is an in-process Broker for local runs and tests. Delivery
// is best effort: a subscriber that falls more than its buffer behind
// loses messages.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string][]chan Message)}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- Message{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	ch := make(chan Message, 100)
	for _, c := range channels {
		b.subs[c] = append(b.subs[c], ch)
	}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, c := range channels {
			b.subs[c] = remove(b.subs[c], ch)
		}
		if !b.closed {
			close(ch)
		}
	}()
	return ch, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	seen := make(map[chan Message]bool)
	for _, list := range b.subs {
		for _, ch := range list {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
	}
	b.subs = make(map[string][]chan Message)
	return nil
}

func remove(list []chan Message, target chan Message) []chan Message {
	out := list[:0]
	for _, ch := range list {
		if ch != target {
			out = append(out, ch)
		}
	}
	return out
}
