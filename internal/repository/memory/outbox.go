package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
)

type outboxRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID]*model.OutboxEvent
	// seq breaks CreatedAt ties so delivery follows insertion order.
	seq  map[uuid.UUID]uint64
	next uint64
}

func NewOutboxRepository() repository.OutboxRepository {
	return &outboxRepository{
		events: make(map[uuid.UUID]*model.OutboxEvent),
		seq:    make(map[uuid.UUID]uint64),
	}
}

func (r *outboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending
	stored := *event
	r.events[event.ID] = &stored
	r.next++
	r.seq[event.ID] = r.next
	return nil
}

func (r *outboxRepository) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*model.OutboxEvent
	for _, e := range r.events {
		if e.Status == model.OutboxStatusPending {
			c := *e
			pending = append(pending, &c)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return r.seq[pending[i].ID] < r.seq[pending[j].ID] })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *outboxRepository) MarkProcessed(_ context.Context, id uuid.UUID) error {
	return r.set(id, func(e *model.OutboxEvent) {
		now := time.Now()
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
	})
}

func (r *outboxRepository) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	return r.set(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errorMessage
		e.RetryCount++
	})
}

func (r *outboxRepository) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, e := range r.events {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.events, id)
			delete(r.seq, id)
			n++
		}
	}
	return n, nil
}

func (r *outboxRepository) set(id uuid.UUID, fn func(*model.OutboxEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("outbox event %s not found", id)
	}
	fn(e)
	e.UpdatedAt = time.Now()
	return nil
}
