package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
)

// Emitter records domain events in the outbox. Publishing to the broker is
// the worker's job.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
}

type EventService struct {
	outboxRepo repository.OutboxRepository
	log        *logger.Logger
}

func NewEventService(outboxRepo repository.OutboxRepository, log *logger.Logger) *EventService {
	if log == nil {
		log = logger.Nop()
	}
	return &EventService{outboxRepo: outboxRepo, log: log}
}

func (s *EventService) Emit(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		EventType: eventType,
		Payload:   payloadJSON,
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	s.log.Debug("event recorded", "event_id", event.ID.String(), "event_type", eventType)
	return nil
}

// CleanupProcessedEvents drops published events older than retention.
func (s *EventService) CleanupProcessedEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	count, err := s.outboxRepo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup events: %w", err)
	}
	s.log.Info("processed events cleaned up", "deleted_count", count, "cutoff", cutoff)
	return count, nil
}

// NopEmitter discards events.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, interface{}) error { return nil }
