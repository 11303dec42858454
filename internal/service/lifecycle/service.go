package lifecycle

import (
	"context"
	"fmt"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

const defaultAttempts = 3

// Result describes an applied (or already applied) transition.
type Result struct {
	Appointment *model.Appointment
	Previous    model.AppointmentStatus
	// Changed is false when the appointment was already in the target status.
	Changed bool
}

type Service struct {
	repo     repository.AppointmentRepository
	log      *logger.Logger
	metrics  *metrics.Metrics
	attempts int
}

// NewService builds the lifecycle service. attempts bounds how many times a
// transition is re-validated after losing a compare-and-swap race; values
// below one fall back to the default.
func NewService(repo repository.AppointmentRepository, log *logger.Logger, m *metrics.Metrics, attempts int) *Service {
	if attempts < 1 {
		attempts = defaultAttempts
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, log: log, metrics: m, attempts: attempts}
}

// Transition moves appointment id to target on behalf of role. The store
// write is conditional on the status that was validated, so a concurrent
// change makes this call re-read and validate again instead of overwriting.
func (s *Service) Transition(ctx context.Context, id int64, target model.AppointmentStatus, role model.Role) (*Result, error) {
	var lastConflict error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get appointment: %w", err)
		}

		noop, err := Check(current.Status, target, role)
		if err != nil {
			s.observe(current.Status, target, "rejected")
			return nil, err
		}
		if noop {
			s.observe(current.Status, target, "noop")
			return &Result{Appointment: current, Previous: current.Status}, nil
		}

		expected := current.Status
		updated, err := s.repo.Update(ctx, id, model.AppointmentUpdate{
			ExpectedStatus: &expected,
			Status:         &target,
		})
		if err == nil {
			s.observe(expected, target, "applied")
			s.log.Info("appointment status changed",
				"appointment_id", id, "from", expected, "to", target, "role", role)
			return &Result{Appointment: updated, Previous: expected, Changed: true}, nil
		}
		if !errors.Is(err, errors.ConflictError) {
			return nil, fmt.Errorf("failed to update appointment status: %w", err)
		}

		lastConflict = err
		s.log.Debug("status changed concurrently, re-validating",
			"appointment_id", id, "attempt", attempt, "expected", expected)
	}

	s.observe("", target, "conflict")
	return nil, lastConflict
}

// UpdateFields writes free-text fields while guarding against the
// appointment reaching a terminal status in the meantime.
func (s *Service) UpdateFields(ctx context.Context, id int64, update model.AppointmentUpdate) (*model.Appointment, error) {
	update.Status = nil
	var lastConflict error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get appointment: %w", err)
		}
		if current.Status.IsTerminal() {
			return nil, errors.TerminalState(string(current.Status))
		}

		expected := current.Status
		update.ExpectedStatus = &expected
		updated, err := s.repo.Update(ctx, id, update)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, errors.ConflictError) {
			return nil, fmt.Errorf("failed to update appointment: %w", err)
		}
		lastConflict = err
	}
	return nil, lastConflict
}

func (s *Service) observe(from, to model.AppointmentStatus, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Transitions.WithLabelValues(string(from), string(to), result).Inc()
}
