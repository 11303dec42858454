// Package appointment is the caller boundary of the engine. It checks who is
// asking, delegates to booking, lifecycle and availability, and records an
// outbox event after every successful change.
package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/internal/service/availability"
	"github.com/jwalitptl/appointment-engine/internal/service/booking"
	"github.com/jwalitptl/appointment-engine/internal/service/event"
	"github.com/jwalitptl/appointment-engine/internal/service/lifecycle"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
	pkgevent "github.com/jwalitptl/appointment-engine/pkg/event"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
)

var trackedFields = []string{"reason", "symptoms", "diagnosis", "notes"}

type Service struct {
	repo      repository.AppointmentRepository
	lifecycle *lifecycle.Service
	booking   *booking.Orchestrator
	resolver  *availability.Resolver
	events    event.Emitter
	extractor pkgevent.FieldExtractor
	log       *logger.Logger
	now       func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	lifecycleSvc *lifecycle.Service,
	orchestrator *booking.Orchestrator,
	resolver *availability.Resolver,
	events event.Emitter,
	log *logger.Logger,
) *Service {
	if events == nil {
		events = event.NopEmitter{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		lifecycle: lifecycleSvc,
		booking:   orchestrator,
		resolver:  resolver,
		events:    events,
		extractor: &pkgevent.DefaultFieldExtractor{},
		log:       log,
		now:       time.Now,
	}
}

// Book creates an appointment. Patients book for themselves; the scheduler
// books on behalf of any patient.
func (s *Service) Book(ctx context.Context, actor model.Actor, req booking.Request) (*model.Appointment, error) {
	switch actor.Role {
	case model.RolePatient:
		if req.PatientID == 0 {
			req.PatientID = actor.UserID
		}
		if req.PatientID != actor.UserID {
			return nil, errors.Forbidden("patients can only book for themselves")
		}
	case model.RoleScheduler:
	default:
		return nil, errors.Forbidden("role " + string(actor.Role) + " cannot book appointments")
	}

	created, err := s.booking.Book(ctx, req)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventAppointmentBooked, created, "", actor, nil)
	return created, nil
}

// Transition changes the status of appointment id on behalf of actor.
func (s *Service) Transition(ctx context.Context, actor model.Actor, id int64, target model.AppointmentStatus) (*model.Appointment, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}

	res, err := s.lifecycle.Transition(ctx, id, target, actor.Role)
	if err != nil {
		return nil, err
	}
	if res.Changed {
		s.emit(ctx, model.StatusEventType(target), res.Appointment, res.Previous, actor, nil)
	}
	return res.Appointment, nil
}

// AllowedTransitions lists the statuses actor may move appointment id to.
func (s *Service) AllowedTransitions(ctx context.Context, actor model.Actor, id int64) ([]model.AppointmentStatus, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return lifecycle.AllowedTargets(a.Status, actor.Role), nil
}

// ResolveSlots is open to every authenticated role.
func (s *Service) ResolveSlots(ctx context.Context, _ model.Actor, doctorID int64, date string) (*model.Availability, error) {
	if doctorID <= 0 {
		return nil, errors.BadRequest("invalid doctor id", nil)
	}
	return s.resolver.ResolveSlots(ctx, doctorID, date)
}

// ListForActor returns the appointments the actor is party to; scheduler
// and admin see everything.
func (s *Service) ListForActor(ctx context.Context, actor model.Actor) ([]*model.Appointment, error) {
	var (
		list []*model.Appointment
		err  error
	)
	switch actor.Role {
	case model.RolePatient:
		list, err = s.repo.ListByPatient(ctx, actor.UserID)
	case model.RoleDoctor:
		list, err = s.repo.ListByDoctor(ctx, actor.UserID)
	case model.RoleScheduler, model.RoleAdmin:
		list, err = s.repo.List(ctx)
	default:
		return nil, errors.Forbidden("unknown role")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return list, nil
}

// ListByPatient returns a patient's appointments. A doctor only sees the
// ones booked with them.
func (s *Service) ListByPatient(ctx context.Context, actor model.Actor, patientID int64) ([]*model.Appointment, error) {
	if actor.Role == model.RolePatient && actor.UserID != patientID {
		return nil, errors.Forbidden("patients can only view their own appointments")
	}
	list, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	if actor.Role == model.RoleDoctor {
		list = filter(list, func(a *model.Appointment) bool { return a.DoctorID == actor.UserID })
	}
	return list, nil
}

// PatientOverview groups a patient's appointments for the patient portal.
func (s *Service) PatientOverview(ctx context.Context, actor model.Actor, patientID int64) (model.PatientView, error) {
	list, err := s.ListByPatient(ctx, actor, patientID)
	if err != nil {
		return model.PatientView{}, err
	}
	return model.GroupForPatient(list), nil
}

// ListByDoctor returns a doctor's appointments. A patient only sees their
// own appointments with that doctor.
func (s *Service) ListByDoctor(ctx context.Context, actor model.Actor, doctorID int64) ([]*model.Appointment, error) {
	if actor.Role == model.RoleDoctor && actor.UserID != doctorID {
		return nil, errors.Forbidden("doctors can only view their own schedule")
	}
	list, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	if actor.Role == model.RolePatient {
		list = filter(list, func(a *model.Appointment) bool { return a.PatientID == actor.UserID })
	}
	return list, nil
}

// Summary counts a doctor's appointments per status, optionally limited
// to one day.
func (s *Service) Summary(ctx context.Context, actor model.Actor, doctorID int64, date string) (model.StatusSummary, error) {
	switch actor.Role {
	case model.RoleDoctor:
		if actor.UserID != doctorID {
			return nil, errors.Forbidden("doctors can only view their own schedule")
		}
	case model.RoleScheduler, model.RoleAdmin:
	default:
		return nil, errors.Forbidden("role " + string(actor.Role) + " cannot view schedule summaries")
	}

	list, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	if date != "" {
		day, err := s.resolver.ParseDate(date)
		if err != nil {
			return nil, err
		}
		next := day.AddDate(0, 0, 1)
		list = filter(list, func(a *model.Appointment) bool {
			at := a.ScheduledAt.In(day.Location())
			return !at.Before(day) && at.Before(next)
		})
	}
	return model.Summarize(list), nil
}

// Get returns appointment id if actor is a party to it or has a
// system-wide role.
func (s *Service) Get(ctx context.Context, actor model.Actor, id int64) (*model.Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if err := authorize(actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateDetails edits the free-text fields. Patients may touch reason and
// symptoms; doctors may touch all four.
func (s *Service) UpdateDetails(ctx context.Context, actor model.Actor, id int64, req model.UpdateAppointmentRequest) (*model.Appointment, error) {
	switch actor.Role {
	case model.RolePatient:
		if req.Diagnosis != nil || req.Notes != nil {
			return nil, errors.Forbidden("patients cannot edit diagnosis or notes")
		}
	case model.RoleDoctor:
	default:
		return nil, errors.Forbidden("role " + string(actor.Role) + " cannot edit appointment details")
	}

	update := model.AppointmentUpdate{
		Reason:    req.Reason,
		Symptoms:  req.Symptoms,
		Diagnosis: req.Diagnosis,
		Notes:     req.Notes,
	}
	if !update.HasFieldChanges() {
		return nil, errors.BadRequest("nothing to update", nil)
	}

	before, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.lifecycle.UpdateFields(ctx, id, update)
	if err != nil {
		return nil, err
	}
	changes := s.extractor.ExtractChanges(before, updated, trackedFields)
	if len(changes) > 0 {
		s.emit(ctx, model.EventAppointmentUpdated, updated, "", actor, changes)
	}
	return updated, nil
}

// Delete removes an appointment outright. Admin only.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id int64) error {
	if actor.Role != model.RoleAdmin {
		return errors.Forbidden("only admins can delete appointments")
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get appointment: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	s.emit(ctx, model.EventAppointmentDeleted, a, "", actor, nil)
	return nil
}

func (s *Service) emit(ctx context.Context, eventType string, a *model.Appointment, previous model.AppointmentStatus, actor model.Actor, changes map[string]interface{}) {
	payload := model.AppointmentEvent{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		ScheduledAt:   a.ScheduledAt,
		Status:        a.Status,
		PreviousState: previous,
		Actor:         actor,
		OccurredAt:    s.now(),
		Changes:       changes,
	}
	if err := s.events.Emit(ctx, eventType, payload); err != nil {
		s.log.Error(err, "failed to record appointment event",
			"event_type", eventType, "appointment_id", a.ID)
	}
}

func authorize(actor model.Actor, a *model.Appointment) error {
	switch actor.Role {
	case model.RolePatient:
		if a.PatientID != actor.UserID {
			return errors.Forbidden("appointment belongs to another patient")
		}
	case model.RoleDoctor:
		if a.DoctorID != actor.UserID {
			return errors.Forbidden("appointment belongs to another doctor")
		}
	case model.RoleScheduler, model.RoleAdmin:
	default:
		return errors.Forbidden("unknown role")
	}
	return nil
}

func filter(list []*model.Appointment, keep func(*model.Appointment) bool) []*model.Appointment {
	out := make([]*model.Appointment, 0, len(list))
	for _, a := range list {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
