// Package booking creates appointments from a (date, time) chosen out of a
// previously resolved slot grid.
package booking

import (
	"context"
	"fmt"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/internal/service/availability"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

type Request struct {
	PatientID       int64
	DoctorID        int64
	Date            string // YYYY-MM-DD
	Time            string // HH:MM
	DurationMinutes int
	Reason          *string
	Symptoms        *string
	Notes           *string
}

type Orchestrator struct {
	repo            repository.AppointmentRepository
	resolver        *availability.Resolver
	defaultDuration int
	log             *logger.Logger
	metrics         *metrics.Metrics
}

func NewOrchestrator(repo repository.AppointmentRepository, resolver *availability.Resolver, defaultDuration int, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	if defaultDuration <= 0 {
		defaultDuration = model.DefaultDurationMinutes
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		repo:            repo,
		resolver:        resolver,
		defaultDuration: defaultDuration,
		log:             log,
		metrics:         m,
	}
}

// Book creates a scheduled appointment at req.Date req.Time. The slot is
// checked against a fresh resolution first; the store then re-checks under
// its own lock, so two callers racing for one slot cannot both succeed.
// Nothing is written when an error is returned.
func (o *Orchestrator) Book(ctx context.Context, req Request) (*model.Appointment, error) {
	if req.PatientID <= 0 || req.DoctorID <= 0 {
		o.observe("invalid")
		return nil, errors.BadRequest("patient and doctor are required", nil)
	}
	tod, err := model.ParseTimeOfDay(req.Time)
	if err != nil {
		o.observe("invalid")
		return nil, errors.BadRequest(fmt.Sprintf("invalid time %q, expected HH:MM", req.Time), err)
	}

	slots, err := o.resolver.ResolveSlots(ctx, req.DoctorID, req.Date)
	if err != nil {
		o.observe("error")
		return nil, err
	}
	if !slots.IsAvailable(tod.String()) {
		o.observe("slot_taken")
		return nil, errors.SlotNoLongerAvailable(fmt.Errorf("%s %s is not offered for doctor %d", req.Date, tod, req.DoctorID))
	}

	day, err := o.resolver.ParseDate(req.Date)
	if err != nil {
		o.observe("invalid")
		return nil, err
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = o.defaultDuration
	}

	created, err := o.repo.Create(ctx, &model.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		ScheduledAt:     tod.On(day),
		DurationMinutes: duration,
		Status:          model.AppointmentStatusScheduled,
		Reason:          req.Reason,
		Symptoms:        req.Symptoms,
		Notes:           req.Notes,
	})
	if err != nil {
		if errors.Is(err, errors.ConflictError) {
			o.observe("slot_taken")
			return nil, errors.SlotNoLongerAvailable(err)
		}
		o.observe("error")
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	o.observe("booked")
	o.log.Info("appointment booked",
		"appointment_id", created.ID, "doctor_id", created.DoctorID, "patient_id", created.PatientID,
		"scheduled_at", created.ScheduledAt, "provisional_slots", slots.Provisional)
	return created, nil
}

func (o *Orchestrator) observe(result string) {
	if o.metrics != nil {
		o.metrics.Bookings.WithLabelValues(result).Inc()
	}
}
