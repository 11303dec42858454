// Package memory holds in-process implementations of the repository
// interfaces. They back the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
)

type appointmentRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*model.Appointment
	now    func() time.Time
}

// NewAppointmentRepository returns an empty store. A single mutex serializes
// every write, which covers both the per-doctor create check and the per-id
// status compare-and-swap.
func NewAppointmentRepository() repository.AppointmentRepository {
	return NewAppointmentRepositoryWithClock(time.Now)
}

func NewAppointmentRepositoryWithClock(now func() time.Time) repository.AppointmentRepository {
	return &appointmentRepository{
		nextID: 1,
		byID:   make(map[int64]*model.Appointment),
		now:    now,
	}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) (*model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if appointment.DurationMinutes <= 0 {
		return nil, errors.BadRequest("duration must be positive", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start, end := appointment.ScheduledAt, appointment.EndsAt()
	for _, existing := range r.byID {
		if existing.DoctorID != appointment.DoctorID || !existing.IsActive() {
			continue
		}
		if existing.Overlaps(start, end) {
			return nil, errors.Conflict("doctor already has an appointment in this interval",
				fmt.Errorf("overlaps appointment %d", existing.ID))
		}
	}

	stored := appointment.Clone()
	stored.ID = r.nextID
	r.nextID++
	now := r.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = model.AppointmentStatusScheduled
	}
	r.byID[stored.ID] = stored

	return stored.Clone(), nil
}

func (r *appointmentRepository) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, errors.NotFound("appointment", nil)
	}
	return a.Clone(), nil
}

func (r *appointmentRepository) List(ctx context.Context) ([]*model.Appointment, error) {
	return r.filter(ctx, func(*model.Appointment) bool { return true })
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID int64) ([]*model.Appointment, error) {
	return r.filter(ctx, func(a *model.Appointment) bool { return a.PatientID == patientID })
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID int64) ([]*model.Appointment, error) {
	return r.filter(ctx, func(a *model.Appointment) bool { return a.DoctorID == doctorID })
}

func (r *appointmentRepository) ListActiveByDoctorBetween(ctx context.Context, doctorID int64, from, to time.Time) ([]*model.Appointment, error) {
	return r.filter(ctx, func(a *model.Appointment) bool {
		return a.DoctorID == doctorID && a.IsActive() && a.Overlaps(from, to)
	})
}

func (r *appointmentRepository) Update(ctx context.Context, id int64, update model.AppointmentUpdate) (*model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, errors.NotFound("appointment", nil)
	}
	if update.ExpectedStatus != nil && a.Status != *update.ExpectedStatus {
		return nil, errors.Conflict("appointment status changed concurrently",
			fmt.Errorf("expected %s, found %s", *update.ExpectedStatus, a.Status))
	}

	update.Apply(a)
	a.UpdatedAt = r.now()
	return a.Clone(), nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return errors.NotFound("appointment", nil)
	}
	delete(r.byID, id)
	return nil
}

func (r *appointmentRepository) filter(ctx context.Context, keep func(*model.Appointment) bool) ([]*model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Appointment, 0)
	for _, a := range r.byID {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}
