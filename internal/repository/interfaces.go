package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

// All repository interfaces in one file
type (
	// AppointmentRepository is the authoritative appointment store.
	//
	// Create must reject an insert overlapping an active appointment of the
	// same doctor with a Conflict error. Update with ExpectedStatus set is a
	// compare-and-swap on status and returns Conflict on mismatch.
	// List operations return snapshots ordered by scheduled time.
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) (*model.Appointment, error)
		Get(ctx context.Context, id int64) (*model.Appointment, error)
		List(ctx context.Context) ([]*model.Appointment, error)
		ListByPatient(ctx context.Context, patientID int64) ([]*model.Appointment, error)
		ListByDoctor(ctx context.Context, doctorID int64) ([]*model.Appointment, error)
		ListActiveByDoctorBetween(ctx context.Context, doctorID int64, from, to time.Time) ([]*model.Appointment, error)
		Update(ctx context.Context, id int64, update model.AppointmentUpdate) (*model.Appointment, error)
		Delete(ctx context.Context, id int64) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
