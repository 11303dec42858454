package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
)

const appointmentColumns = `
	id, patient_id, doctor_id, scheduled_at, duration_minutes, status,
	reason, symptoms, diagnosis, notes, created_at, updated_at`

// activeOverlapCondition matches active rows whose interval intersects
// [$2, $3) for doctor $1.
const activeOverlapCondition = `
	doctor_id = $1
	AND status NOT IN ('cancelled', 'no_show')
	AND scheduled_at < $3
	AND scheduled_at + make_interval(mins => duration_minutes) > $2`

// Create inserts the appointment unless it overlaps an active one of the
// same doctor. The advisory lock keyed on the doctor serializes concurrent
// creates for that doctor until the transaction ends.
func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) (*model.Appointment, error) {
	if appointment.DurationMinutes <= 0 {
		return nil, errors.BadRequest("duration must be positive", nil)
	}
	status := appointment.Status
	if status == "" {
		status = model.AppointmentStatusScheduled
	}

	var created model.Appointment
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appointment.DoctorID); err != nil {
			return fmt.Errorf("failed to lock doctor schedule: %w", err)
		}

		var overlapping int
		query := `SELECT COUNT(*) FROM appointments WHERE` + activeOverlapCondition
		if err := tx.GetContext(ctx, &overlapping, query,
			appointment.DoctorID, appointment.ScheduledAt, appointment.EndsAt()); err != nil {
			return fmt.Errorf("failed to check overlap: %w", err)
		}
		if overlapping > 0 {
			return errors.Conflict("doctor already has an appointment in this interval", nil)
		}

		insert := `
			INSERT INTO appointments (
				patient_id, doctor_id, scheduled_at, duration_minutes, status,
				reason, symptoms, diagnosis, notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
			RETURNING` + appointmentColumns
		return tx.GetContext(ctx, &created, insert,
			appointment.PatientID,
			appointment.DoctorID,
			appointment.ScheduledAt,
			appointment.DurationMinutes,
			status,
			appointment.Reason,
			appointment.Symptoms,
			appointment.Diagnosis,
			appointment.Notes,
		)
	})
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}
	return &created, nil
}

func (r *appointmentRepository) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	query := `SELECT` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, readError(ctx, err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context) ([]*model.Appointment, error) {
	return r.selectMany(ctx, `SELECT`+appointmentColumns+` FROM appointments ORDER BY scheduled_at ASC, id ASC`)
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID int64) ([]*model.Appointment, error) {
	return r.selectMany(ctx, `SELECT`+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at ASC, id ASC`, patientID)
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID int64) ([]*model.Appointment, error) {
	return r.selectMany(ctx, `SELECT`+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY scheduled_at ASC, id ASC`, doctorID)
}

func (r *appointmentRepository) ListActiveByDoctorBetween(ctx context.Context, doctorID int64, from, to time.Time) ([]*model.Appointment, error) {
	return r.selectMany(ctx, `SELECT`+appointmentColumns+`
		FROM appointments
		WHERE`+activeOverlapCondition+`
		ORDER BY scheduled_at ASC, id ASC`, doctorID, from, to)
}

// Update applies the set fields of update in one statement. With
// ExpectedStatus set the row only changes while its status still matches,
// which makes concurrent transitions of one appointment mutually exclusive.
func (r *appointmentRepository) Update(ctx context.Context, id int64, update model.AppointmentUpdate) (*model.Appointment, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}
	argCount := 2

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argCount))
		args = append(args, value)
		argCount++
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.Reason != nil {
		add("reason", *update.Reason)
	}
	if update.Symptoms != nil {
		add("symptoms", *update.Symptoms)
	}
	if update.Diagnosis != nil {
		add("diagnosis", *update.Diagnosis)
	}
	if update.Notes != nil {
		add("notes", *update.Notes)
	}

	query := `UPDATE appointments SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	if update.ExpectedStatus != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *update.ExpectedStatus)
	}
	query += ` RETURNING` + appointmentColumns

	var updated model.Appointment
	err := r.db.GetContext(ctx, &updated, query, args...)
	if err == nil {
		return &updated, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}
	if update.ExpectedStatus == nil {
		return nil, errors.NotFound("appointment", nil)
	}

	// Nothing matched: either the row is gone or its status moved on.
	var current model.AppointmentStatus
	if err := r.db.GetContext(ctx, &current, `SELECT status FROM appointments WHERE id = $1`, id); err != nil {
		return nil, readError(ctx, err)
	}
	return nil, errors.Conflict("appointment status changed concurrently",
		fmt.Errorf("expected %s, found %s", *update.ExpectedStatus, current))
}

func (r *appointmentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.NotFound("appointment", nil)
	}
	return nil
}

func (r *appointmentRepository) selectMany(ctx context.Context, query string, args ...interface{}) ([]*model.Appointment, error) {
	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, readError(ctx, err)
	}
	return appointments, nil
}
