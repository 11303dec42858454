package model

import (
	"time"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled  AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed  AppointmentStatus = "confirmed"
	AppointmentStatusInProgress AppointmentStatus = "in_progress"
	AppointmentStatusCompleted  AppointmentStatus = "completed"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"
	AppointmentStatusNoShow     AppointmentStatus = "no_show"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
	AppointmentStatusInProgress,
	AppointmentStatusCompleted,
	AppointmentStatusCancelled,
	AppointmentStatusNoShow,
}

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled || s == AppointmentStatusNoShow
}

// BlocksSlot reports whether an appointment in this status occupies its interval.
func (s AppointmentStatus) BlocksSlot() bool {
	return s != AppointmentStatusCancelled && s != AppointmentStatusNoShow
}

// DefaultDurationMinutes is used when a booking does not specify a duration.
const DefaultDurationMinutes = 30

type Appointment struct {
	ID              int64             `db:"id" json:"id"`
	PatientID       int64             `db:"patient_id" json:"patient_id"`
	DoctorID        int64             `db:"doctor_id" json:"doctor_id"`
	ScheduledAt     time.Time         `db:"scheduled_at" json:"appointment_date"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Reason          *string           `db:"reason" json:"reason,omitempty"`
	Symptoms        *string           `db:"symptoms" json:"symptoms,omitempty"`
	Diagnosis       *string           `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes           *string           `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(a.Duration())
}

// Overlaps reports whether [ScheduledAt, EndsAt) intersects [start, end).
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.ScheduledAt.Before(end) && start.Before(a.EndsAt())
}

// IsActive reports whether the appointment still holds its slot.
func (a *Appointment) IsActive() bool {
	return a.Status.BlocksSlot()
}

// Clone returns a deep copy, including the optional text fields.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	c := *a
	c.Reason = cloneString(a.Reason)
	c.Symptoms = cloneString(a.Symptoms)
	c.Diagnosis = cloneString(a.Diagnosis)
	c.Notes = cloneString(a.Notes)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// AppointmentUpdate is a partial update. A non-nil ExpectedStatus makes the
// update conditional on the persisted status (compare-and-swap).
type AppointmentUpdate struct {
	ExpectedStatus *AppointmentStatus
	Status         *AppointmentStatus
	Reason         *string
	Symptoms       *string
	Diagnosis      *string
	Notes          *string
}

// Apply copies the set fields of u onto a.
func (u AppointmentUpdate) Apply(a *Appointment) {
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Reason != nil {
		a.Reason = cloneString(u.Reason)
	}
	if u.Symptoms != nil {
		a.Symptoms = cloneString(u.Symptoms)
	}
	if u.Diagnosis != nil {
		a.Diagnosis = cloneString(u.Diagnosis)
	}
	if u.Notes != nil {
		a.Notes = cloneString(u.Notes)
	}
}

// HasFieldChanges reports whether u touches any free-text field.
func (u AppointmentUpdate) HasFieldChanges() bool {
	return u.Reason != nil || u.Symptoms != nil || u.Diagnosis != nil || u.Notes != nil
}

type CreateAppointmentRequest struct {
	PatientID       int64  `json:"patient_id"`
	DoctorID        int64  `json:"doctor_id" binding:"required,gt=0"`
	Date            string `json:"date" binding:"required,date"`
	Time            string `json:"time" binding:"required,hhmm"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,gt=0,lte=240"`
	Reason          string `json:"reason" binding:"max=1000"`
	Symptoms        string `json:"symptoms" binding:"max=2000"`
	Notes           string `json:"notes" binding:"max=2000"`
}

type UpdateAppointmentRequest struct {
	Reason    *string `json:"reason" binding:"omitempty,max=1000"`
	Symptoms  *string `json:"symptoms" binding:"omitempty,max=2000"`
	Diagnosis *string `json:"diagnosis" binding:"omitempty,max=2000"`
	Notes     *string `json:"notes" binding:"omitempty,max=2000"`
}

type TransitionRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,oneof=scheduled confirmed in_progress completed cancelled no_show"`
}

// StatusSummary counts appointments per status.
type StatusSummary map[AppointmentStatus]int

// Summarize counts appointments per status; every status is present.
func Summarize(appointments []*Appointment) StatusSummary {
	summary := make(StatusSummary, len(AllStatuses))
	for _, s := range AllStatuses {
		summary[s] = 0
	}
	for _, a := range appointments {
		summary[a.Status]++
	}
	return summary
}

// PatientView splits a patient's appointments the way the patient portal lists them.
type PatientView struct {
	Upcoming []*Appointment `json:"upcoming"`
	History  []*Appointment `json:"history"`
	Missed   []*Appointment `json:"missed"`
}

func GroupForPatient(appointments []*Appointment) PatientView {
	view := PatientView{
		Upcoming: []*Appointment{},
		History:  []*Appointment{},
		Missed:   []*Appointment{},
	}
	for _, a := range appointments {
		switch a.Status {
		case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusInProgress:
			view.Upcoming = append(view.Upcoming, a)
		case AppointmentStatusCompleted:
			view.History = append(view.History, a)
		case AppointmentStatusCancelled, AppointmentStatusNoShow:
			view.Missed = append(view.Missed, a)
		}
	}
	return view
}
