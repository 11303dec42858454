package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Event types emitted after appointment state changes.
const (
	EventAppointmentBooked  = "appointment.booked"
	EventAppointmentDeleted = "appointment.deleted"
	EventAppointmentUpdated = "appointment.updated"
)

// StatusEventType names the event emitted when an appointment enters status.
func StatusEventType(status AppointmentStatus) string {
	return "appointment." + string(status)
}

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// AppointmentEvent is the payload of every appointment.* event.
type AppointmentEvent struct {
	AppointmentID int64             `json:"appointment_id"`
	PatientID     int64             `json:"patient_id"`
	DoctorID      int64             `json:"doctor_id"`
	ScheduledAt   time.Time         `json:"scheduled_at"`
	Status        AppointmentStatus `json:"status"`
	PreviousState AppointmentStatus `json:"previous_status,omitempty"`
	Actor         Actor             `json:"actor"`
	OccurredAt    time.Time         `json:"occurred_at"`
	// Changes holds old/new pairs of edited fields on appointment.updated.
	Changes map[string]interface{} `json:"changes,omitempty"`
}
