package model

// Notification is one outgoing e-mail derived from an appointment event.
type Notification struct {
	EventType     string
	AppointmentID int64
	Recipient     string
	Subject       string
	Content       string
}
