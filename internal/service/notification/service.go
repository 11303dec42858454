// Package notification turns published appointment events into e-mails.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwalitptl/appointment-engine/internal/email"
	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/messaging"
)

// Channels are the event types that produce mail.
var Channels = []string{
	model.EventAppointmentBooked,
	model.StatusEventType(model.AppointmentStatusCancelled),
}

type Config struct {
	// PatientAddress and DoctorAddress are fmt templates taking the user id.
	PatientAddress string
	DoctorAddress  string
	Location       *time.Location
}

type Service struct {
	emailSvc email.Service
	broker   messaging.Broker
	cfg      Config
	log      *logger.Logger
}

func NewService(emailSvc email.Service, broker messaging.Broker, cfg Config, log *logger.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{emailSvc: emailSvc, broker: broker, cfg: cfg, log: log}
}

// Run consumes appointment events until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("Starting appointment notifier", "channels", Channels)
	return messaging.Consume(ctx, s.broker, s.Handle, func(msg messaging.Message, err error) {
		s.log.Error(err, "Failed to send notification", "channel", msg.Channel)
	}, Channels...)
}

// Handle sends the mails for one event. Every recipient is attempted; the
// first failure is returned.
func (s *Service) Handle(ctx context.Context, msg messaging.Message) error {
	var evt model.AppointmentEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("invalid event payload: %w", err)
	}

	var firstErr error
	for _, n := range s.Compose(msg.Channel, evt) {
		if err := s.emailSvc.SendCustom(ctx, n.Recipient, n.Subject, n.Content); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.log.Debug("notification sent", "event_type", n.EventType, "appointment_id", n.AppointmentID, "to", n.Recipient)
	}
	return firstErr
}

// Compose builds the mails for an event. Bookings notify both parties; a
// cancellation notifies whoever did not cancel.
func (s *Service) Compose(eventType string, evt model.AppointmentEvent) []model.Notification {
	when := evt.ScheduledAt.In(s.cfg.Location).Format("Monday 2 January 2006 at 15:04")
	patientTo := fmt.Sprintf(s.cfg.PatientAddress, evt.PatientID)
	doctorTo := fmt.Sprintf(s.cfg.DoctorAddress, evt.DoctorID)

	notify := func(to, subject, body string) model.Notification {
		return model.Notification{
			EventType:     eventType,
			AppointmentID: evt.AppointmentID,
			Recipient:     to,
			Subject:       subject,
			Content:       body,
		}
	}

	switch eventType {
	case model.EventAppointmentBooked:
		return []model.Notification{
			notify(patientTo, "Appointment booked",
				fmt.Sprintf("Your appointment #%d is booked for %s.", evt.AppointmentID, when)),
			notify(doctorTo, "New appointment",
				fmt.Sprintf("Appointment #%d with patient %d was booked for %s.", evt.AppointmentID, evt.PatientID, when)),
		}
	case model.StatusEventType(model.AppointmentStatusCancelled):
		out := []model.Notification{}
		if evt.Actor.Role != model.RolePatient || evt.Actor.UserID != evt.PatientID {
			out = append(out, notify(patientTo, "Appointment cancelled",
				fmt.Sprintf("Your appointment #%d on %s was cancelled.", evt.AppointmentID, when)))
		}
		if evt.Actor.Role != model.RoleDoctor || evt.Actor.UserID != evt.DoctorID {
			out = append(out, notify(doctorTo, "Appointment cancelled",
				fmt.Sprintf("Appointment #%d with patient %d on %s was cancelled.", evt.AppointmentID, evt.PatientID, when)))
		}
		return out
	}
	return nil
}
