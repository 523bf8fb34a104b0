package notify

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// DetailsLoader resolves display fields for an appointment. The scheduling
// store implements it.
type DetailsLoader interface {
	BookingDetails(ctx context.Context, tenantID, appointmentID int64) (*scheduling.BookingDetails, error)
}

// Service sends patient-facing booking emails. Every send is best effort: a
// failure is logged and never propagated to the booking flow.
type Service struct {
	email   EmailSender
	details DetailsLoader
	logger  *logging.Logger
}

// NewService creates the notification service.
func NewService(email EmailSender, details DetailsLoader, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, details: details, logger: logger}
}

// AppointmentCreated emails a booking confirmation.
func (s *Service) AppointmentCreated(ctx context.Context, appt *scheduling.Appointment) {
	s.send(ctx, appt, "Appointment confirmed",
		"Your %s appointment with %s on %s is confirmed.")
}

// AppointmentRescheduled emails the new time.
func (s *Service) AppointmentRescheduled(ctx context.Context, appt *scheduling.Appointment) {
	s.send(ctx, appt, "Appointment rescheduled",
		"Your %s appointment with %s has been moved to %s.")
}

// AppointmentCancelled emails a cancellation notice.
func (s *Service) AppointmentCancelled(ctx context.Context, appt *scheduling.Appointment) {
	s.send(ctx, appt, "Appointment cancelled",
		"Your %s appointment with %s on %s has been cancelled.")
}

func (s *Service) send(ctx context.Context, appt *scheduling.Appointment, subject, bodyFormat string) {
	if s.email == nil || s.details == nil || appt == nil {
		return
	}

	details, err := s.details.BookingDetails(ctx, appt.TenantID, appt.ID)
	if err != nil {
		s.logger.Error("notify: load booking details failed",
			"appointment_id", appt.ID, "error", err)
		return
	}
	if details.PatientEmail == "" {
		s.logger.Debug("notify: patient has no email", "appointment_id", appt.ID)
		return
	}

	when := appt.StartsAt.Format("Monday, January 2 at 3:04 PM")
	body := fmt.Sprintf(bodyFormat, details.ServiceName, details.DoctorName, when)
	if details.RoomName != "" {
		body += fmt.Sprintf(" Room: %s.", details.RoomName)
	}

	msg := EmailMessage{
		To:      details.PatientEmail,
		ToName:  details.PatientName,
		Subject: subject,
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: email send failed",
			"appointment_id", appt.ID, "subject", subject, "error", err)
	}
}
