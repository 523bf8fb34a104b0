package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

type fakeSender struct {
	sent []EmailMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg EmailMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeDetails struct {
	details *scheduling.BookingDetails
	err     error
}

func (f *fakeDetails) BookingDetails(context.Context, int64, int64) (*scheduling.BookingDetails, error) {
	return f.details, f.err
}

func testAppointment() *scheduling.Appointment {
	return &scheduling.Appointment{
		ID:       42,
		TenantID: 1,
		StartsAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
	}
}

func TestServiceSendsConfirmation(t *testing.T) {
	sender := &fakeSender{}
	details := &fakeDetails{details: &scheduling.BookingDetails{
		PatientName:  "Grace H",
		PatientEmail: "grace@example.test",
		DoctorName:   "Dr. Ada",
		ServiceName:  "Laser Hair Removal",
		RoomName:     "Laser 1",
	}}
	svc := NewService(sender, details, logging.New("error"))

	svc.AppointmentCreated(context.Background(), testAppointment())

	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d emails", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "grace@example.test" || msg.Subject != "Appointment confirmed" {
		t.Fatalf("message = %+v", msg)
	}
	for _, want := range []string{"Laser Hair Removal", "Dr. Ada", "Monday, March 2", "Room: Laser 1"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body %q missing %q", msg.Body, want)
		}
	}
}

func TestServiceSkipsWithoutEmail(t *testing.T) {
	sender := &fakeSender{}
	details := &fakeDetails{details: &scheduling.BookingDetails{PatientName: "Grace H"}}
	svc := NewService(sender, details, logging.New("error"))

	svc.AppointmentCancelled(context.Background(), testAppointment())

	if len(sender.sent) != 0 {
		t.Fatalf("expected no email, sent %d", len(sender.sent))
	}
}

func TestServiceSwallowsSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("ses down")}
	details := &fakeDetails{details: &scheduling.BookingDetails{
		PatientEmail: "grace@example.test",
	}}
	svc := NewService(sender, details, logging.New("error"))

	// Must not panic or propagate; the booking already committed.
	svc.AppointmentRescheduled(context.Background(), testAppointment())
}

func TestServiceSwallowsDetailsErrors(t *testing.T) {
	sender := &fakeSender{}
	details := &fakeDetails{err: errors.New("db down")}
	svc := NewService(sender, details, logging.New("error"))

	svc.AppointmentCreated(context.Background(), testAppointment())

	if len(sender.sent) != 0 {
		t.Fatalf("expected no email, sent %d", len(sender.sent))
	}
}

func TestStubSenderNoop(t *testing.T) {
	stub := NewStubEmailSender(logging.New("error"))
	if err := stub.Send(context.Background(), EmailMessage{To: "x@example.test"}); err != nil {
		t.Fatalf("stub send: %v", err)
	}
}
