package scheduling

import (
	"bytes"
	"encoding/json"
	"time"
)

// Appointment statuses. Cancelled is terminal for conflict purposes; rows are
// never physically deleted.
const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

// ResourceType identifies the kind of resource a booking reserves. The set is
// closed; every switch over it lists all three members.
type ResourceType string

const (
	ResourceDoctor ResourceType = "doctor"
	ResourceRoom   ResourceType = "room"
	ResourceDevice ResourceType = "device"
)

// BufferSensitive reports whether conflicts for this resource kind are
// evaluated against buffer-expanded ranges. Devices reserve only the raw
// span; whether that asymmetry is product intent is an open question upstream,
// so it lives here as a capability flag instead of being hard-coded at call
// sites.
func (rt ResourceType) BufferSensitive() bool {
	switch rt {
	case ResourceDoctor, ResourceRoom:
		return true
	case ResourceDevice:
		return false
	}
	return false
}

// Display returns the human-readable label used in conflict messages.
func (rt ResourceType) Display() string {
	switch rt {
	case ResourceDoctor:
		return "Doctor"
	case ResourceRoom:
		return "Room"
	case ResourceDevice:
		return "Device"
	}
	return "Resource"
}

// TimeRange is a half-open [Start, End) span.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Conflict describes one resource that is unavailable for a proposed booking.
// Derived at check time, never persisted.
type Conflict struct {
	ResourceType     ResourceType `json:"resource_type"`
	ResourceID       int64        `json:"resource_id"`
	ResourceName     string       `json:"resource_name"`
	AppointmentID    int64        `json:"conflicting_appointment_id"`
	ConflictingRange TimeRange    `json:"conflicting_range"`
}

// Appointment is a tenant-scoped booking. Buffers are copied from the service
// at creation time so later service edits do not change existing bookings.
type Appointment struct {
	ID             int64         `json:"id"`
	TenantID       int64         `json:"tenant_id"`
	DoctorID       int64         `json:"doctor_id"`
	PatientID      int64         `json:"patient_id"`
	ServiceID      int64         `json:"service_id"`
	RoomID         *int64        `json:"room_id"`
	StartsAt       time.Time     `json:"starts_at"`
	EndsAt         time.Time     `json:"ends_at"`
	BufferBefore   time.Duration `json:"-"`
	BufferAfter    time.Duration `json:"-"`
	Status         string        `json:"status"`
	Notes          string        `json:"notes,omitempty"`
	Version        int32         `json:"version"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	DeviceIDs      []int64       `json:"device_ids"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// EffectiveRange returns the buffer-expanded span used for doctor and room
// conflict checks.
func (a *Appointment) EffectiveRange() TimeRange {
	return TimeRange{
		Start: a.StartsAt.Add(-a.BufferBefore),
		End:   a.EndsAt.Add(a.BufferAfter),
	}
}

// ServiceTemplate is the scheduling template resolved from a service record:
// duration, buffers, room requirement, and the doctor/device requirement sets.
type ServiceTemplate struct {
	ID              int64
	TenantID        int64
	Name            string
	DurationMinutes int
	BufferBeforeMin int
	BufferAfterMin  int
	RequiresRoom    bool
	DoctorIDs       []int64
	DeviceIDs       []int64
}

// Duration returns the core appointment length.
func (s *ServiceTemplate) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// BufferBefore returns the lead buffer as a duration.
func (s *ServiceTemplate) BufferBefore() time.Duration {
	return time.Duration(s.BufferBeforeMin) * time.Minute
}

// BufferAfter returns the trailing buffer as a duration.
func (s *ServiceTemplate) BufferAfter() time.Duration {
	return time.Duration(s.BufferAfterMin) * time.Minute
}

// EligibleDoctor reports whether the doctor belongs to the service's
// assigned-doctor set.
func (s *ServiceTemplate) EligibleDoctor(doctorID int64) bool {
	for _, id := range s.DoctorIDs {
		if id == doctorID {
			return true
		}
	}
	return false
}

// Shift is one contiguous working-hours span for a doctor on a weekday,
// expressed as minutes since midnight. Doctors may have several disjoint
// shifts per weekday.
type Shift struct {
	Weekday      time.Weekday
	StartMinutes int
	EndMinutes   int
}

// Break is an absolute blocked range for a doctor. No buffer-expanded
// appointment span may overlap it.
type Break struct {
	ID       int64
	DoctorID int64
	StartsAt time.Time
	EndsAt   time.Time
	Reason   string
}

// Overlaps reports whether the break collides with [start, end).
func (b Break) Overlaps(start, end time.Time) bool {
	return b.StartsAt.Before(end) && b.EndsAt.After(start)
}

// CreateAppointmentRequest is the input DTO for booking creation. Arrives
// validated and tenant-scoped from the request boundary.
type CreateAppointmentRequest struct {
	TenantID       int64     `json:"-"`
	DoctorID       int64     `json:"doctor_id"`
	PatientID      int64     `json:"patient_id"`
	ServiceID      int64     `json:"service_id"`
	RoomID         *int64    `json:"room_id"`
	DeviceIDs      []int64   `json:"device_ids"`
	StartsAt       time.Time `json:"starts_at"`
	Notes          string    `json:"notes,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// Validate checks structural request invariants; business rules live in the
// booking rule validator.
func (r *CreateAppointmentRequest) Validate() error {
	if r.DoctorID <= 0 {
		return &ValidationError{Reason: "doctor_id is required"}
	}
	if r.PatientID <= 0 {
		return &ValidationError{Reason: "patient_id is required"}
	}
	if r.ServiceID <= 0 {
		return &ValidationError{Reason: "service_id is required"}
	}
	if r.StartsAt.IsZero() {
		return &ValidationError{Reason: "starts_at is required"}
	}
	if len(r.IdempotencyKey) > 64 {
		return &ValidationError{Reason: "idempotency_key must be at most 64 characters"}
	}
	return nil
}

// RescheduleAppointmentRequest is the partial update DTO. Absent fields keep
// the current value; room_id distinguishes absent (keep) from null (clear).
type RescheduleAppointmentRequest struct {
	StartsAt     time.Time
	DoctorID     *int64
	RoomID       *int64
	RoomSet      bool
	DeviceIDs    []int64
	DeviceIDsSet bool
}

// UnmarshalJSON preserves the absent-vs-null distinction for room_id and
// device_ids.
func (r *RescheduleAppointmentRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		StartsAt  time.Time       `json:"starts_at"`
		DoctorID  *int64          `json:"doctor_id"`
		RoomID    json.RawMessage `json:"room_id"`
		DeviceIDs json.RawMessage `json:"device_ids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.StartsAt = raw.StartsAt
	r.DoctorID = raw.DoctorID
	if raw.RoomID != nil {
		r.RoomSet = true
		if !bytes.Equal(bytes.TrimSpace(raw.RoomID), []byte("null")) {
			var id int64
			if err := json.Unmarshal(raw.RoomID, &id); err != nil {
				return err
			}
			r.RoomID = &id
		}
	}
	if raw.DeviceIDs != nil && !bytes.Equal(bytes.TrimSpace(raw.DeviceIDs), []byte("null")) {
		r.DeviceIDsSet = true
		if err := json.Unmarshal(raw.DeviceIDs, &r.DeviceIDs); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks structural request invariants.
func (r *RescheduleAppointmentRequest) Validate() error {
	if r.StartsAt.IsZero() {
		return &ValidationError{Reason: "starts_at is required"}
	}
	if r.DoctorID != nil && *r.DoctorID <= 0 {
		return &ValidationError{Reason: "doctor_id must be positive"}
	}
	return nil
}

// ScheduleEntry is a joined calendar row for schedule feeds.
type ScheduleEntry struct {
	ID           int64     `json:"id"`
	DoctorID     int64     `json:"doctor_id"`
	DoctorName   string    `json:"doctor_name"`
	PatientID    int64     `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	ServiceID    int64     `json:"service_id"`
	ServiceName  string    `json:"service_name"`
	ServiceColor string    `json:"service_color,omitempty"`
	RoomID       *int64    `json:"room_id"`
	RoomName     *string   `json:"room_name"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Status       string    `json:"status"`
	Notes        string    `json:"notes,omitempty"`
}

// BookingDetails carries the display fields needed for notifications.
type BookingDetails struct {
	PatientName  string
	PatientEmail string
	DoctorName   string
	ServiceName  string
	RoomName     string
}
