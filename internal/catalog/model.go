package catalog

import (
	"fmt"
	"time"
)

// Doctor is a bookable practitioner.
type Doctor struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Active   bool   `json:"active"`
}

// Patient is the person an appointment is booked for.
type Patient struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Service is a bookable treatment definition. Duration and buffers are
// copied onto appointments at booking time.
type Service struct {
	ID              int64  `json:"id"`
	TenantID        int64  `json:"tenant_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	BufferBeforeMin int    `json:"buffer_before_min"`
	BufferAfterMin  int    `json:"buffer_after_min"`
	RequiresRoom    bool   `json:"requires_room"`
	Color           string `json:"color,omitempty"`
	Active          bool   `json:"active"`
}

// Room is a physical treatment room.
type Room struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
}

// Device is a piece of equipment a service may require.
type Device struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
}

// WorkingHour is one weekly shift, minutes since midnight.
type WorkingHour struct {
	Weekday      time.Weekday `json:"weekday"`
	StartMinutes int          `json:"start_minutes"`
	EndMinutes   int          `json:"end_minutes"`
}

// Break is an absolute blocked range for a doctor.
type Break struct {
	ID       int64     `json:"id"`
	DoctorID int64     `json:"doctor_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Reason   string    `json:"reason,omitempty"`
}

// CreateDoctorRequest is the doctor creation payload.
type CreateDoctorRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate checks required fields.
func (r *CreateDoctorRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// CreatePatientRequest is the patient creation payload.
type CreatePatientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Validate checks required fields.
func (r *CreatePatientRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// CreateServiceRequest is the service creation payload.
type CreateServiceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	BufferBeforeMin int    `json:"buffer_before_min"`
	BufferAfterMin  int    `json:"buffer_after_min"`
	RequiresRoom    bool   `json:"requires_room"`
	Color           string `json:"color"`
}

// Validate checks the duration and buffer ranges.
func (r *CreateServiceRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive")
	}
	if r.BufferBeforeMin < 0 || r.BufferAfterMin < 0 {
		return fmt.Errorf("buffers must not be negative")
	}
	return nil
}

// CreateRoomRequest is the room creation payload.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// Validate checks required fields.
func (r *CreateRoomRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// CreateDeviceRequest is the device creation payload.
type CreateDeviceRequest struct {
	Name string `json:"name"`
}

// Validate checks required fields.
func (r *CreateDeviceRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// SetWorkingHoursRequest replaces a doctor's weekly shifts.
type SetWorkingHoursRequest struct {
	Hours []WorkingHour `json:"hours"`
}

// Validate checks shift ranges and weekday bounds.
func (r *SetWorkingHoursRequest) Validate() error {
	for _, h := range r.Hours {
		if h.Weekday < time.Sunday || h.Weekday > time.Saturday {
			return fmt.Errorf("weekday out of range: %d", h.Weekday)
		}
		if h.StartMinutes < 0 || h.EndMinutes > 24*60 || h.StartMinutes >= h.EndMinutes {
			return fmt.Errorf("invalid shift %d-%d", h.StartMinutes, h.EndMinutes)
		}
	}
	return nil
}

// CreateBreakRequest adds one blocked range for a doctor.
type CreateBreakRequest struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Reason   string    `json:"reason"`
}

// Validate checks the range ordering.
func (r *CreateBreakRequest) Validate() error {
	if r.StartsAt.IsZero() || r.EndsAt.IsZero() {
		return fmt.Errorf("starts_at and ends_at are required")
	}
	if !r.EndsAt.After(r.StartsAt) {
		return fmt.Errorf("ends_at must be after starts_at")
	}
	return nil
}

// AssignIDsRequest replaces a service's doctor or device assignment set.
type AssignIDsRequest struct {
	IDs []int64 `json:"ids"`
}

// Validate rejects non-positive ids.
func (r *AssignIDsRequest) Validate() error {
	for _, id := range r.IDs {
		if id <= 0 {
			return fmt.Errorf("ids must be positive")
		}
	}
	return nil
}
