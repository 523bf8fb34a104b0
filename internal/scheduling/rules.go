package scheduling

import (
	"fmt"
	"time"
)

// BookingCandidate bundles the data a rule check needs. The caller loads it
// up front; validation itself performs no I/O.
type BookingCandidate struct {
	Service   *ServiceTemplate
	DoctorID  int64
	RoomID    *int64
	DeviceIDs []int64
	StartsAt  time.Time
	EndsAt    time.Time
	Shifts    []Shift
	Breaks    []Break
}

// BookingRules enforces business preconditions in order, short-circuiting on
// the first failure. Location is the reference frame for weekday and
// working-hours arithmetic; nil means UTC.
type BookingRules struct {
	Location *time.Location
}

// Validate runs room requirement, doctor eligibility, working-hours
// containment, break overlap, and required-device coverage. Every rejection
// is a *ValidationError.
func (r BookingRules) Validate(c BookingCandidate) error {
	if c.Service.RequiresRoom && c.RoomID == nil {
		return &ValidationError{Reason: fmt.Sprintf("service %q requires a room", c.Service.Name)}
	}

	if !c.Service.EligibleDoctor(c.DoctorID) {
		return &ValidationError{Reason: fmt.Sprintf("doctor %d is not assigned to service %q", c.DoctorID, c.Service.Name)}
	}

	if err := r.checkWorkingHours(c); err != nil {
		return err
	}

	expandedStart := c.StartsAt.Add(-c.Service.BufferBefore())
	expandedEnd := c.EndsAt.Add(c.Service.BufferAfter())
	for _, b := range c.Breaks {
		if b.DoctorID == c.DoctorID && b.Overlaps(expandedStart, expandedEnd) {
			return &ValidationError{Reason: fmt.Sprintf(
				"appointment overlaps a scheduled break (%s - %s)",
				b.StartsAt.Format("15:04"), b.EndsAt.Format("15:04"))}
		}
	}

	for _, required := range c.Service.DeviceIDs {
		if !containsID(c.DeviceIDs, required) {
			return &ValidationError{Reason: fmt.Sprintf("service %q requires device %d", c.Service.Name, required)}
		}
	}

	return nil
}

// checkWorkingHours verifies the core span (not buffer-expanded) fits
// entirely inside at least one of the doctor's shifts for that weekday.
func (r BookingRules) checkWorkingHours(c BookingCandidate) error {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	local := c.StartsAt.In(loc)
	weekday := local.Weekday()

	startMinutes := local.Hour()*60 + local.Minute()
	endMinutes := startMinutes + int(c.EndsAt.Sub(c.StartsAt)/time.Minute)

	var dayShifts []Shift
	for _, shift := range c.Shifts {
		if shift.Weekday == weekday {
			dayShifts = append(dayShifts, shift)
		}
	}
	if len(dayShifts) == 0 {
		return &ValidationError{Reason: fmt.Sprintf("doctor %d has no working hours on %s", c.DoctorID, weekday)}
	}
	for _, shift := range dayShifts {
		if startMinutes >= shift.StartMinutes && endMinutes <= shift.EndMinutes {
			return nil
		}
	}
	return &ValidationError{Reason: fmt.Sprintf(
		"appointment %02d:%02d-%02d:%02d is outside the doctor's working hours",
		startMinutes/60, startMinutes%60, endMinutes/60, endMinutes%60)}
}

func containsID(ids []int64, want int64) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}
