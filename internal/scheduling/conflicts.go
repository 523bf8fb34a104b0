package scheduling

import (
	"context"
	"time"
)

// conflictProber is the slice of the store the checker reads from.
type conflictProber interface {
	DoctorConflict(ctx context.Context, tenantID, doctorID int64, start, end time.Time, excludeID int64) (*Conflict, error)
	RoomConflict(ctx context.Context, tenantID, roomID int64, start, end time.Time, excludeID int64) (*Conflict, error)
	DeviceConflict(ctx context.Context, tenantID, deviceID int64, start, end time.Time, excludeID int64) (*Conflict, error)
}

// ConflictCheckParams describes a proposed booking to probe for collisions.
type ConflictCheckParams struct {
	TenantID             int64
	DoctorID             int64
	RoomID               *int64
	DeviceIDs            []int64
	StartsAt             time.Time
	EndsAt               time.Time
	BufferBefore         time.Duration
	BufferAfter          time.Duration
	ExcludeAppointmentID int64
}

// queryRange returns the span probed for the given resource kind: the
// buffer-expanded range for buffer-sensitive resources, the raw core span
// otherwise.
func (p ConflictCheckParams) queryRange(rt ResourceType) (time.Time, time.Time) {
	if rt.BufferSensitive() {
		return p.StartsAt.Add(-p.BufferBefore), p.EndsAt.Add(p.BufferAfter)
	}
	return p.StartsAt, p.EndsAt
}

// ConflictChecker reports every resource in conflict with a proposed booking.
// Pure read; at most one conflict per resource is reported, in doctor, room,
// device-request order.
type ConflictChecker struct {
	store conflictProber
}

// NewConflictChecker creates a checker over the given store.
func NewConflictChecker(store conflictProber) *ConflictChecker {
	if store == nil {
		panic("scheduling: conflict store required")
	}
	return &ConflictChecker{store: store}
}

// FindConflicts probes the doctor, the room (when supplied), and each
// requested device, returning the union of collisions found.
func (c *ConflictChecker) FindConflicts(ctx context.Context, p ConflictCheckParams) ([]Conflict, error) {
	var conflicts []Conflict

	start, end := p.queryRange(ResourceDoctor)
	if conflict, err := c.store.DoctorConflict(ctx, p.TenantID, p.DoctorID, start, end, p.ExcludeAppointmentID); err != nil {
		return nil, err
	} else if conflict != nil {
		conflicts = append(conflicts, *conflict)
	}

	if p.RoomID != nil {
		start, end := p.queryRange(ResourceRoom)
		if conflict, err := c.store.RoomConflict(ctx, p.TenantID, *p.RoomID, start, end, p.ExcludeAppointmentID); err != nil {
			return nil, err
		} else if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}

	for _, deviceID := range p.DeviceIDs {
		start, end := p.queryRange(ResourceDevice)
		if conflict, err := c.store.DeviceConflict(ctx, p.TenantID, deviceID, start, end, p.ExcludeAppointmentID); err != nil {
			return nil, err
		} else if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}

	return conflicts, nil
}
