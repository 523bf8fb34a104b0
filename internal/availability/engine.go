package availability

import (
	"sort"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/interval"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// Slot is one bookable opening for a doctor. Room fields are set only for
// room-requiring services; DeviceIDs carries the service's required devices.
type Slot struct {
	DoctorID   int64     `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	RoomID     *int64    `json:"room_id,omitempty"`
	RoomName   string    `json:"room_name,omitempty"`
	DeviceIDs  []int64   `json:"device_ids"`
}

// Room is one active treatment room considered by the search.
type Room struct {
	ID   int64
	Name string
}

// Doctor bundles one candidate doctor's search inputs.
type Doctor struct {
	ID     int64
	Name   string
	Shifts []scheduling.Shift
	Breaks []scheduling.Break
}

// SearchData is everything the engine scans. All busy intervals are preloaded;
// the search itself performs no I/O. Doctor and room intervals are
// buffer-expanded, device intervals are raw spans.
type SearchData struct {
	Service    *scheduling.ServiceTemplate
	Doctors    []Doctor
	Rooms      []Room
	DoctorBusy *interval.Index[int64]
	RoomBusy   *interval.Index[int64]
	DeviceBusy *interval.Index[int64]
}

// Engine finds open slots on a fixed start-time grid.
type Engine struct {
	// Grid is the slot start alignment, typically 15 minutes.
	Grid time.Duration
	// Location is the reference frame for weekday and shift arithmetic.
	Location *time.Location
}

// Search walks [from, to) day by day per doctor and returns up to limit open
// slots ordered by start time. A slot is open when the doctor's buffer-expanded
// span is free, no break overlaps it, every required device is free over the
// raw span, and (for room-requiring services) at least one room is free.
func (e *Engine) Search(data SearchData, from, to time.Time, limit int) []Slot {
	if limit <= 0 || data.Service == nil {
		return nil
	}
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}
	grid := e.Grid
	if grid <= 0 {
		grid = 15 * time.Minute
	}

	duration := data.Service.Duration()
	bufferBefore := data.Service.BufferBefore()
	bufferAfter := data.Service.BufferAfter()
	// The whole occupied span, counted from the slot start, must fit inside
	// the shift.
	total := bufferBefore + duration + bufferAfter

	var slots []Slot
	for _, doctor := range data.Doctors {
		found := 0
		day := time.Date(from.In(loc).Year(), from.In(loc).Month(), from.In(loc).Day(), 0, 0, 0, 0, loc)
		for ; day.Before(to) && found < limit; day = day.AddDate(0, 0, 1) {
			weekday := day.Weekday()
			for _, shift := range doctor.Shifts {
				if shift.Weekday != weekday || found >= limit {
					continue
				}
				shiftStart := day.Add(time.Duration(shift.StartMinutes) * time.Minute)
				shiftEnd := day.Add(time.Duration(shift.EndMinutes) * time.Minute)

				cursor := shiftStart
				if from.After(cursor) {
					cursor = from
				}
				cursor = quantizeUp(cursor, grid)

				for found < limit {
					slotEnd := cursor.Add(duration)
					if cursor.Add(total).After(shiftEnd) || slotEnd.After(to) {
						break
					}

					expandedStart := cursor.Add(-bufferBefore)
					expandedEnd := slotEnd.Add(bufferAfter)

					if busy, ok := data.DoctorBusy.FirstOverlap(doctor.ID, expandedStart, expandedEnd); ok {
						// Jump past the busy interval instead of crawling
						// through it grid step by grid step.
						next := quantizeUp(busy.End.Add(bufferBefore), grid)
						if !next.After(cursor) {
							next = cursor.Add(grid)
						}
						cursor = next
						continue
					}
					if overlapsBreak(doctor.Breaks, doctor.ID, expandedStart, expandedEnd) ||
						!devicesFree(data, cursor, slotEnd) {
						cursor = cursor.Add(grid)
						continue
					}
					room, ok := pickRoom(data, expandedStart, expandedEnd)
					if !ok {
						cursor = cursor.Add(grid)
						continue
					}

					slot := Slot{
						DoctorID:   doctor.ID,
						DoctorName: doctor.Name,
						StartsAt:   cursor.UTC(),
						EndsAt:     slotEnd.UTC(),
						DeviceIDs:  append([]int64{}, data.Service.DeviceIDs...),
					}
					if room != nil {
						id := room.ID
						slot.RoomID = &id
						slot.RoomName = room.Name
					}
					slots = append(slots, slot)
					found++
					cursor = cursor.Add(grid)
				}
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].StartsAt.Equal(slots[j].StartsAt) {
			return slots[i].StartsAt.Before(slots[j].StartsAt)
		}
		return slots[i].DoctorID < slots[j].DoctorID
	})
	if len(slots) > limit {
		slots = slots[:limit]
	}
	return slots
}

func overlapsBreak(breaks []scheduling.Break, doctorID int64, start, end time.Time) bool {
	for _, b := range breaks {
		if b.DoctorID == doctorID && b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func devicesFree(data SearchData, start, end time.Time) bool {
	for _, deviceID := range data.Service.DeviceIDs {
		if data.DeviceBusy.Busy(deviceID, start, end) {
			return false
		}
	}
	return true
}

// pickRoom selects the first active room free over the expanded span. Services
// without a room requirement get a nil room and ok.
func pickRoom(data SearchData, start, end time.Time) (*Room, bool) {
	if !data.Service.RequiresRoom {
		return nil, true
	}
	for i := range data.Rooms {
		if !data.RoomBusy.Busy(data.Rooms[i].ID, start, end) {
			return &data.Rooms[i], true
		}
	}
	return nil, false
}

// quantizeUp rounds t up to the next grid boundary. Grid boundaries align to
// the wall clock (:00, :15, :30, :45 for a 15 minute grid).
func quantizeUp(t time.Time, grid time.Duration) time.Time {
	_, offset := t.Zone()
	adjusted := t.Add(time.Duration(offset) * time.Second)
	rounded := adjusted.Truncate(grid)
	if rounded.Before(adjusted) {
		rounded = rounded.Add(grid)
	}
	return rounded.Add(-time.Duration(offset) * time.Second)
}
