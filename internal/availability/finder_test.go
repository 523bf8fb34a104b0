package availability

import (
	"context"
	"testing"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/interval"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

type fakeLoader struct {
	template *scheduling.ServiceTemplate
	names    map[int64]string
	shifts   map[int64][]scheduling.Shift
	breaks   map[int64][]scheduling.Break
	busy     *interval.Index[int64]
	rooms    []Room
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		template: laserService(),
		names:    map[int64]string{7: "Dr. Ada"},
		shifts: map[int64][]scheduling.Shift{
			7: {{Weekday: time.Monday, StartMinutes: 9 * 60, EndMinutes: 17 * 60}},
		},
		busy: interval.NewIndex[int64](),
	}
}

func (f *fakeLoader) GetServiceTemplate(_ context.Context, _, serviceID int64) (*scheduling.ServiceTemplate, error) {
	if f.template == nil || f.template.ID != serviceID {
		return nil, &scheduling.NotFoundError{Resource: "service"}
	}
	return f.template, nil
}

func (f *fakeLoader) TenantTimezone(context.Context, int64) (string, error) { return "UTC", nil }

func (f *fakeLoader) DoctorNames(_ context.Context, _ int64, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if name, ok := f.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (f *fakeLoader) ShiftsForDoctors(context.Context, int64, []int64) (map[int64][]scheduling.Shift, error) {
	return f.shifts, nil
}

func (f *fakeLoader) BreaksInWindow(context.Context, int64, []int64, time.Time, time.Time) (map[int64][]scheduling.Break, error) {
	return f.breaks, nil
}

func (f *fakeLoader) BusyIndexes(context.Context, int64, time.Time, time.Time) (*interval.Index[int64], *interval.Index[int64], error) {
	return f.busy, interval.NewIndex[int64](), nil
}

func (f *fakeLoader) DeviceBusyIndex(context.Context, int64, []int64, time.Time, time.Time) (*interval.Index[int64], error) {
	return interval.NewIndex[int64](), nil
}

func (f *fakeLoader) ActiveRooms(context.Context, int64) ([]Room, error) {
	return f.rooms, nil
}

func newTestFinder(loader *fakeLoader) *Finder {
	return NewFinder(loader, logging.New("error"), FinderOptions{})
}

func TestFinderDefaultLimit(t *testing.T) {
	finder := newTestFinder(newFakeLoader())

	slots, err := finder.FindSlots(context.Background(), SearchRequest{
		TenantID: 1, ServiceID: 5, From: monday, To: monday.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("find slots: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("default limit should yield 3 slots, got %d", len(slots))
	}
	if slots[0].DoctorName != "Dr. Ada" {
		t.Fatalf("slot = %+v", slots[0])
	}
}

func TestFinderDoctorFilterIntersectsEligibility(t *testing.T) {
	finder := newTestFinder(newFakeLoader())

	// Doctor 9 is not assigned to the service; the intersection is empty.
	slots, err := finder.FindSlots(context.Background(), SearchRequest{
		TenantID: 1, ServiceID: 5, From: monday, To: monday.AddDate(0, 0, 1),
		DoctorIDs: []int64{9},
	})
	if err != nil {
		t.Fatalf("find slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %+v", slots)
	}
}

func TestFinderDropsInactiveDoctors(t *testing.T) {
	loader := newFakeLoader()
	delete(loader.names, 7)
	finder := newTestFinder(loader)

	slots, err := finder.FindSlots(context.Background(), SearchRequest{
		TenantID: 1, ServiceID: 5, From: monday, To: monday.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("find slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("inactive doctor must yield no slots, got %+v", slots)
	}
}

func TestFinderUnknownService(t *testing.T) {
	finder := newTestFinder(newFakeLoader())

	_, err := finder.FindSlots(context.Background(), SearchRequest{
		TenantID: 1, ServiceID: 99, From: monday, To: monday.AddDate(0, 0, 1),
	})
	if err == nil {
		t.Fatal("expected not found error")
	}
}

func TestFinderSlotCarriesRoomAndDevices(t *testing.T) {
	loader := newFakeLoader()
	loader.template.RequiresRoom = true
	loader.template.DeviceIDs = []int64{11}
	loader.rooms = []Room{{ID: 2, Name: "Laser 1"}}
	finder := newTestFinder(loader)

	slots, err := finder.FindSlots(context.Background(), SearchRequest{
		TenantID: 1, ServiceID: 5, From: monday, To: monday.AddDate(0, 0, 1), Limit: 1,
	})
	if err != nil {
		t.Fatalf("find slots: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected one slot, got %d", len(slots))
	}
	if slots[0].RoomID == nil || *slots[0].RoomID != 2 || slots[0].RoomName != "Laser 1" {
		t.Fatalf("slot should carry the selected room, got %+v", slots[0])
	}
	if len(slots[0].DeviceIDs) != 1 || slots[0].DeviceIDs[0] != 11 {
		t.Fatalf("slot should carry required devices, got %+v", slots[0].DeviceIDs)
	}
}

func TestFinderBusySpillSkipsSlot(t *testing.T) {
	loader := newFakeLoader()
	// Booking 10:00-10:30 (5m/10m buffers) occupies 09:55-10:40.
	loader.busy.Add(7, at(9, 55), at(10, 40))
	finder := newTestFinder(loader)

	slots, err := finder.FindSlots(context.Background(), SearchRequest{
		TenantID: 1, ServiceID: 5, From: at(10, 0), To: monday.AddDate(0, 0, 1), Limit: 1,
	})
	if err != nil {
		t.Fatalf("find slots: %v", err)
	}
	if len(slots) != 1 || !slots[0].StartsAt.Equal(at(10, 45)) {
		t.Fatalf("slots = %+v, want first at 10:45", slots)
	}
}
