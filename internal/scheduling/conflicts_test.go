package scheduling

import (
	"context"
	"testing"
	"time"
)

type probeCall struct {
	resource ResourceType
	id       int64
	start    time.Time
	end      time.Time
	exclude  int64
}

// fakeProber records probe calls and answers from a canned conflict map.
type fakeProber struct {
	calls     []probeCall
	conflicts map[ResourceType]map[int64]*Conflict
}

func (f *fakeProber) answer(rt ResourceType, id int64, start, end time.Time, exclude int64) (*Conflict, error) {
	f.calls = append(f.calls, probeCall{resource: rt, id: id, start: start, end: end, exclude: exclude})
	if byID, ok := f.conflicts[rt]; ok {
		return byID[id], nil
	}
	return nil, nil
}

func (f *fakeProber) DoctorConflict(_ context.Context, _, doctorID int64, start, end time.Time, excludeID int64) (*Conflict, error) {
	return f.answer(ResourceDoctor, doctorID, start, end, excludeID)
}

func (f *fakeProber) RoomConflict(_ context.Context, _, roomID int64, start, end time.Time, excludeID int64) (*Conflict, error) {
	return f.answer(ResourceRoom, roomID, start, end, excludeID)
}

func (f *fakeProber) DeviceConflict(_ context.Context, _, deviceID int64, start, end time.Time, excludeID int64) (*Conflict, error) {
	return f.answer(ResourceDevice, deviceID, start, end, excludeID)
}

func checkParams() ConflictCheckParams {
	roomID := int64(2)
	return ConflictCheckParams{
		TenantID:     1,
		DoctorID:     7,
		RoomID:       &roomID,
		DeviceIDs:    []int64{11, 12},
		StartsAt:     monday10,
		EndsAt:       monday10.Add(30 * time.Minute),
		BufferBefore: 5 * time.Minute,
		BufferAfter:  10 * time.Minute,
	}
}

func TestConflictCheckerProbeRanges(t *testing.T) {
	prober := &fakeProber{}
	checker := NewConflictChecker(prober)

	conflicts, err := checker.FindConflicts(context.Background(), checkParams())
	if err != nil {
		t.Fatalf("find conflicts: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", conflicts)
	}
	if len(prober.calls) != 4 {
		t.Fatalf("expected 4 probes, got %d", len(prober.calls))
	}

	expandedStart := monday10.Add(-5 * time.Minute)
	expandedEnd := monday10.Add(40 * time.Minute)
	for _, call := range prober.calls[:2] {
		if !call.start.Equal(expandedStart) || !call.end.Equal(expandedEnd) {
			t.Fatalf("%s probe range = %v-%v, want buffer-expanded", call.resource, call.start, call.end)
		}
	}
	for _, call := range prober.calls[2:] {
		if call.resource != ResourceDevice {
			t.Fatalf("trailing probes must be devices, got %s", call.resource)
		}
		if !call.start.Equal(monday10) || !call.end.Equal(monday10.Add(30*time.Minute)) {
			t.Fatalf("device probe range = %v-%v, want raw span", call.start, call.end)
		}
	}
}

func TestConflictCheckerOrderAndUnion(t *testing.T) {
	prober := &fakeProber{conflicts: map[ResourceType]map[int64]*Conflict{
		ResourceDoctor: {7: {ResourceType: ResourceDoctor, ResourceID: 7, ResourceName: "Dr. Ada", AppointmentID: 42}},
		ResourceDevice: {12: {ResourceType: ResourceDevice, ResourceID: 12, ResourceName: "IPL-2", AppointmentID: 43}},
	}}
	checker := NewConflictChecker(prober)

	conflicts, err := checker.FindConflicts(context.Background(), checkParams())
	if err != nil {
		t.Fatalf("find conflicts: %v", err)
	}
	if len(conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %v", conflicts)
	}
	if conflicts[0].ResourceType != ResourceDoctor || conflicts[1].ResourceType != ResourceDevice {
		t.Fatalf("conflict order = %s, %s", conflicts[0].ResourceType, conflicts[1].ResourceType)
	}
}

func TestConflictCheckerSkipsNilRoom(t *testing.T) {
	prober := &fakeProber{}
	checker := NewConflictChecker(prober)

	p := checkParams()
	p.RoomID = nil
	p.DeviceIDs = nil
	if _, err := checker.FindConflicts(context.Background(), p); err != nil {
		t.Fatalf("find conflicts: %v", err)
	}
	if len(prober.calls) != 1 || prober.calls[0].resource != ResourceDoctor {
		t.Fatalf("expected only the doctor probe, got %v", prober.calls)
	}
}

func TestConflictCheckerPassesExclusion(t *testing.T) {
	prober := &fakeProber{}
	checker := NewConflictChecker(prober)

	p := checkParams()
	p.ExcludeAppointmentID = 42
	if _, err := checker.FindConflicts(context.Background(), p); err != nil {
		t.Fatalf("find conflicts: %v", err)
	}
	for _, call := range prober.calls {
		if call.exclude != 42 {
			t.Fatalf("%s probe exclude = %d, want 42", call.resource, call.exclude)
		}
	}
}
