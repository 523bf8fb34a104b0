package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// fakeLifecycleStore satisfies Store with canned data and per-call hooks.
type fakeLifecycleStore struct {
	fakeProber

	template *ServiceTemplate
	shifts   []Shift
	breaks   []Break
	timezone string

	appointments map[int64]*Appointment
	byKey        map[string]*Appointment

	insertErr    error
	insertCalls  int
	lastInsert   InsertAppointmentParams
	reschedErr   error
	lastResched  RescheduleParams
	cancelResult *Appointment
}

func newFakeLifecycleStore() *fakeLifecycleStore {
	return &fakeLifecycleStore{
		template:     laserTemplate(),
		shifts:       []Shift{mondayShift(9*60, 17*60)},
		timezone:     "UTC",
		appointments: map[int64]*Appointment{},
		byKey:        map[string]*Appointment{},
	}
}

func (f *fakeLifecycleStore) GetServiceTemplate(_ context.Context, _, serviceID int64) (*ServiceTemplate, error) {
	if f.template == nil || f.template.ID != serviceID {
		return nil, &NotFoundError{Resource: "service"}
	}
	return f.template, nil
}

func (f *fakeLifecycleStore) TenantTimezone(context.Context, int64) (string, error) {
	return f.timezone, nil
}

func (f *fakeLifecycleStore) WorkingHours(context.Context, int64, int64) ([]Shift, error) {
	return f.shifts, nil
}

func (f *fakeLifecycleStore) BreaksForDoctor(context.Context, int64, int64, time.Time, time.Time) ([]Break, error) {
	return f.breaks, nil
}

func (f *fakeLifecycleStore) InsertAppointment(_ context.Context, p InsertAppointmentParams) (*Appointment, error) {
	f.insertCalls++
	f.lastInsert = p
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	appt := &Appointment{
		ID: int64(100 + f.insertCalls), TenantID: p.TenantID,
		DoctorID: p.DoctorID, PatientID: p.PatientID, ServiceID: p.ServiceID,
		RoomID: p.RoomID, StartsAt: p.StartsAt, EndsAt: p.EndsAt,
		BufferBefore: p.BufferBefore, BufferAfter: p.BufferAfter,
		Status: StatusScheduled, Version: 1, DeviceIDs: p.DeviceIDs,
	}
	f.appointments[appt.ID] = appt
	if p.IdempotencyKey != "" {
		f.byKey[p.IdempotencyKey] = appt
	}
	return appt, nil
}

func (f *fakeLifecycleStore) RescheduleAppointment(_ context.Context, p RescheduleParams) (*Appointment, error) {
	f.lastResched = p
	if f.reschedErr != nil {
		return nil, f.reschedErr
	}
	appt, ok := f.appointments[p.AppointmentID]
	if !ok {
		return nil, &NotFoundError{Resource: "appointment"}
	}
	updated := *appt
	updated.DoctorID = p.DoctorID
	updated.RoomID = p.RoomID
	updated.StartsAt = p.StartsAt
	updated.EndsAt = p.EndsAt
	updated.Version++
	if p.ReplaceDevices {
		updated.DeviceIDs = p.DeviceIDs
	}
	f.appointments[p.AppointmentID] = &updated
	return &updated, nil
}

func (f *fakeLifecycleStore) CancelAppointment(_ context.Context, _, appointmentID int64) (*Appointment, error) {
	if f.cancelResult == nil {
		return nil, &NotFoundError{Resource: "appointment"}
	}
	return f.cancelResult, nil
}

func (f *fakeLifecycleStore) GetAppointment(_ context.Context, _, appointmentID int64) (*Appointment, error) {
	appt, ok := f.appointments[appointmentID]
	if !ok {
		return nil, &NotFoundError{Resource: "appointment"}
	}
	return appt, nil
}

func (f *fakeLifecycleStore) GetByIdempotencyKey(_ context.Context, _ int64, key string) (*Appointment, error) {
	appt, ok := f.byKey[key]
	if !ok {
		return nil, &NotFoundError{Resource: "appointment"}
	}
	return appt, nil
}

func (f *fakeLifecycleStore) ListSchedule(context.Context, int64, time.Time, time.Time, int64) ([]ScheduleEntry, error) {
	return nil, nil
}

func newTestService(store *fakeLifecycleStore) *Service {
	return NewService(store, logging.New("error"), Options{})
}

func createRequest() *CreateAppointmentRequest {
	roomID := int64(2)
	return &CreateAppointmentRequest{
		TenantID:  1,
		DoctorID:  7,
		PatientID: 3,
		ServiceID: 5,
		RoomID:    &roomID,
		DeviceIDs: []int64{11},
		StartsAt:  monday10,
	}
}

func TestServiceCreate(t *testing.T) {
	store := newFakeLifecycleStore()
	svc := newTestService(store)

	appt, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appt.Status != StatusScheduled || appt.Version != 1 {
		t.Fatalf("appointment = %+v", appt)
	}
	if !appt.EndsAt.Equal(monday10.Add(30 * time.Minute)) {
		t.Fatalf("ends_at = %v, want duration from service", appt.EndsAt)
	}
	if store.lastInsert.BufferBefore != 5*time.Minute || store.lastInsert.BufferAfter != 10*time.Minute {
		t.Fatalf("buffers not copied from service: %+v", store.lastInsert)
	}
}

func TestServiceCreatePrecheckConflict(t *testing.T) {
	store := newFakeLifecycleStore()
	store.conflicts = map[ResourceType]map[int64]*Conflict{
		ResourceDoctor: {7: {ResourceType: ResourceDoctor, ResourceID: 7, ResourceName: "Dr. Ada", AppointmentID: 42}},
	}
	svc := newTestService(store)

	_, err := svc.Create(context.Background(), createRequest())
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if store.insertCalls != 0 {
		t.Fatalf("insert attempted despite pre-check conflict")
	}
	if got := ce.Message(); got != `Doctor "Dr. Ada" is unavailable at the requested time` {
		t.Fatalf("message = %q", got)
	}
}

func TestServiceCreateExclusionRaceSingleRecheck(t *testing.T) {
	store := newFakeLifecycleStore()
	store.insertErr = ErrExclusionViolation
	svc := newTestService(store)

	probesBefore := len(store.calls)
	_, err := svc.Create(context.Background(), createRequest())
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError after lost race, got %v", err)
	}
	if store.insertCalls != 1 {
		t.Fatalf("insert retried %d times, must never retry", store.insertCalls)
	}
	// One pre-check pass plus exactly one re-check pass: doctor, room,
	// device each probed twice.
	if got := len(store.calls) - probesBefore; got != 6 {
		t.Fatalf("probe count = %d, want 6", got)
	}
}

func TestServiceCreateIdempotentReplay(t *testing.T) {
	store := newFakeLifecycleStore()
	svc := newTestService(store)

	req := createRequest()
	req.IdempotencyKey = "key-1"
	first, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	store.insertErr = ErrDuplicateIdempotencyKey
	second, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned %d, want %d", second.ID, first.ID)
	}
}

func TestServiceCreateValidationShortCircuits(t *testing.T) {
	store := newFakeLifecycleStore()
	svc := newTestService(store)

	req := createRequest()
	req.RoomID = nil
	_, err := svc.Create(context.Background(), req)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(store.calls) != 0 || store.insertCalls != 0 {
		t.Fatal("conflict probes or insert ran after rule rejection")
	}
}

func TestServiceRescheduleExcludesSelf(t *testing.T) {
	store := newFakeLifecycleStore()
	svc := newTestService(store)

	created, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	store.calls = nil

	newStart := monday10.Add(2 * time.Hour)
	appt, err := svc.Reschedule(context.Background(), 1, created.ID, &RescheduleAppointmentRequest{StartsAt: newStart})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if appt.Version != 2 || !appt.StartsAt.Equal(newStart) {
		t.Fatalf("appointment = %+v", appt)
	}
	for _, call := range store.calls {
		if call.exclude != created.ID {
			t.Fatalf("%s probe exclude = %d, want own id %d", call.resource, call.exclude, created.ID)
		}
	}
	if store.lastResched.ReplaceDevices {
		t.Fatal("device set must not be replaced when device_ids absent")
	}
}

func TestServiceRescheduleKeepsFieldsWhenAbsent(t *testing.T) {
	store := newFakeLifecycleStore()
	svc := newTestService(store)

	created, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	appt, err := svc.Reschedule(context.Background(), 1, created.ID,
		&RescheduleAppointmentRequest{StartsAt: monday10.Add(time.Hour)})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if appt.DoctorID != created.DoctorID {
		t.Fatalf("doctor changed: %d", appt.DoctorID)
	}
	if appt.RoomID == nil || *appt.RoomID != *created.RoomID {
		t.Fatalf("room changed: %v", appt.RoomID)
	}
}

func TestServiceRescheduleClearsRoomOnNull(t *testing.T) {
	tpl := laserTemplate()
	tpl.RequiresRoom = false
	store := newFakeLifecycleStore()
	store.template = tpl
	svc := newTestService(store)

	created, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := &RescheduleAppointmentRequest{StartsAt: monday10.Add(time.Hour), RoomSet: true}
	appt, err := svc.Reschedule(context.Background(), 1, created.ID, req)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if appt.RoomID != nil {
		t.Fatalf("room_id = %v, want cleared", appt.RoomID)
	}
}

func TestServiceRescheduleTerminalStatus(t *testing.T) {
	store := newFakeLifecycleStore()
	svc := newTestService(store)

	created, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	store.appointments[created.ID].Status = StatusCancelled

	_, err = svc.Reschedule(context.Background(), 1, created.ID,
		&RescheduleAppointmentRequest{StartsAt: monday10.Add(time.Hour)})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestServiceCancelNotFound(t *testing.T) {
	store := newFakeLifecycleStore()
	svc := newTestService(store)

	_, err := svc.Cancel(context.Background(), 1, 999)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestServiceCreateNotifies(t *testing.T) {
	store := newFakeLifecycleStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, logging.New("error"), Options{Notifier: notifier})

	if _, err := svc.Create(context.Background(), createRequest()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if notifier.created != 1 {
		t.Fatalf("created notifications = %d", notifier.created)
	}
}

func TestServiceTimezoneModeTenant(t *testing.T) {
	if _, err := time.LoadLocation("America/New_York"); err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	store := newFakeLifecycleStore()
	store.timezone = "America/New_York"
	// Sunday evening shift in New York; request lands Monday 02:00 UTC.
	store.shifts = []Shift{{Weekday: time.Sunday, StartMinutes: 20 * 60, EndMinutes: 22 * 60}}
	svc := NewService(store, logging.New("error"), Options{TimezoneMode: config.TimezoneModeTenant})

	req := createRequest()
	req.StartsAt = time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	if _, err := svc.Create(context.Background(), req); err != nil {
		t.Fatalf("tenant-local booking rejected: %v", err)
	}

	utcSvc := newTestService(store)
	if _, err := utcSvc.Create(context.Background(), req); err == nil {
		t.Fatal("UTC mode should reject a Monday-UTC booking against a Sunday shift")
	}
}

type recordingNotifier struct {
	created, rescheduled, cancelled int
}

func (n *recordingNotifier) AppointmentCreated(context.Context, *Appointment)     { n.created++ }
func (n *recordingNotifier) AppointmentRescheduled(context.Context, *Appointment) { n.rescheduled++ }
func (n *recordingNotifier) AppointmentCancelled(context.Context, *Appointment)   { n.cancelled++ }
