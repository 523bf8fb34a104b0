package scheduling

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var schedulingTracer = otel.Tracer("scheduler.internal.scheduling")

// Store is the persistence surface the lifecycle service depends on.
// *Repository implements it; tests substitute fakes.
type Store interface {
	conflictProber

	GetServiceTemplate(ctx context.Context, tenantID, serviceID int64) (*ServiceTemplate, error)
	TenantTimezone(ctx context.Context, tenantID int64) (string, error)
	WorkingHours(ctx context.Context, tenantID, doctorID int64) ([]Shift, error)
	BreaksForDoctor(ctx context.Context, tenantID, doctorID int64, from, to time.Time) ([]Break, error)

	InsertAppointment(ctx context.Context, p InsertAppointmentParams) (*Appointment, error)
	RescheduleAppointment(ctx context.Context, p RescheduleParams) (*Appointment, error)
	CancelAppointment(ctx context.Context, tenantID, appointmentID int64) (*Appointment, error)
	GetAppointment(ctx context.Context, tenantID, appointmentID int64) (*Appointment, error)
	GetByIdempotencyKey(ctx context.Context, tenantID int64, key string) (*Appointment, error)
	ListSchedule(ctx context.Context, tenantID int64, from, to time.Time, doctorID int64) ([]ScheduleEntry, error)
}

// Notifier receives best-effort lifecycle events. Failures never fail the
// booking.
type Notifier interface {
	AppointmentCreated(ctx context.Context, appt *Appointment)
	AppointmentRescheduled(ctx context.Context, appt *Appointment)
	AppointmentCancelled(ctx context.Context, appt *Appointment)
}

// Options tune the lifecycle service.
type Options struct {
	// TimezoneMode selects UTC or tenant-local weekday arithmetic.
	TimezoneMode string
	Metrics      *metrics.SchedulingMetrics
	Notifier     Notifier
}

// Service orchestrates appointment create / cancel / reschedule. Per-request
// control flow only; cross-request correctness rests on the storage layer's
// range exclusion constraints, with the pre-check here serving error quality
// and latency.
type Service struct {
	store     Store
	conflicts *ConflictChecker
	tzMode    string
	metrics   *metrics.SchedulingMetrics
	notifier  Notifier
	logger    *logging.Logger
}

// NewService constructs the lifecycle service.
func NewService(store Store, logger *logging.Logger, opts Options) *Service {
	if store == nil {
		panic("scheduling: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	tzMode := opts.TimezoneMode
	if tzMode == "" {
		tzMode = config.TimezoneModeUTC
	}
	return &Service{
		store:     store,
		conflicts: NewConflictChecker(store),
		tzMode:    tzMode,
		metrics:   opts.Metrics,
		notifier:  opts.Notifier,
		logger:    logger,
	}
}

// Create books a new appointment. On a storage exclusion violation it re-runs
// the conflict check exactly once to produce an accurate conflict list; on a
// duplicate idempotency key it returns the previously created appointment.
func (s *Service) Create(ctx context.Context, req *CreateAppointmentRequest) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.create")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("scheduler.tenant_id", req.TenantID),
		attribute.Int64("scheduler.doctor_id", req.DoctorID),
		attribute.Int64("scheduler.service_id", req.ServiceID),
	)

	if err := req.Validate(); err != nil {
		s.metrics.ObserveBooking("create", "validation_failed")
		return nil, err
	}

	tpl, err := s.store.GetServiceTemplate(ctx, req.TenantID, req.ServiceID)
	if err != nil {
		s.metrics.ObserveBooking("create", "not_found")
		return nil, err
	}
	endsAt := req.StartsAt.Add(tpl.Duration())

	if err := s.validateRules(ctx, tpl, req.TenantID, req.DoctorID, req.RoomID, req.DeviceIDs, req.StartsAt, endsAt); err != nil {
		s.metrics.ObserveBooking("create", "validation_failed")
		return nil, err
	}

	checkParams := ConflictCheckParams{
		TenantID:     req.TenantID,
		DoctorID:     req.DoctorID,
		RoomID:       req.RoomID,
		DeviceIDs:    req.DeviceIDs,
		StartsAt:     req.StartsAt,
		EndsAt:       endsAt,
		BufferBefore: tpl.BufferBefore(),
		BufferAfter:  tpl.BufferAfter(),
	}
	if err := s.precheck(ctx, "create", checkParams); err != nil {
		return nil, err
	}

	appt, err := s.store.InsertAppointment(ctx, InsertAppointmentParams{
		TenantID:       req.TenantID,
		DoctorID:       req.DoctorID,
		PatientID:      req.PatientID,
		ServiceID:      req.ServiceID,
		RoomID:         req.RoomID,
		StartsAt:       req.StartsAt,
		EndsAt:         endsAt,
		BufferBefore:   tpl.BufferBefore(),
		BufferAfter:    tpl.BufferAfter(),
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
		DeviceIDs:      req.DeviceIDs,
		Changes:        req,
	})
	switch {
	case errors.Is(err, ErrExclusionViolation):
		// Lost the race between pre-check and write; the database stayed
		// consistent, re-probe once for an accurate error.
		return nil, s.recheck(ctx, "create", checkParams)
	case errors.Is(err, ErrDuplicateIdempotencyKey):
		existing, lookupErr := s.store.GetByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
		if lookupErr != nil {
			return nil, lookupErr
		}
		s.logger.Info("idempotent replay",
			"tenant_id", req.TenantID, "appointment_id", existing.ID, "idempotency_key", req.IdempotencyKey)
		s.metrics.ObserveBooking("create", "idempotent_replay")
		return existing, nil
	case err != nil:
		s.metrics.ObserveBooking("create", "storage_error")
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment created",
		"tenant_id", appt.TenantID, "appointment_id", appt.ID,
		"doctor_id", appt.DoctorID, "starts_at", appt.StartsAt)
	s.metrics.ObserveBooking("create", "success")
	if s.notifier != nil {
		s.notifier.AppointmentCreated(ctx, appt)
	}
	return appt, nil
}

// Reschedule moves an appointment to a new span (optionally a new doctor,
// room, or device set), bumping its version. The appointment's own id is
// excluded from conflict queries so it never conflicts with itself.
func (s *Service) Reschedule(ctx context.Context, tenantID, appointmentID int64, req *RescheduleAppointmentRequest) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("scheduler.tenant_id", tenantID),
		attribute.Int64("scheduler.appointment_id", appointmentID),
	)

	if err := req.Validate(); err != nil {
		s.metrics.ObserveBooking("reschedule", "validation_failed")
		return nil, err
	}

	existing, err := s.store.GetAppointment(ctx, tenantID, appointmentID)
	if err != nil {
		s.metrics.ObserveBooking("reschedule", "not_found")
		return nil, err
	}
	if existing.Status == StatusCancelled || existing.Status == StatusCompleted {
		s.metrics.ObserveBooking("reschedule", "validation_failed")
		return nil, &ValidationError{Reason: "cannot reschedule a " + existing.Status + " appointment"}
	}

	tpl, err := s.store.GetServiceTemplate(ctx, tenantID, existing.ServiceID)
	if err != nil {
		s.metrics.ObserveBooking("reschedule", "not_found")
		return nil, err
	}

	doctorID := existing.DoctorID
	if req.DoctorID != nil {
		doctorID = *req.DoctorID
	}
	roomID := existing.RoomID
	if req.RoomSet {
		roomID = req.RoomID
	}
	deviceIDs := existing.DeviceIDs
	if req.DeviceIDsSet {
		deviceIDs = req.DeviceIDs
	}
	endsAt := req.StartsAt.Add(tpl.Duration())

	if err := s.validateRules(ctx, tpl, tenantID, doctorID, roomID, deviceIDs, req.StartsAt, endsAt); err != nil {
		s.metrics.ObserveBooking("reschedule", "validation_failed")
		return nil, err
	}

	checkParams := ConflictCheckParams{
		TenantID:             tenantID,
		DoctorID:             doctorID,
		RoomID:               roomID,
		DeviceIDs:            deviceIDs,
		StartsAt:             req.StartsAt,
		EndsAt:               endsAt,
		BufferBefore:         tpl.BufferBefore(),
		BufferAfter:          tpl.BufferAfter(),
		ExcludeAppointmentID: appointmentID,
	}
	if err := s.precheck(ctx, "reschedule", checkParams); err != nil {
		return nil, err
	}

	appt, err := s.store.RescheduleAppointment(ctx, RescheduleParams{
		TenantID:       tenantID,
		AppointmentID:  appointmentID,
		DoctorID:       doctorID,
		RoomID:         roomID,
		StartsAt:       req.StartsAt,
		EndsAt:         endsAt,
		ReplaceDevices: req.DeviceIDsSet,
		DeviceIDs:      deviceIDs,
		Changes:        req,
	})
	switch {
	case errors.Is(err, ErrExclusionViolation):
		return nil, s.recheck(ctx, "reschedule", checkParams)
	case err != nil:
		s.metrics.ObserveBooking("reschedule", "storage_error")
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment rescheduled",
		"tenant_id", tenantID, "appointment_id", appointmentID,
		"doctor_id", doctorID, "starts_at", req.StartsAt, "version", appt.Version)
	s.metrics.ObserveBooking("reschedule", "success")
	if s.notifier != nil {
		s.notifier.AppointmentRescheduled(ctx, appt)
	}
	return appt, nil
}

// Cancel marks an appointment cancelled. "Already cancelled" and "never
// existed" are indistinguishable without a prior read; both map to NotFound.
func (s *Service) Cancel(ctx context.Context, tenantID, appointmentID int64) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.cancel")
	defer span.End()

	appt, err := s.store.CancelAppointment(ctx, tenantID, appointmentID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			s.metrics.ObserveBooking("cancel", "not_found")
		} else {
			s.metrics.ObserveBooking("cancel", "storage_error")
			span.RecordError(err)
		}
		return nil, err
	}

	s.logger.Info("appointment cancelled", "tenant_id", tenantID, "appointment_id", appointmentID)
	s.metrics.ObserveBooking("cancel", "success")
	if s.notifier != nil {
		s.notifier.AppointmentCancelled(ctx, appt)
	}
	return appt, nil
}

// Get fetches one appointment.
func (s *Service) Get(ctx context.Context, tenantID, appointmentID int64) (*Appointment, error) {
	return s.store.GetAppointment(ctx, tenantID, appointmentID)
}

// Schedule returns the joined calendar feed; doctorID 0 means all doctors.
func (s *Service) Schedule(ctx context.Context, tenantID int64, from, to time.Time, doctorID int64) ([]ScheduleEntry, error) {
	return s.store.ListSchedule(ctx, tenantID, from, to, doctorID)
}

// validateRules loads the rule inputs and runs the booking rule validator.
func (s *Service) validateRules(ctx context.Context, tpl *ServiceTemplate, tenantID, doctorID int64, roomID *int64, deviceIDs []int64, startsAt, endsAt time.Time) error {
	shifts, err := s.store.WorkingHours(ctx, tenantID, doctorID)
	if err != nil {
		return err
	}
	expandedStart := startsAt.Add(-tpl.BufferBefore())
	expandedEnd := endsAt.Add(tpl.BufferAfter())
	breaks, err := s.store.BreaksForDoctor(ctx, tenantID, doctorID, expandedStart, expandedEnd)
	if err != nil {
		return err
	}
	rules := BookingRules{Location: s.location(ctx, tenantID)}
	return rules.Validate(BookingCandidate{
		Service:   tpl,
		DoctorID:  doctorID,
		RoomID:    roomID,
		DeviceIDs: deviceIDs,
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		Shifts:    shifts,
		Breaks:    breaks,
	})
}

// precheck runs the advisory conflict check ahead of the write. It is a
// latency/UX optimization only; the exclusion constraint remains the source
// of truth.
func (s *Service) precheck(ctx context.Context, action string, p ConflictCheckParams) error {
	conflicts, err := s.conflicts.FindConflicts(ctx, p)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		s.metrics.ObserveBooking(action, "conflict")
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}

// recheck runs the single post-violation conflict probe. It exists for error
// quality, not correctness, and never loops.
func (s *Service) recheck(ctx context.Context, action string, p ConflictCheckParams) error {
	s.metrics.ObserveConflictRecheck()
	s.metrics.ObserveBooking(action, "conflict")
	conflicts, err := s.conflicts.FindConflicts(ctx, p)
	if err != nil {
		return err
	}
	s.logger.Warn("booking lost exclusion race",
		"tenant_id", p.TenantID, "doctor_id", p.DoctorID, "starts_at", p.StartsAt)
	return &ConflictError{Conflicts: conflicts}
}

// location resolves the reference frame for weekday arithmetic. Unknown
// tenant timezones fall back to UTC.
func (s *Service) location(ctx context.Context, tenantID int64) *time.Location {
	if s.tzMode != config.TimezoneModeTenant {
		return time.UTC
	}
	tzName, err := s.store.TenantTimezone(ctx, tenantID)
	if err != nil {
		s.logger.Warn("tenant timezone lookup failed, using UTC", "tenant_id", tenantID, "error", err)
		return time.UTC
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		s.logger.Warn("invalid tenant timezone, using UTC", "tenant_id", tenantID, "timezone", tzName)
		return time.UTC
	}
	return loc
}
