package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments in Postgres. Overlap protection is
// enforced by the database's range exclusion constraints; the repository only
// translates those violations into typed errors.
type Repository struct {
	pool PgxPool
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool PgxPool) *Repository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &Repository{pool: pool}
}

const appointmentColumns = `
	a.id, a.tenant_id, a.doctor_id, a.patient_id, a.service_id, a.room_id,
	a.starts_at, a.ends_at, a.buffer_before, a.buffer_after,
	a.status, COALESCE(a.notes, ''), a.version, COALESCE(a.idempotency_key, ''),
	a.created_at, a.updated_at`

const appointmentColumnsBare = `
	id, tenant_id, doctor_id, patient_id, service_id, room_id,
	starts_at, ends_at, buffer_before, buffer_after,
	status, COALESCE(notes, ''), version, COALESCE(idempotency_key, ''),
	created_at, updated_at`

// GetServiceTemplate loads a service plus its eligible-doctor and
// required-device sets.
func (s *Repository) GetServiceTemplate(ctx context.Context, tenantID, serviceID int64) (*ServiceTemplate, error) {
	query := `
		SELECT id, tenant_id, name, duration_minutes, buffer_before_min, buffer_after_min, requires_room
		FROM services
		WHERE tenant_id = $1 AND id = $2 AND active
	`
	var tpl ServiceTemplate
	err := s.pool.QueryRow(ctx, query, tenantID, serviceID).Scan(
		&tpl.ID, &tpl.TenantID, &tpl.Name,
		&tpl.DurationMinutes, &tpl.BufferBeforeMin, &tpl.BufferAfterMin,
		&tpl.RequiresRoom,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "service"}
		}
		return nil, fmt.Errorf("scheduling: load service: %w", err)
	}

	tpl.DoctorIDs, err = s.queryIDs(ctx,
		`SELECT doctor_id FROM service_doctors WHERE tenant_id = $1 AND service_id = $2 ORDER BY doctor_id`,
		tenantID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: load service doctors: %w", err)
	}
	tpl.DeviceIDs, err = s.queryIDs(ctx,
		`SELECT device_id FROM service_devices WHERE tenant_id = $1 AND service_id = $2 ORDER BY device_id`,
		tenantID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: load service devices: %w", err)
	}
	return &tpl, nil
}

// TenantTimezone returns the tenant's configured IANA timezone name.
func (s *Repository) TenantTimezone(ctx context.Context, tenantID int64) (string, error) {
	var tz string
	err := s.pool.QueryRow(ctx, `SELECT timezone FROM tenants WHERE id = $1`, tenantID).Scan(&tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", &NotFoundError{Resource: "tenant"}
		}
		return "", fmt.Errorf("scheduling: load tenant timezone: %w", err)
	}
	return tz, nil
}

// WorkingHours returns all weekly shifts for a doctor.
func (s *Repository) WorkingHours(ctx context.Context, tenantID, doctorID int64) ([]Shift, error) {
	query := `
		SELECT weekday, start_time, end_time
		FROM working_hours
		WHERE tenant_id = $1 AND doctor_id = $2
		ORDER BY weekday, start_time
	`
	rows, err := s.pool.Query(ctx, query, tenantID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: load working hours: %w", err)
	}
	defer rows.Close()

	var shifts []Shift
	for rows.Next() {
		var weekday int16
		var start, end pgtype.Time
		if err := rows.Scan(&weekday, &start, &end); err != nil {
			return nil, fmt.Errorf("scheduling: scan working hours: %w", err)
		}
		shifts = append(shifts, Shift{
			Weekday:      time.Weekday(weekday),
			StartMinutes: int(start.Microseconds / 60_000_000),
			EndMinutes:   int(end.Microseconds / 60_000_000),
		})
	}
	return shifts, rows.Err()
}

// BreaksForDoctor returns the doctor's breaks overlapping [from, to).
func (s *Repository) BreaksForDoctor(ctx context.Context, tenantID, doctorID int64, from, to time.Time) ([]Break, error) {
	query := `
		SELECT id, doctor_id, starts_at, ends_at, COALESCE(reason, '')
		FROM breaks
		WHERE tenant_id = $1 AND doctor_id = $2 AND starts_at < $4 AND ends_at > $3
		ORDER BY starts_at
	`
	rows, err := s.pool.Query(ctx, query, tenantID, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: load breaks: %w", err)
	}
	defer rows.Close()

	var breaks []Break
	for rows.Next() {
		var b Break
		if err := rows.Scan(&b.ID, &b.DoctorID, &b.StartsAt, &b.EndsAt, &b.Reason); err != nil {
			return nil, fmt.Errorf("scheduling: scan break: %w", err)
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

// DoctorConflict returns the first non-cancelled appointment for the doctor
// whose buffer-expanded range overlaps [start, end), or nil.
func (s *Repository) DoctorConflict(ctx context.Context, tenantID, doctorID int64, start, end time.Time, excludeID int64) (*Conflict, error) {
	query := `
		SELECT a.id, a.starts_at, a.ends_at, d.name
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.tenant_id = $1 AND a.doctor_id = $2 AND a.status <> 'cancelled'
		  AND ($5::bigint = 0 OR a.id <> $5)
		  AND tstzrange($3::timestamptz, $4::timestamptz) && tstzrange(a.starts_at - a.buffer_before, a.ends_at + a.buffer_after)
		LIMIT 1
	`
	return s.scanConflict(ctx, query, ResourceDoctor, doctorID, tenantID, doctorID, start, end, excludeID)
}

// RoomConflict returns the first non-cancelled appointment occupying the room
// over the buffer-expanded range, or nil.
func (s *Repository) RoomConflict(ctx context.Context, tenantID, roomID int64, start, end time.Time, excludeID int64) (*Conflict, error) {
	query := `
		SELECT a.id, a.starts_at, a.ends_at, r.name
		FROM appointments a
		JOIN rooms r ON r.id = a.room_id
		WHERE a.tenant_id = $1 AND a.room_id = $2 AND a.status <> 'cancelled'
		  AND ($5::bigint = 0 OR a.id <> $5)
		  AND tstzrange($3::timestamptz, $4::timestamptz) && tstzrange(a.starts_at - a.buffer_before, a.ends_at + a.buffer_after)
		LIMIT 1
	`
	return s.scanConflict(ctx, query, ResourceRoom, roomID, tenantID, roomID, start, end, excludeID)
}

// DeviceConflict probes device reservations. Device rows hold the raw span;
// the caller supplies an unexpanded query range.
func (s *Repository) DeviceConflict(ctx context.Context, tenantID, deviceID int64, start, end time.Time, excludeID int64) (*Conflict, error) {
	query := `
		SELECT ad.appointment_id, ad.starts_at, ad.ends_at, dv.name
		FROM appointment_devices ad
		JOIN devices dv ON dv.id = ad.device_id
		WHERE ad.tenant_id = $1 AND ad.device_id = $2
		  AND ($5::bigint = 0 OR ad.appointment_id <> $5)
		  AND tstzrange($3::timestamptz, $4::timestamptz) && tstzrange(ad.starts_at, ad.ends_at)
		LIMIT 1
	`
	return s.scanConflict(ctx, query, ResourceDevice, deviceID, tenantID, deviceID, start, end, excludeID)
}

func (s *Repository) scanConflict(ctx context.Context, query string, rt ResourceType, resourceID int64, args ...any) (*Conflict, error) {
	c := Conflict{ResourceType: rt, ResourceID: resourceID}
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&c.AppointmentID, &c.ConflictingRange.Start, &c.ConflictingRange.End, &c.ResourceName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduling: %s conflict probe: %w", rt, err)
	}
	return &c, nil
}

// InsertAppointmentParams carries everything the create transaction needs.
type InsertAppointmentParams struct {
	TenantID       int64
	DoctorID       int64
	PatientID      int64
	ServiceID      int64
	RoomID         *int64
	StartsAt       time.Time
	EndsAt         time.Time
	BufferBefore   time.Duration
	BufferAfter    time.Duration
	Notes          string
	IdempotencyKey string
	DeviceIDs      []int64
	Changes        any
}

// InsertAppointment atomically writes the appointment row, its device
// reservations, and the audit entry. Exclusion and idempotency-key violations
// come back as the package sentinels.
func (s *Repository) InsertAppointment(ctx context.Context, p InsertAppointmentParams) (*Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO appointments
			(tenant_id, doctor_id, patient_id, service_id, room_id, starts_at, ends_at,
			 buffer_before, buffer_after, status, notes, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'scheduled', NULLIF($10, ''), NULLIF($11, ''))
		RETURNING ` + appointmentColumnsBare
	row := tx.QueryRow(ctx, query,
		p.TenantID, p.DoctorID, p.PatientID, p.ServiceID, p.RoomID,
		p.StartsAt, p.EndsAt,
		toInterval(p.BufferBefore), toInterval(p.BufferAfter),
		p.Notes, p.IdempotencyKey,
	)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, translatePgError("insert appointment", err)
	}

	if err := insertDeviceRows(ctx, tx, p.TenantID, appt.ID, p.DeviceIDs, p.StartsAt, p.EndsAt); err != nil {
		return nil, err
	}
	if err := insertAuditRow(ctx, tx, p.TenantID, appt.ID, "created", p.Changes); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translatePgError("commit create", err)
	}
	appt.DeviceIDs = append([]int64(nil), p.DeviceIDs...)
	return appt, nil
}

// RescheduleParams carries the update transaction inputs. DeviceIDs are fully
// replaced only when ReplaceDevices is set.
type RescheduleParams struct {
	TenantID       int64
	AppointmentID  int64
	DoctorID       int64
	RoomID         *int64
	StartsAt       time.Time
	EndsAt         time.Time
	ReplaceDevices bool
	DeviceIDs      []int64
	Changes        any
}

// RescheduleAppointment atomically moves an appointment, bumps its version,
// replaces its device reservations when requested, and appends the audit
// entry.
func (s *Repository) RescheduleAppointment(ctx context.Context, p RescheduleParams) (*Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin reschedule: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE appointments a
		SET doctor_id = $3, room_id = $4, starts_at = $5, ends_at = $6,
			version = a.version + 1, updated_at = now()
		WHERE a.tenant_id = $1 AND a.id = $2
		RETURNING ` + appointmentColumns
	row := tx.QueryRow(ctx, query,
		p.TenantID, p.AppointmentID, p.DoctorID, p.RoomID, p.StartsAt, p.EndsAt,
	)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "appointment"}
		}
		return nil, translatePgError("reschedule appointment", err)
	}

	if p.ReplaceDevices {
		if _, err := tx.Exec(ctx,
			`DELETE FROM appointment_devices WHERE appointment_id = $1`, p.AppointmentID); err != nil {
			return nil, translatePgError("clear device reservations", err)
		}
		if err := insertDeviceRows(ctx, tx, p.TenantID, p.AppointmentID, p.DeviceIDs, p.StartsAt, p.EndsAt); err != nil {
			return nil, err
		}
		appt.DeviceIDs = append([]int64(nil), p.DeviceIDs...)
	} else {
		// Device rows keep their reservation span in sync with the core span.
		if _, err := tx.Exec(ctx,
			`UPDATE appointment_devices SET starts_at = $2, ends_at = $3 WHERE appointment_id = $1`,
			p.AppointmentID, p.StartsAt, p.EndsAt); err != nil {
			return nil, translatePgError("move device reservations", err)
		}
	}
	if err := insertAuditRow(ctx, tx, p.TenantID, p.AppointmentID, "rescheduled", p.Changes); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translatePgError("commit reschedule", err)
	}
	if !p.ReplaceDevices {
		ids, err := s.queryIDs(ctx,
			`SELECT device_id FROM appointment_devices WHERE appointment_id = $1 ORDER BY device_id`,
			p.AppointmentID)
		if err != nil {
			return nil, fmt.Errorf("scheduling: reload device ids: %w", err)
		}
		appt.DeviceIDs = ids
	}
	return appt, nil
}

// CancelAppointment performs the atomic conditional cancel. A miss means the
// appointment never existed or was already cancelled; both surface as
// NotFound.
func (s *Repository) CancelAppointment(ctx context.Context, tenantID, appointmentID int64) (*Appointment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin cancel: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE appointments a
		SET status = 'cancelled', updated_at = now()
		WHERE a.tenant_id = $1 AND a.id = $2 AND a.status <> 'cancelled'
		RETURNING ` + appointmentColumns
	appt, err := scanAppointment(tx.QueryRow(ctx, query, tenantID, appointmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "appointment"}
		}
		return nil, translatePgError("cancel appointment", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM appointment_devices WHERE appointment_id = $1`, appointmentID); err != nil {
		return nil, translatePgError("release devices", err)
	}
	if err := insertAuditRow(ctx, tx, tenantID, appointmentID, "cancelled", nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translatePgError("commit cancel", err)
	}
	return appt, nil
}

// GetAppointment fetches one appointment scoped to the tenant, including its
// device reservation ids.
func (s *Repository) GetAppointment(ctx context.Context, tenantID, appointmentID int64) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments a WHERE a.tenant_id = $1 AND a.id = $2`
	appt, err := scanAppointment(s.pool.QueryRow(ctx, query, tenantID, appointmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "appointment"}
		}
		return nil, fmt.Errorf("scheduling: load appointment: %w", err)
	}
	appt.DeviceIDs, err = s.queryIDs(ctx,
		`SELECT device_id FROM appointment_devices WHERE appointment_id = $1 ORDER BY device_id`,
		appointmentID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: load appointment devices: %w", err)
	}
	return appt, nil
}

// GetByIdempotencyKey returns the appointment previously created under the
// key, for idempotent replay.
func (s *Repository) GetByIdempotencyKey(ctx context.Context, tenantID int64, key string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments a WHERE a.tenant_id = $1 AND a.idempotency_key = $2`
	appt, err := scanAppointment(s.pool.QueryRow(ctx, query, tenantID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "appointment"}
		}
		return nil, fmt.Errorf("scheduling: load by idempotency key: %w", err)
	}
	appt.DeviceIDs, err = s.queryIDs(ctx,
		`SELECT device_id FROM appointment_devices WHERE appointment_id = $1 ORDER BY device_id`,
		appt.ID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: load appointment devices: %w", err)
	}
	return appt, nil
}

// ListSchedule returns the joined calendar feed for [from, to], optionally
// filtered to one doctor. Cancelled appointments are excluded.
func (s *Repository) ListSchedule(ctx context.Context, tenantID int64, from, to time.Time, doctorID int64) ([]ScheduleEntry, error) {
	query := `
		SELECT a.id, a.doctor_id, d.name, a.patient_id, p.name,
			a.service_id, sv.name, COALESCE(sv.color, ''),
			a.room_id, r.name,
			a.starts_at, a.ends_at, a.status, COALESCE(a.notes, '')
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN patients p ON p.id = a.patient_id
		JOIN services sv ON sv.id = a.service_id
		LEFT JOIN rooms r ON r.id = a.room_id
		WHERE a.tenant_id = $1 AND a.starts_at >= $2 AND a.starts_at <= $3
		  AND a.status <> 'cancelled'
		  AND ($4::bigint = 0 OR a.doctor_id = $4)
		ORDER BY a.starts_at
	`
	rows, err := s.pool.Query(ctx, query, tenantID, from, to, doctorID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list schedule: %w", err)
	}
	defer rows.Close()

	var entries []ScheduleEntry
	for rows.Next() {
		var e ScheduleEntry
		if err := rows.Scan(
			&e.ID, &e.DoctorID, &e.DoctorName, &e.PatientID, &e.PatientName,
			&e.ServiceID, &e.ServiceName, &e.ServiceColor,
			&e.RoomID, &e.RoomName,
			&e.StartsAt, &e.EndsAt, &e.Status, &e.Notes,
		); err != nil {
			return nil, fmt.Errorf("scheduling: scan schedule entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// BookingDetails loads display fields for notifications.
func (s *Repository) BookingDetails(ctx context.Context, tenantID, appointmentID int64) (*BookingDetails, error) {
	query := `
		SELECT p.name, COALESCE(p.email, ''), d.name, sv.name, COALESCE(r.name, '')
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id
		JOIN services sv ON sv.id = a.service_id
		LEFT JOIN rooms r ON r.id = a.room_id
		WHERE a.tenant_id = $1 AND a.id = $2
	`
	var bd BookingDetails
	err := s.pool.QueryRow(ctx, query, tenantID, appointmentID).Scan(
		&bd.PatientName, &bd.PatientEmail, &bd.DoctorName, &bd.ServiceName, &bd.RoomName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "appointment"}
		}
		return nil, fmt.Errorf("scheduling: load booking details: %w", err)
	}
	return &bd, nil
}

func (s *Repository) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertDeviceRows(ctx context.Context, tx pgx.Tx, tenantID, appointmentID int64, deviceIDs []int64, startsAt, endsAt time.Time) error {
	for _, deviceID := range deviceIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_devices (appointment_id, device_id, tenant_id, starts_at, ends_at)
			VALUES ($1, $2, $3, $4, $5)`,
			appointmentID, deviceID, tenantID, startsAt, endsAt)
		if err != nil {
			return translatePgError("insert device reservation", err)
		}
	}
	return nil
}

func insertAuditRow(ctx context.Context, tx pgx.Tx, tenantID, appointmentID int64, action string, changes any) error {
	var payload []byte
	if changes != nil {
		var err error
		payload, err = json.Marshal(changes)
		if err != nil {
			return fmt.Errorf("scheduling: marshal audit changes: %w", err)
		}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_audit_log (tenant_id, appointment_id, action, changes)
		VALUES ($1, $2, $3, $4)`,
		tenantID, appointmentID, action, payload)
	if err != nil {
		return translatePgError("insert audit entry", err)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var before, after pgtype.Interval
	err := row.Scan(
		&a.ID, &a.TenantID, &a.DoctorID, &a.PatientID, &a.ServiceID, &a.RoomID,
		&a.StartsAt, &a.EndsAt, &before, &after,
		&a.Status, &a.Notes, &a.Version, &a.IdempotencyKey,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.BufferBefore = fromInterval(before)
	a.BufferAfter = fromInterval(after)
	return &a, nil
}

func toInterval(d time.Duration) pgtype.Interval {
	return pgtype.Interval{Microseconds: d.Microseconds(), Valid: true}
}

// fromInterval converts a Postgres interval to a duration. Day and month
// components use calendar approximations; buffers stay sub-day in practice.
func fromInterval(iv pgtype.Interval) time.Duration {
	if !iv.Valid {
		return 0
	}
	d := time.Duration(iv.Microseconds) * time.Microsecond
	d += time.Duration(iv.Days) * 24 * time.Hour
	d += time.Duration(iv.Months) * 30 * 24 * time.Hour
	return d
}

// translatePgError maps Postgres constraint failures onto the package's
// sentinel errors so the lifecycle service can branch on them.
func translatePgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01":
			return ErrExclusionViolation
		case "23505":
			if strings.Contains(pgErr.ConstraintName, "idempotency") {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return fmt.Errorf("scheduling: %s: %w", op, err)
}
