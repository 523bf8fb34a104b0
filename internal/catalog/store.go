package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// Store persists the tenant catalog: doctors, patients, services, rooms,
// devices, working hours, and breaks.
type Store struct {
	pool scheduling.PgxPool
}

// NewStore creates a catalog store over the shared pool.
func NewStore(pool scheduling.PgxPool) *Store {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &Store{pool: pool}
}

// CreateDoctor inserts a doctor, active by default.
func (s *Store) CreateDoctor(ctx context.Context, tenantID int64, req *CreateDoctorRequest) (*Doctor, error) {
	var d Doctor
	err := s.pool.QueryRow(ctx, `
		INSERT INTO doctors (tenant_id, name, email, active)
		VALUES ($1, $2, NULLIF($3, ''), true)
		RETURNING id, tenant_id, name, COALESCE(email, ''), active`,
		tenantID, req.Name, req.Email,
	).Scan(&d.ID, &d.TenantID, &d.Name, &d.Email, &d.Active)
	if err != nil {
		return nil, fmt.Errorf("catalog: create doctor: %w", err)
	}
	return &d, nil
}

// ListDoctors returns every doctor for the tenant.
func (s *Store) ListDoctors(ctx context.Context, tenantID int64) ([]Doctor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, COALESCE(email, ''), active
		FROM doctors WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list doctors: %w", err)
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.Email, &d.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan doctor: %w", err)
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

// CreatePatient inserts a patient record.
func (s *Store) CreatePatient(ctx context.Context, tenantID int64, req *CreatePatientRequest) (*Patient, error) {
	var p Patient
	err := s.pool.QueryRow(ctx, `
		INSERT INTO patients (tenant_id, name, email, phone)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		RETURNING id, tenant_id, name, COALESCE(email, ''), COALESCE(phone, '')`,
		tenantID, req.Name, req.Email, req.Phone,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.Email, &p.Phone)
	if err != nil {
		return nil, fmt.Errorf("catalog: create patient: %w", err)
	}
	return &p, nil
}

// ListPatients returns every patient for the tenant.
func (s *Store) ListPatients(ctx context.Context, tenantID int64) ([]Patient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, COALESCE(email, ''), COALESCE(phone, '')
		FROM patients WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list patients: %w", err)
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Email, &p.Phone); err != nil {
			return nil, fmt.Errorf("catalog: scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// CreateService inserts a service definition.
func (s *Store) CreateService(ctx context.Context, tenantID int64, req *CreateServiceRequest) (*Service, error) {
	var sv Service
	err := s.pool.QueryRow(ctx, `
		INSERT INTO services (tenant_id, name, duration_minutes, buffer_before_min, buffer_after_min, requires_room, color)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id, tenant_id, name, duration_minutes, buffer_before_min, buffer_after_min, requires_room, COALESCE(color, ''), active`,
		tenantID, req.Name, req.DurationMinutes, req.BufferBeforeMin, req.BufferAfterMin, req.RequiresRoom, req.Color,
	).Scan(&sv.ID, &sv.TenantID, &sv.Name, &sv.DurationMinutes, &sv.BufferBeforeMin, &sv.BufferAfterMin, &sv.RequiresRoom, &sv.Color, &sv.Active)
	if err != nil {
		return nil, fmt.Errorf("catalog: create service: %w", err)
	}
	return &sv, nil
}

// ListServices returns every service for the tenant.
func (s *Store) ListServices(ctx context.Context, tenantID int64) ([]Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, duration_minutes, buffer_before_min, buffer_after_min, requires_room, COALESCE(color, ''), active
		FROM services WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var sv Service
		if err := rows.Scan(&sv.ID, &sv.TenantID, &sv.Name, &sv.DurationMinutes, &sv.BufferBeforeMin, &sv.BufferAfterMin, &sv.RequiresRoom, &sv.Color, &sv.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		services = append(services, sv)
	}
	return services, rows.Err()
}

// AssignServiceDoctors replaces the service's eligible-doctor set.
func (s *Store) AssignServiceDoctors(ctx context.Context, tenantID, serviceID int64, doctorIDs []int64) error {
	return s.replaceAssignments(ctx, tenantID, serviceID, doctorIDs,
		`DELETE FROM service_doctors WHERE tenant_id = $1 AND service_id = $2`,
		`INSERT INTO service_doctors (tenant_id, service_id, doctor_id) VALUES ($1, $2, $3)`)
}

// AssignServiceDevices replaces the service's required-device set.
func (s *Store) AssignServiceDevices(ctx context.Context, tenantID, serviceID int64, deviceIDs []int64) error {
	return s.replaceAssignments(ctx, tenantID, serviceID, deviceIDs,
		`DELETE FROM service_devices WHERE tenant_id = $1 AND service_id = $2`,
		`INSERT INTO service_devices (tenant_id, service_id, device_id) VALUES ($1, $2, $3)`)
}

func (s *Store) replaceAssignments(ctx context.Context, tenantID, serviceID int64, ids []int64, deleteSQL, insertSQL string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM services WHERE tenant_id = $1 AND id = $2)`,
		tenantID, serviceID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("catalog: check service: %w", err)
	}
	if !exists {
		return &scheduling.NotFoundError{Resource: "service"}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("catalog: begin assignment: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteSQL, tenantID, serviceID); err != nil {
		return fmt.Errorf("catalog: clear assignments: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.Exec(ctx, insertSQL, tenantID, serviceID, id); err != nil {
			return fmt.Errorf("catalog: insert assignment: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("catalog: commit assignment: %w", err)
	}
	return nil
}

// CreateRoom inserts a room, active by default.
func (s *Store) CreateRoom(ctx context.Context, tenantID int64, req *CreateRoomRequest) (*Room, error) {
	var r Room
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (tenant_id, name, active)
		VALUES ($1, $2, true)
		RETURNING id, tenant_id, name, active`,
		tenantID, req.Name,
	).Scan(&r.ID, &r.TenantID, &r.Name, &r.Active)
	if err != nil {
		return nil, fmt.Errorf("catalog: create room: %w", err)
	}
	return &r, nil
}

// ListRooms returns every room for the tenant.
func (s *Store) ListRooms(ctx context.Context, tenantID int64) ([]Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, active
		FROM rooms WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Name, &r.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// CreateDevice inserts a device, active by default.
func (s *Store) CreateDevice(ctx context.Context, tenantID int64, req *CreateDeviceRequest) (*Device, error) {
	var d Device
	err := s.pool.QueryRow(ctx, `
		INSERT INTO devices (tenant_id, name, active)
		VALUES ($1, $2, true)
		RETURNING id, tenant_id, name, active`,
		tenantID, req.Name,
	).Scan(&d.ID, &d.TenantID, &d.Name, &d.Active)
	if err != nil {
		return nil, fmt.Errorf("catalog: create device: %w", err)
	}
	return &d, nil
}

// ListDevices returns every device for the tenant.
func (s *Store) ListDevices(ctx context.Context, tenantID int64) ([]Device, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, active
		FROM devices WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Name, &d.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// SetWorkingHours replaces the doctor's weekly shift set.
func (s *Store) SetWorkingHours(ctx context.Context, tenantID, doctorID int64, hours []WorkingHour) error {
	if err := s.requireDoctor(ctx, tenantID, doctorID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("catalog: begin working hours: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM working_hours WHERE tenant_id = $1 AND doctor_id = $2`,
		tenantID, doctorID); err != nil {
		return fmt.Errorf("catalog: clear working hours: %w", err)
	}
	for _, h := range hours {
		if _, err := tx.Exec(ctx, `
			INSERT INTO working_hours (tenant_id, doctor_id, weekday, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5)`,
			tenantID, doctorID, int16(h.Weekday),
			minutesAsTime(h.StartMinutes), minutesAsTime(h.EndMinutes)); err != nil {
			return fmt.Errorf("catalog: insert working hours: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("catalog: commit working hours: %w", err)
	}
	return nil
}

// ListWorkingHours returns the doctor's weekly shifts.
func (s *Store) ListWorkingHours(ctx context.Context, tenantID, doctorID int64) ([]WorkingHour, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT weekday, start_time, end_time
		FROM working_hours
		WHERE tenant_id = $1 AND doctor_id = $2
		ORDER BY weekday, start_time`, tenantID, doctorID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list working hours: %w", err)
	}
	defer rows.Close()

	var hours []WorkingHour
	for rows.Next() {
		var weekday int16
		var start, end pgtype.Time
		if err := rows.Scan(&weekday, &start, &end); err != nil {
			return nil, fmt.Errorf("catalog: scan working hours: %w", err)
		}
		hours = append(hours, WorkingHour{
			Weekday:      time.Weekday(weekday),
			StartMinutes: int(start.Microseconds / 60_000_000),
			EndMinutes:   int(end.Microseconds / 60_000_000),
		})
	}
	return hours, rows.Err()
}

// CreateBreak adds one blocked range for a doctor.
func (s *Store) CreateBreak(ctx context.Context, tenantID, doctorID int64, req *CreateBreakRequest) (*Break, error) {
	if err := s.requireDoctor(ctx, tenantID, doctorID); err != nil {
		return nil, err
	}
	var b Break
	err := s.pool.QueryRow(ctx, `
		INSERT INTO breaks (tenant_id, doctor_id, starts_at, ends_at, reason)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING id, doctor_id, starts_at, ends_at, COALESCE(reason, '')`,
		tenantID, doctorID, req.StartsAt, req.EndsAt, req.Reason,
	).Scan(&b.ID, &b.DoctorID, &b.StartsAt, &b.EndsAt, &b.Reason)
	if err != nil {
		return nil, fmt.Errorf("catalog: create break: %w", err)
	}
	return &b, nil
}

func (s *Store) requireDoctor(ctx context.Context, tenantID, doctorID int64) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctors WHERE tenant_id = $1 AND id = $2)`,
		tenantID, doctorID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &scheduling.NotFoundError{Resource: "doctor"}
		}
		return fmt.Errorf("catalog: check doctor: %w", err)
	}
	if !exists {
		return &scheduling.NotFoundError{Resource: "doctor"}
	}
	return nil
}

func minutesAsTime(minutes int) pgtype.Time {
	return pgtype.Time{Microseconds: int64(minutes) * 60_000_000, Valid: true}
}
