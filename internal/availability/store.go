package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wolfman30/clinic-scheduler/internal/interval"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// Store batch-loads everything a slot search needs. It embeds the scheduling
// repository for the service template and tenant timezone lookups.
type Store struct {
	*scheduling.Repository
	pool scheduling.PgxPool
}

// NewStore creates an availability store over the shared pool.
func NewStore(pool scheduling.PgxPool) *Store {
	return &Store{Repository: scheduling.NewRepository(pool), pool: pool}
}

// DoctorNames resolves active doctors from the given id set. Inactive doctors
// drop out of the result.
func (s *Store) DoctorNames(ctx context.Context, tenantID int64, doctorIDs []int64) (map[int64]string, error) {
	query := `
		SELECT id, name FROM doctors
		WHERE tenant_id = $1 AND id = ANY($2) AND active
	`
	rows, err := s.pool.Query(ctx, query, tenantID, doctorIDs)
	if err != nil {
		return nil, fmt.Errorf("availability: load doctors: %w", err)
	}
	defer rows.Close()

	names := make(map[int64]string, len(doctorIDs))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("availability: scan doctor: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// ShiftsForDoctors loads the weekly working hours for every doctor at once.
func (s *Store) ShiftsForDoctors(ctx context.Context, tenantID int64, doctorIDs []int64) (map[int64][]scheduling.Shift, error) {
	query := `
		SELECT doctor_id, weekday, start_time, end_time
		FROM working_hours
		WHERE tenant_id = $1 AND doctor_id = ANY($2)
		ORDER BY doctor_id, weekday, start_time
	`
	rows, err := s.pool.Query(ctx, query, tenantID, doctorIDs)
	if err != nil {
		return nil, fmt.Errorf("availability: load working hours: %w", err)
	}
	defer rows.Close()

	shifts := make(map[int64][]scheduling.Shift)
	for rows.Next() {
		var doctorID int64
		var weekday int16
		var start, end pgtype.Time
		if err := rows.Scan(&doctorID, &weekday, &start, &end); err != nil {
			return nil, fmt.Errorf("availability: scan shift: %w", err)
		}
		shifts[doctorID] = append(shifts[doctorID], scheduling.Shift{
			Weekday:      time.Weekday(weekday),
			StartMinutes: int(start.Microseconds / 60_000_000),
			EndMinutes:   int(end.Microseconds / 60_000_000),
		})
	}
	return shifts, rows.Err()
}

// BreaksInWindow loads every break for the doctors overlapping [from, to).
func (s *Store) BreaksInWindow(ctx context.Context, tenantID int64, doctorIDs []int64, from, to time.Time) (map[int64][]scheduling.Break, error) {
	query := `
		SELECT id, doctor_id, starts_at, ends_at, COALESCE(reason, '')
		FROM breaks
		WHERE tenant_id = $1 AND doctor_id = ANY($2) AND starts_at < $4 AND ends_at > $3
		ORDER BY doctor_id, starts_at
	`
	rows, err := s.pool.Query(ctx, query, tenantID, doctorIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: load breaks: %w", err)
	}
	defer rows.Close()

	breaks := make(map[int64][]scheduling.Break)
	for rows.Next() {
		var b scheduling.Break
		if err := rows.Scan(&b.ID, &b.DoctorID, &b.StartsAt, &b.EndsAt, &b.Reason); err != nil {
			return nil, fmt.Errorf("availability: scan break: %w", err)
		}
		breaks[b.DoctorID] = append(breaks[b.DoctorID], b)
	}
	return breaks, rows.Err()
}

// BusyIndexes builds the doctor and room busy indexes from every non-cancelled
// appointment whose buffer-expanded span overlaps [from, to). Intervals are
// stored already expanded, matching the conflict queries.
func (s *Store) BusyIndexes(ctx context.Context, tenantID int64, from, to time.Time) (doctors, rooms *interval.Index[int64], err error) {
	query := `
		SELECT a.doctor_id, a.room_id,
			a.starts_at - a.buffer_before, a.ends_at + a.buffer_after
		FROM appointments a
		WHERE a.tenant_id = $1 AND a.status <> 'cancelled'
		  AND a.starts_at - a.buffer_before < $3
		  AND a.ends_at + a.buffer_after > $2
	`
	rows, err := s.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("availability: load busy appointments: %w", err)
	}
	defer rows.Close()

	doctors = interval.NewIndex[int64]()
	rooms = interval.NewIndex[int64]()
	for rows.Next() {
		var doctorID int64
		var roomID *int64
		var start, end time.Time
		if err := rows.Scan(&doctorID, &roomID, &start, &end); err != nil {
			return nil, nil, fmt.Errorf("availability: scan busy appointment: %w", err)
		}
		doctors.Add(doctorID, start, end)
		if roomID != nil {
			rooms.Add(*roomID, start, end)
		}
	}
	return doctors, rooms, rows.Err()
}

// DeviceBusyIndex builds the raw-span busy index for the required devices.
func (s *Store) DeviceBusyIndex(ctx context.Context, tenantID int64, deviceIDs []int64, from, to time.Time) (*interval.Index[int64], error) {
	index := interval.NewIndex[int64]()
	if len(deviceIDs) == 0 {
		return index, nil
	}
	query := `
		SELECT ad.device_id, ad.starts_at, ad.ends_at
		FROM appointment_devices ad
		JOIN appointments a ON a.id = ad.appointment_id
		WHERE ad.tenant_id = $1 AND ad.device_id = ANY($2)
		  AND a.status <> 'cancelled'
		  AND ad.starts_at < $4 AND ad.ends_at > $3
	`
	rows, err := s.pool.Query(ctx, query, tenantID, deviceIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: load device reservations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var deviceID int64
		var start, end time.Time
		if err := rows.Scan(&deviceID, &start, &end); err != nil {
			return nil, fmt.Errorf("availability: scan device reservation: %w", err)
		}
		index.Add(deviceID, start, end)
	}
	return index, rows.Err()
}

// ActiveRooms lists bookable rooms for the tenant.
func (s *Store) ActiveRooms(ctx context.Context, tenantID int64) ([]Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM rooms WHERE tenant_id = $1 AND active ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("availability: load rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Name); err != nil {
			return nil, fmt.Errorf("availability: scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
