// Package audit reads the immutable appointment change trail. Entries are
// written transactionally by the scheduling store; this package only queries
// them.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one appointment lifecycle event.
type Entry struct {
	ID            int64           `json:"id"`
	AppointmentID int64           `json:"appointment_id"`
	Action        string          `json:"action"`
	Changes       json.RawMessage `json:"changes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Reader queries the appointment audit log.
type Reader struct {
	db *sql.DB
}

// NewReader creates a reader over the given database handle.
func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// ListForAppointment returns the appointment's history, oldest first.
func (r *Reader) ListForAppointment(ctx context.Context, tenantID, appointmentID int64) ([]Entry, error) {
	query := `
		SELECT id, appointment_id, action, changes, created_at
		FROM appointment_audit_log
		WHERE tenant_id = $1 AND appointment_id = $2
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var changes sql.NullString
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.Action, &changes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		if changes.Valid {
			e.Changes = json.RawMessage(changes.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
