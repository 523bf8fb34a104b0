package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func TestReaderListForAppointment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, appointment_id, action, changes, created_at").
		WithArgs(int64(1), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "appointment_id", "action", "changes", "created_at"}).
			AddRow(int64(1), int64(42), "created", `{"doctor_id":7}`, created).
			AddRow(int64(2), int64(42), "rescheduled", `{"starts_at":"2026-03-02T14:00:00Z"}`, created.Add(time.Hour)).
			AddRow(int64(3), int64(42), "cancelled", nil, created.Add(2*time.Hour)))

	entries, err := NewReader(db).ListForAppointment(context.Background(), 1, 42)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "created", entries[0].Action)
	assert.JSONEq(t, `{"doctor_id":7}`, string(entries[0].Changes))
	assert.Equal(t, "cancelled", entries[2].Action)
	assert.Nil(t, entries[2].Changes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderEmptyHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, appointment_id, action, changes, created_at").
		WithArgs(int64(1), int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "appointment_id", "action", "changes", "created_at"}))

	entries, err := NewReader(db).ListForAppointment(context.Background(), 1, 99)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandlerGetHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, appointment_id, action, changes, created_at").
		WithArgs(int64(1), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "appointment_id", "action", "changes", "created_at"}).
			AddRow(int64(1), int64(42), "created", `{"doctor_id":7}`, created))

	handler := NewHandler(NewReader(db), logging.New("error"))
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithTenantID(req.Context(), 1)))
		})
	})
	router.Group(handler.Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/42/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"action":"created"`)
}
