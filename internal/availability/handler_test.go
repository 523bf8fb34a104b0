package availability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func newTestRouter(loader *fakeLoader) chi.Router {
	handler := NewHandler(newTestFinder(loader), logging.New("error"))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithTenantID(req.Context(), 1)))
		})
	})
	r.Group(handler.Routes)
	return r
}

func TestHandlerGetAvailability(t *testing.T) {
	router := newTestRouter(newFakeLoader())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/availability?service_id=5&from=2026-03-02T00:00:00Z&to=2026-03-03T00:00:00Z&limit=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Slots []Slot `json:"slots"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Slots) != 2 || payload.Limit != 2 {
		t.Fatalf("payload = %+v", payload)
	}
	if !payload.Slots[0].StartsAt.Equal(at(9, 0)) {
		t.Fatalf("first slot = %v", payload.Slots[0].StartsAt)
	}
}

func TestHandlerBadQueries(t *testing.T) {
	router := newTestRouter(newFakeLoader())

	cases := map[string]string{
		"missing service": "/availability?from=2026-03-02T00:00:00Z&to=2026-03-03T00:00:00Z",
		"bad from":        "/availability?service_id=5&from=tomorrow&to=2026-03-03T00:00:00Z",
		"inverted window": "/availability?service_id=5&from=2026-03-03T00:00:00Z&to=2026-03-02T00:00:00Z",
		"huge window":     "/availability?service_id=5&from=2026-03-02T00:00:00Z&to=2026-12-01T00:00:00Z",
		"bad doctor list": "/availability?service_id=5&from=2026-03-02T00:00:00Z&to=2026-03-03T00:00:00Z&doctor_ids=7,x",
		"bad limit":       "/availability?service_id=5&from=2026-03-02T00:00:00Z&to=2026-03-03T00:00:00Z&limit=0",
	}
	for name, url := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandlerUnknownServiceNotFound(t *testing.T) {
	router := newTestRouter(newFakeLoader())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/availability?service_id=99&from=2026-03-02T00:00:00Z&to=2026-03-03T00:00:00Z", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
