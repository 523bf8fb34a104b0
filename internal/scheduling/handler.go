package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler exposes the appointment lifecycle over HTTP. All routes run inside
// the tenant-scoped router group, so a tenant id is always on the context.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates the lifecycle handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the appointment endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/appointments", h.CreateAppointment)
	r.Get("/appointments/{appointmentID}", h.GetAppointment)
	r.Patch("/appointments/{appointmentID}", h.RescheduleAppointment)
	r.Delete("/appointments/{appointmentID}", h.CancelAppointment)
	r.Get("/schedule", h.GetSchedule)
	r.Get("/doctors/{doctorID}/schedule", h.GetDoctorSchedule)
}

// CreateAppointment books an appointment.
// POST /appointments
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		jsonError(w, "missing tenant", http.StatusBadRequest)
		return
	}

	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req.TenantID = tenantID

	appt, err := h.service.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// GetAppointment returns one appointment.
// GET /appointments/{appointmentID}
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		jsonError(w, "missing tenant", http.StatusBadRequest)
		return
	}
	appointmentID, err := pathID(r, "appointmentID")
	if err != nil {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	appt, err := h.service.Get(r.Context(), tenantID, appointmentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// RescheduleAppointment moves an appointment.
// PATCH /appointments/{appointmentID}
func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		jsonError(w, "missing tenant", http.StatusBadRequest)
		return
	}
	appointmentID, err := pathID(r, "appointmentID")
	if err != nil {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	var req RescheduleAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	appt, err := h.service.Reschedule(r.Context(), tenantID, appointmentID, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// CancelAppointment cancels an appointment.
// DELETE /appointments/{appointmentID}
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		jsonError(w, "missing tenant", http.StatusBadRequest)
		return
	}
	appointmentID, err := pathID(r, "appointmentID")
	if err != nil {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	appt, err := h.service.Cancel(r.Context(), tenantID, appointmentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// GetSchedule returns the calendar feed for a window.
// GET /schedule?from=...&to=...&doctor_id=...
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	h.schedule(w, r, 0)
}

// GetDoctorSchedule returns one doctor's calendar feed.
// GET /doctors/{doctorID}/schedule?from=...&to=...
func (h *Handler) GetDoctorSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathID(r, "doctorID")
	if err != nil {
		jsonError(w, "invalid doctor id", http.StatusBadRequest)
		return
	}
	h.schedule(w, r, doctorID)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request, doctorID int64) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		jsonError(w, "missing tenant", http.StatusBadRequest)
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		jsonError(w, "from must be RFC3339", http.StatusBadRequest)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		jsonError(w, "to must be RFC3339", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		jsonError(w, "to must be after from", http.StatusBadRequest)
		return
	}
	if doctorID == 0 {
		if raw := r.URL.Query().Get("doctor_id"); raw != "" {
			doctorID, err = strconv.ParseInt(raw, 10, 64)
			if err != nil || doctorID <= 0 {
				jsonError(w, "invalid doctor_id", http.StatusBadRequest)
				return
			}
		}
	}

	entries, err := h.service.Schedule(r.Context(), tenantID, from, to, doctorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []ScheduleEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": entries})
}

// writeError maps domain errors to HTTP responses. Conflicts get the full
// per-resource detail list alongside the summary sentence.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound   *NotFoundError
		validation *ValidationError
		conflict   *ConflictError
	)
	switch {
	case errors.As(err, &notFound):
		jsonError(w, notFound.Error(), http.StatusNotFound)
	case errors.As(err, &validation):
		jsonError(w, validation.Error(), http.StatusBadRequest)
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "scheduling_conflict",
			"message":   conflict.Message(),
			"conflicts": conflict.Conflicts,
		})
	default:
		h.logger.Error("scheduling request failed", "path", r.URL.Path, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, errors.New(name + " is required")
	}
	return time.Parse(time.RFC3339, raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
