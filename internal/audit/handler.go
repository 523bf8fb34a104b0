package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler serves appointment history over HTTP.
type Handler struct {
	reader *Reader
	logger *logging.Logger
}

// NewHandler creates the audit handler.
func NewHandler(reader *Reader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{reader: reader, logger: logger}
}

// Routes mounts the history endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/appointments/{appointmentID}/history", h.GetHistory)
}

// GetHistory returns the appointment's audit trail, oldest first.
// GET /appointments/{appointmentID}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	appointmentID, err := strconv.ParseInt(chi.URLParam(r, "appointmentID"), 10, 64)
	if err != nil || appointmentID <= 0 {
		h.error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	if h.reader == nil {
		h.error(w, "history disabled", http.StatusServiceUnavailable)
		return
	}

	entries, err := h.reader.ListForAppointment(r.Context(), tenantID, appointmentID)
	if err != nil {
		h.logger.Error("audit history failed", "appointment_id", appointmentID, "error", err)
		h.error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"appointment_id": appointmentID,
		"history":        entries,
	})
}

func (h *Handler) error(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
