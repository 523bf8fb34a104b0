package availability

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// maxWindow caps the search span to keep a single request from scanning
// months of calendar.
const maxWindow = 60 * 24 * time.Hour

// Handler serves slot search over HTTP.
type Handler struct {
	finder *Finder
	logger *logging.Logger
}

// NewHandler creates the availability handler.
func NewHandler(finder *Finder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{finder: finder, logger: logger}
}

// Routes mounts the availability endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/availability", h.GetAvailability)
}

// GetAvailability returns the next open slots for a service.
// GET /availability?service_id=5&from=...&to=...&doctor_ids=7,8&limit=3
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		writeError(w, "missing tenant", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	serviceID, err := strconv.ParseInt(q.Get("service_id"), 10, 64)
	if err != nil || serviceID <= 0 {
		writeError(w, "service_id is required", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, "from must be RFC3339", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, "to must be RFC3339", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		writeError(w, "to must be after from", http.StatusBadRequest)
		return
	}
	if to.Sub(from) > maxWindow {
		writeError(w, "search window too large", http.StatusBadRequest)
		return
	}

	doctorIDs, err := parseIDList(q.Get("doctor_ids"))
	if err != nil {
		writeError(w, "doctor_ids must be a comma-separated id list", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 100 {
			writeError(w, "limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
	}

	slots, err := h.finder.FindSlots(r.Context(), SearchRequest{
		TenantID:  tenantID,
		ServiceID: serviceID,
		From:      from,
		To:        to,
		DoctorIDs: doctorIDs,
		Limit:     limit,
	})
	if err != nil {
		var nf *scheduling.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, nf.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("availability search failed", "tenant_id", tenantID, "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"slots": slots,
		"limit": limitOrDefault(limit, h.finder.defaultLimit),
	})
}

func parseIDList(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("invalid id list")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func limitOrDefault(limit, fallback int) int {
	if limit > 0 {
		return limit
	}
	return fallback
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
