package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler exposes catalog CRUD over HTTP.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates the catalog handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes mounts the catalog endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/doctors", h.CreateDoctor)
	r.Get("/doctors", h.ListDoctors)
	r.Put("/doctors/{doctorID}/working-hours", h.SetWorkingHours)
	r.Get("/doctors/{doctorID}/working-hours", h.ListWorkingHours)
	r.Post("/doctors/{doctorID}/breaks", h.CreateBreak)

	r.Post("/patients", h.CreatePatient)
	r.Get("/patients", h.ListPatients)

	r.Post("/services", h.CreateService)
	r.Get("/services", h.ListServices)
	r.Put("/services/{serviceID}/doctors", h.AssignServiceDoctors)
	r.Put("/services/{serviceID}/devices", h.AssignServiceDevices)

	r.Post("/rooms", h.CreateRoom)
	r.Get("/rooms", h.ListRooms)

	r.Post("/devices", h.CreateDevice)
	r.Get("/devices", h.ListDevices)
}

// CreateDoctor handles POST /doctors.
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	var req CreateDoctorRequest
	if !h.decode(w, r, &req) {
		return
	}
	doctor, err := h.store.CreateDoctor(r.Context(), tenantID, &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, doctor)
}

// ListDoctors handles GET /doctors.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(tenantID int64) (any, error) {
		doctors, err := h.store.ListDoctors(r.Context(), tenantID)
		return map[string]any{"doctors": emptyIfNil(doctors)}, err
	})
}

// SetWorkingHours handles PUT /doctors/{doctorID}/working-hours.
func (h *Handler) SetWorkingHours(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	doctorID, err := pathID(r, "doctorID")
	if err != nil {
		h.error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}
	var req SetWorkingHoursRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.SetWorkingHours(r.Context(), tenantID, doctorID, req.Hours); err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"doctor_id": doctorID, "hours": len(req.Hours)})
}

// ListWorkingHours handles GET /doctors/{doctorID}/working-hours.
func (h *Handler) ListWorkingHours(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	doctorID, err := pathID(r, "doctorID")
	if err != nil {
		h.error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}
	hours, err := h.store.ListWorkingHours(r.Context(), tenantID, doctorID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"hours": emptyIfNil(hours)})
}

// CreateBreak handles POST /doctors/{doctorID}/breaks.
func (h *Handler) CreateBreak(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	doctorID, err := pathID(r, "doctorID")
	if err != nil {
		h.error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}
	var req CreateBreakRequest
	if !h.decode(w, r, &req) {
		return
	}
	brk, err := h.store.CreateBreak(r.Context(), tenantID, doctorID, &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, brk)
}

// CreatePatient handles POST /patients.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	var req CreatePatientRequest
	if !h.decode(w, r, &req) {
		return
	}
	patient, err := h.store.CreatePatient(r.Context(), tenantID, &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, patient)
}

// ListPatients handles GET /patients.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(tenantID int64) (any, error) {
		patients, err := h.store.ListPatients(r.Context(), tenantID)
		return map[string]any{"patients": emptyIfNil(patients)}, err
	})
}

// CreateService handles POST /services.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	var req CreateServiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	service, err := h.store.CreateService(r.Context(), tenantID, &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, service)
}

// ListServices handles GET /services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(tenantID int64) (any, error) {
		services, err := h.store.ListServices(r.Context(), tenantID)
		return map[string]any{"services": emptyIfNil(services)}, err
	})
}

// AssignServiceDoctors handles PUT /services/{serviceID}/doctors.
func (h *Handler) AssignServiceDoctors(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, h.store.AssignServiceDoctors)
}

// AssignServiceDevices handles PUT /services/{serviceID}/devices.
func (h *Handler) AssignServiceDevices(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, h.store.AssignServiceDevices)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request, replace func(ctx context.Context, tenantID, serviceID int64, ids []int64) error) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	serviceID, err := pathID(r, "serviceID")
	if err != nil {
		h.error(w, "invalid service id", http.StatusBadRequest)
		return
	}
	var req AssignIDsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := replace(r.Context(), tenantID, serviceID, req.IDs); err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"service_id": serviceID, "assigned": len(req.IDs)})
}

// CreateRoom handles POST /rooms.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	var req CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}
	room, err := h.store.CreateRoom(r.Context(), tenantID, &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, room)
}

// ListRooms handles GET /rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(tenantID int64) (any, error) {
		rooms, err := h.store.ListRooms(r.Context(), tenantID)
		return map[string]any{"rooms": emptyIfNil(rooms)}, err
	})
}

// CreateDevice handles POST /devices.
func (h *Handler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	var req CreateDeviceRequest
	if !h.decode(w, r, &req) {
		return
	}
	device, err := h.store.CreateDevice(r.Context(), tenantID, &req)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, device)
}

// ListDevices handles GET /devices.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(tenantID int64) (any, error) {
		devices, err := h.store.ListDevices(r.Context(), tenantID)
		return map[string]any{"devices": emptyIfNil(devices)}, err
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, load func(tenantID int64) (any, error)) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		h.error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	payload, err := load(tenantID)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, payload)
}

type validator interface {
	Validate() error
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst validator) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	if err := dst.Validate(); err != nil {
		h.error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	var nf *scheduling.NotFoundError
	if errors.As(err, &nf) {
		h.error(w, nf.Error(), http.StatusNotFound)
		return
	}
	h.logger.Error("catalog request failed", "path", r.URL.Path, "error", err)
	h.error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) json(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) error(w http.ResponseWriter, message string, status int) {
	h.json(w, status, map[string]string{"error": message})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
