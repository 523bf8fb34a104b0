package availability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/interval"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

var availabilityTracer = otel.Tracer("scheduler.internal.availability")

// SearchRequest describes one availability query.
type SearchRequest struct {
	TenantID  int64
	ServiceID int64
	From      time.Time
	To        time.Time
	// DoctorIDs narrows the candidate set; empty means every doctor
	// assigned to the service.
	DoctorIDs []int64
	Limit     int
}

// Loader is the data surface the finder reads; *Store implements it.
type Loader interface {
	GetServiceTemplate(ctx context.Context, tenantID, serviceID int64) (*scheduling.ServiceTemplate, error)
	TenantTimezone(ctx context.Context, tenantID int64) (string, error)
	DoctorNames(ctx context.Context, tenantID int64, doctorIDs []int64) (map[int64]string, error)
	ShiftsForDoctors(ctx context.Context, tenantID int64, doctorIDs []int64) (map[int64][]scheduling.Shift, error)
	BreaksInWindow(ctx context.Context, tenantID int64, doctorIDs []int64, from, to time.Time) (map[int64][]scheduling.Break, error)
	BusyIndexes(ctx context.Context, tenantID int64, from, to time.Time) (doctors, rooms *interval.Index[int64], err error)
	DeviceBusyIndex(ctx context.Context, tenantID int64, deviceIDs []int64, from, to time.Time) (*interval.Index[int64], error)
	ActiveRooms(ctx context.Context, tenantID int64) ([]Room, error)
}

// FinderOptions tune the slot finder.
type FinderOptions struct {
	TimezoneMode string
	GridMinutes  int
	DefaultLimit int
	Metrics      *metrics.SchedulingMetrics
}

// Finder loads search inputs in bulk and runs the grid scan.
type Finder struct {
	loader       Loader
	tzMode       string
	grid         time.Duration
	defaultLimit int
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
}

// NewFinder constructs the slot finder.
func NewFinder(loader Loader, logger *logging.Logger, opts FinderOptions) *Finder {
	if loader == nil {
		panic("availability: loader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	tzMode := opts.TimezoneMode
	if tzMode == "" {
		tzMode = config.TimezoneModeUTC
	}
	grid := opts.GridMinutes
	if grid <= 0 {
		grid = 15
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 3
	}
	return &Finder{
		loader:       loader,
		tzMode:       tzMode,
		grid:         time.Duration(grid) * time.Minute,
		defaultLimit: defaultLimit,
		metrics:      opts.Metrics,
		logger:       logger,
	}
}

// FindSlots returns up to req.Limit open slots in the window, ordered by
// start time.
func (f *Finder) FindSlots(ctx context.Context, req SearchRequest) ([]Slot, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.find_slots")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("scheduler.tenant_id", req.TenantID),
		attribute.Int64("scheduler.service_id", req.ServiceID),
	)
	started := time.Now()

	limit := req.Limit
	if limit <= 0 {
		limit = f.defaultLimit
	}

	tpl, err := f.loader.GetServiceTemplate(ctx, req.TenantID, req.ServiceID)
	if err != nil {
		return nil, err
	}

	candidateIDs := tpl.DoctorIDs
	if len(req.DoctorIDs) > 0 {
		candidateIDs = intersect(tpl.DoctorIDs, req.DoctorIDs)
	}
	if len(candidateIDs) == 0 {
		return []Slot{}, nil
	}

	names, err := f.loader.DoctorNames(ctx, req.TenantID, candidateIDs)
	if err != nil {
		return nil, err
	}
	shifts, err := f.loader.ShiftsForDoctors(ctx, req.TenantID, candidateIDs)
	if err != nil {
		return nil, err
	}
	// Breaks and busy spans are probed buffer-expanded, so widen the load
	// window by the buffers.
	loadFrom := req.From.Add(-tpl.BufferBefore())
	loadTo := req.To.Add(tpl.BufferAfter())
	breaks, err := f.loader.BreaksInWindow(ctx, req.TenantID, candidateIDs, loadFrom, loadTo)
	if err != nil {
		return nil, err
	}
	doctorBusy, roomBusy, err := f.loader.BusyIndexes(ctx, req.TenantID, loadFrom, loadTo)
	if err != nil {
		return nil, err
	}
	deviceBusy, err := f.loader.DeviceBusyIndex(ctx, req.TenantID, tpl.DeviceIDs, req.From, req.To)
	if err != nil {
		return nil, err
	}
	var rooms []Room
	if tpl.RequiresRoom {
		rooms, err = f.loader.ActiveRooms(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
	}

	doctors := make([]Doctor, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		name, active := names[id]
		if !active {
			continue
		}
		doctors = append(doctors, Doctor{
			ID:     id,
			Name:   name,
			Shifts: shifts[id],
			Breaks: breaks[id],
		})
	}

	engine := &Engine{Grid: f.grid, Location: f.location(ctx, req.TenantID)}
	slots := engine.Search(SearchData{
		Service:    tpl,
		Doctors:    doctors,
		Rooms:      rooms,
		DoctorBusy: doctorBusy,
		RoomBusy:   roomBusy,
		DeviceBusy: deviceBusy,
	}, req.From, req.To, limit)
	if slots == nil {
		slots = []Slot{}
	}

	f.metrics.ObserveAvailabilitySearch(time.Since(started).Seconds(), len(slots))
	f.logger.Debug("availability search",
		"tenant_id", req.TenantID, "service_id", req.ServiceID,
		"doctors", len(doctors), "slots", len(slots))
	return slots, nil
}

func (f *Finder) location(ctx context.Context, tenantID int64) *time.Location {
	if f.tzMode != config.TimezoneModeTenant {
		return time.UTC
	}
	tzName, err := f.loader.TenantTimezone(ctx, tenantID)
	if err != nil {
		f.logger.Warn("tenant timezone lookup failed, using UTC", "tenant_id", tenantID, "error", err)
		return time.UTC
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		f.logger.Warn("invalid tenant timezone, using UTC", "tenant_id", tenantID, "timezone", tzName)
		return time.UTC
	}
	return loc
}

func intersect(a, b []int64) []int64 {
	allowed := make(map[int64]struct{}, len(b))
	for _, id := range b {
		allowed[id] = struct{}{}
	}
	var out []int64
	for _, id := range a {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
