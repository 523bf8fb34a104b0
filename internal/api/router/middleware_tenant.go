package router

import (
	"net/http"
	"strconv"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
)

// TenantHeader identifies the requesting clinic on every API call.
const TenantHeader = "X-Tenant-Id"

// RequireTenant rejects requests without a valid X-Tenant-Id header and
// stores the tenant id in the request context for downstream handlers.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(TenantHeader)
		if raw == "" {
			tenantError(w, "missing "+TenantHeader+" header")
			return
		}
		tenantID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || tenantID <= 0 {
			tenantError(w, "invalid "+TenantHeader+" header")
			return
		}
		ctx := tenancy.WithTenantID(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
