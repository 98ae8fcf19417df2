package leads

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/flowio-app/backend-demo/internal/common"
)

// Handler exposes the captured lead log to operators.
type Handler struct {
	Store *Store
}

// List returns recent captures for a lead identifier.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "lead store not configured", nil)
		return
	}
	leadID := strings.TrimSpace(r.URL.Query().Get("leadId"))
	if leadID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "leadId query parameter is required", nil)
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	records, err := h.Store.ListByLead(r.Context(), leadID, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list leads", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": records})
}
