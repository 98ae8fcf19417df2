package attribution

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/flowio-app/backend-demo/internal/common"
	"github.com/flowio-app/backend-demo/internal/obs"
)

// Handler exposes attribution capture over HTTP.
type Handler struct {
	Store *Store
}

type captureRequest struct {
	URL      string `json:"url"`
	Referrer string `json:"referrer"`
}

// Capture merges attribution parameters from the reported landing URL into
// storage and returns the resulting attribution map together with the lead
// identifier. Storage failures degrade silently; this endpoint never blocks
// page rendering.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "attribution store not configured", nil)
		return
	}
	leadID, _ := LeadID(r.Context())

	var payload captureRequest
	_ = json.NewDecoder(r.Body).Decode(&payload)

	params := url.Values{}
	landing := strings.TrimSpace(payload.URL)
	if landing != "" {
		if parsed, err := url.Parse(landing); err == nil {
			params = parsed.Query()
		}
	}

	attrib := h.Store.Capture(r.Context(), leadID, params, landing, payload.Referrer, r.UserAgent())
	if obs.AttributionCapturesTotal != nil {
		obs.AttributionCapturesTotal.Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"leadId":      leadID,
			"attribution": attrib,
		},
	})
}

// Current returns the stored attribution map for the requesting lead.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "attribution store not configured", nil)
		return
	}
	leadID, _ := LeadID(r.Context())
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"leadId":      leadID,
			"attribution": h.Store.Current(r.Context(), leadID),
		},
	})
}
