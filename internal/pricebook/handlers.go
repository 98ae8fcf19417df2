package pricebook

import (
	"net/http"

	"github.com/flowio-app/backend-demo/internal/common"
)

// Handler serves the pricing catalog.
type Handler struct {
	Service *Service
}

// Items lists the selectable catalog entries.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Service.Items(r.Context())})
}
