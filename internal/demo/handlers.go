package demo

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/flowio-app/backend-demo/internal/attribution"
	"github.com/flowio-app/backend-demo/internal/common"
	"github.com/flowio-app/backend-demo/internal/quote"
)

// Handler wires the demo flow to HTTP.
type Handler struct {
	Flow     *Flow
	Validate *validator.Validate
	Currency string
}

type createSessionRequest struct {
	Entry string `json:"entry"`
}

type addItemRequest struct {
	SKU string `json:"sku" validate:"required"`
}

type gateRequest struct {
	Name  string `json:"name" validate:"required"`
	Trade string `json:"trade" validate:"required"`
	Phone string `json:"phone" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type acceptRequest struct {
	Date          string `json:"date" validate:"required"`
	Time          string `json:"time" validate:"required"`
	TermsAccepted bool   `json:"termsAccepted"`
}

// Create starts a new demo session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Flow == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "demo flow not configured", nil)
		return
	}
	var payload createSessionRequest
	_ = json.NewDecoder(r.Body).Decode(&payload)
	entry := strings.TrimSpace(strings.ToLower(payload.Entry))
	if entry != "" && entry != "accept" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "entry must be empty or \"accept\"", nil)
		return
	}
	s := h.Flow.CreateSession(entry)
	common.JSON(w, http.StatusCreated, map[string]any{"data": h.view(s)})
}

// Get returns the current session snapshot.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.Flow.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(s)})
}

// AddItem adds a pricebook entry to the working quote.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload addItemRequest
	if !h.decode(w, r, &payload) {
		return
	}
	s, err := h.Flow.AddItem(r.Context(), chi.URLParam(r, "id"), payload.SKU)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(s)})
}

// RemoveItem drops a line item from the working quote.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.Flow.RemoveItem(chi.URLParam(r, "id"), chi.URLParam(r, "sku"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(s)})
}

// Generate kicks off quote generation.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	s, err := h.Flow.Generate(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(s)})
}

// Back returns from the gate to the builder.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	s, err := h.Flow.Back(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(s)})
}

// Gate submits the lead-capture form.
func (h *Handler) Gate(w http.ResponseWriter, r *http.Request) {
	var payload gateRequest
	if !h.decode(w, r, &payload) {
		return
	}
	leadID, _ := attribution.LeadID(r.Context())
	s, err := h.Flow.SubmitGate(r.Context(), chi.URLParam(r, "id"), leadID, LeadDetails{
		Name:  strings.TrimSpace(payload.Name),
		Trade: strings.TrimSpace(payload.Trade),
		Phone: strings.TrimSpace(payload.Phone),
		Email: strings.TrimSpace(payload.Email),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(s)})
}

// Resend re-arms the sent-screen status label.
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	s, err := h.Flow.Resend(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(s)})
}

// Accept enters the accept branch from the sent screen.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	s, err := h.Flow.OpenAccept(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(s)})
}

// ConfirmAccept validates the accept modal and starts playback.
func (h *Handler) ConfirmAccept(w http.ResponseWriter, r *http.Request) {
	var payload acceptRequest
	if !h.decode(w, r, &payload) {
		return
	}
	s, err := h.Flow.ConfirmAccept(chi.URLParam(r, "id"), payload.Date, payload.Time, payload.TermsAccepted)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.view(s)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if h.Flow == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "demo flow not configured", nil)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json payload", nil)
		return false
	}
	if h.Validate == nil {
		return true
	}
	if err := h.Validate.Struct(dst); err != nil {
		details := map[string]string{}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				details[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "missing or invalid fields", details)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "demo session not found", nil)
	case errors.Is(err, ErrEmptyQuote):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "add at least one item before generating", nil)
	case errors.Is(err, ErrTermsRequired):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "please accept the terms to proceed", nil)
	case errors.Is(err, ErrUnknownItem):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "unknown pricebook item", nil)
	case errors.Is(err, ErrInvalidStage):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "action not allowed in current stage", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process demo action", nil)
	}
}

type sessionView struct {
	ID                string            `json:"id"`
	Stage             Stage             `json:"stage"`
	Items             []quote.LineItem  `json:"items"`
	Totals            totalsView        `json:"totals"`
	GenerationSeconds *float64          `json:"generationSeconds,omitempty"`
	ResendStatus      string            `json:"resendStatus,omitempty"`
	AcceptDate        string            `json:"acceptDate,omitempty"`
	AcceptTime        string            `json:"acceptTime,omitempty"`
	Playback          *PlaybackState    `json:"playback,omitempty"`
	CompletedActions  []CompletedAction `json:"completedActions,omitempty"`
	TimeSaved         *TimeSaved        `json:"timeSaved,omitempty"`
}

type totalsView struct {
	Subtotal quote.Money `json:"subtotal"`
	Tax      quote.Money `json:"tax"`
	Total    quote.Money `json:"total"`
	Currency string      `json:"currency"`
}

func (h *Handler) view(s Session) sessionView {
	currency := h.Currency
	if currency == "" {
		currency = "AUD"
	}
	items := s.Items
	if items == nil {
		items = []quote.LineItem{}
	}
	v := sessionView{
		ID:           s.ID,
		Stage:        s.Stage,
		Items:        items,
		Totals:       totalsView{Subtotal: s.Totals.Subtotal, Tax: s.Totals.Tax, Total: s.Totals.Total, Currency: currency},
		ResendStatus: s.ResendStatus,
		AcceptDate:   s.AcceptDate,
		AcceptTime:   s.AcceptTime,
	}
	if s.GenerationElapsed > 0 {
		secs := s.GenerationElapsed.Seconds()
		v.GenerationSeconds = &secs
	}
	if s.Stage == StagePlayback {
		playback := s.Playback
		v.Playback = &playback
	}
	if s.Stage == StageComplete {
		v.CompletedActions = CompletedActions()
		saved := DefaultTimeSaved()
		v.TimeSaved = &saved
	}
	return v
}
