package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/flowio-app/backend-demo/internal/leads"
	"github.com/flowio-app/backend-demo/internal/obs"
	"github.com/flowio-app/backend-demo/internal/quote"
)

// LeadRecorder appends captured leads to the lead log.
type LeadRecorder interface {
	Record(ctx context.Context, rec leads.Record) error
}

// LeadWorker delivers queued lead webhooks and records the outcome. Delivery
// is best-effort: the handler never signals failure back to the queue, so a
// failed POST stays failed.
type LeadWorker struct {
	Sender Sender
	Store  LeadRecorder
	Logger zerolog.Logger
}

// Handle processes one queued lead webhook task.
func (w LeadWorker) Handle(ctx context.Context, task *asynq.Task) error {
	var payload LeadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.Logger.Error().Err(err).Msg("decode lead webhook task")
		return nil
	}

	start := time.Now()
	status, err := w.Sender.Send(ctx, payload)
	delivered := err == nil && status >= 200 && status < 300

	result := "delivered"
	if !delivered {
		result = "failed"
	}
	if obs.LeadDeliveriesTotal != nil {
		obs.LeadDeliveriesTotal.WithLabelValues(result).Inc()
	}
	if obs.LeadDeliveryLatency != nil {
		obs.LeadDeliveryLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}

	evt := w.Logger.Info()
	if !delivered {
		evt = w.Logger.Warn().Err(err)
	}
	evt.Str("lead_id", payload.LeadID).Int("status", status).Msg("lead webhook delivery")

	w.record(ctx, payload, delivered, status, err)
	return nil
}

func (w LeadWorker) record(ctx context.Context, payload LeadPayload, delivered bool, status int, deliverErr error) {
	if w.Store == nil {
		return
	}
	items, err := json.Marshal(payload.Items)
	if err != nil {
		items = json.RawMessage("[]")
	}
	rec := leads.Record{
		LeadID:      payload.LeadID,
		Name:        payload.Name,
		Trade:       payload.Trade,
		Phone:       payload.Phone,
		Email:       payload.Email,
		Items:       items,
		TotalCents:  quote.FromDollars(payload.Total),
		Attribution: payload.Attribution,
		Delivered:   delivered,
	}
	if status > 0 {
		rec.ResponseStatus = &status
	}
	if deliverErr != nil {
		rec.DeliveryError = deliverErr.Error()
	}
	if err := w.Store.Record(ctx, rec); err != nil {
		w.Logger.Warn().Err(err).Str("lead_id", payload.LeadID).Msg("record lead capture")
	}
}
