package demo

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowio-app/backend-demo/internal/attribution"
	"github.com/flowio-app/backend-demo/internal/notify"
	"github.com/flowio-app/backend-demo/internal/obs"
	"github.com/flowio-app/backend-demo/internal/pricebook"
	"github.com/flowio-app/backend-demo/internal/quote"
)

// Enqueuer hands assembled lead payloads to the delivery queue.
type Enqueuer interface {
	EnqueueLead(ctx context.Context, p notify.LeadPayload) error
}

// Flow orchestrates demo sessions: it owns transition sequencing, timer
// scheduling, and the single outbound side effect (the lead webhook). The
// webhook is fire-and-forget: a visitor is never blocked by a transient
// network error during a demo.
type Flow struct {
	Sessions  *Store
	Pricebook *pricebook.Service
	Attrib    *attribution.Store
	Queue     Enqueuer

	TaxBps        int
	GenerateDelay time.Duration
	ResendDelay   time.Duration
	Script        []Step
	CompleteAfter time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

func (f *Flow) now() time.Time {
	if f != nil && f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Flow) taxBps() int {
	if f == nil || f.TaxBps <= 0 {
		return 1000
	}
	return f.TaxBps
}

func (f *Flow) generateDelay() time.Duration {
	if f == nil || f.GenerateDelay <= 0 {
		return 1500 * time.Millisecond
	}
	return f.GenerateDelay
}

func (f *Flow) resendDelay() time.Duration {
	if f == nil || f.ResendDelay <= 0 {
		return 1500 * time.Millisecond
	}
	return f.ResendDelay
}

func (f *Flow) script() []Step {
	if f == nil || len(f.Script) == 0 {
		return DefaultScript()
	}
	return f.Script
}

func (f *Flow) completeAfter() time.Duration {
	if f == nil || f.CompleteAfter <= 0 {
		return DefaultCompleteAfter
	}
	return f.CompleteAfter
}

func countTransition(stage Stage) {
	if obs.DemoStageTransitionsTotal != nil {
		obs.DemoStageTransitionsTotal.WithLabelValues(string(stage)).Inc()
	}
}

// CreateSession starts a new walkthrough. entry "accept" starts directly in
// the accept branch for the standalone accept simulation.
func (f *Flow) CreateSession(entry string) Session {
	stage := StageBuilding
	if entry == "accept" {
		stage = StageAccept
	}
	if obs.DemoSessionsTotal != nil {
		obs.DemoSessionsTotal.WithLabelValues(string(stage)).Inc()
	}
	return f.Sessions.Create(stage)
}

// Get returns a copy of the session state.
func (f *Flow) Get(id string) (Session, error) {
	return f.Sessions.Get(id)
}

// AddItem puts a pricebook entry on the working quote.
func (f *Flow) AddItem(ctx context.Context, id, sku string) (Session, error) {
	item, ok := f.Pricebook.Find(ctx, sku)
	if !ok {
		s, err := f.Sessions.Get(id)
		if err != nil {
			return Session{}, err
		}
		return s, ErrUnknownItem
	}
	return f.Sessions.Update(id, func(s *Session) error {
		return s.addItem(quote.LineItem{SKU: item.SKU, Name: item.Name, Qty: 1, UnitRate: item.Rate}, f.taxBps())
	})
}

// RemoveItem drops a line item from the working quote.
func (f *Flow) RemoveItem(id, sku string) (Session, error) {
	return f.Sessions.Update(id, func(s *Session) error {
		return s.removeItem(sku, f.taxBps())
	})
}

// Generate starts the perceived-latency animation. After the fixed delay the
// session advances to the gate with the measured elapsed time frozen. No
// backend work happens here; the delay is the product.
func (f *Flow) Generate(id string) (Session, error) {
	s, err := f.Sessions.Update(id, func(s *Session) error {
		return s.startGenerating(f.now())
	})
	if err != nil {
		return s, err
	}
	countTransition(StageGenerating)
	f.Sessions.Schedule(id, f.generateDelay(), func(s *Session) {
		if err := s.finishGenerating(f.now()); err == nil {
			countTransition(StageGate)
		}
	})
	return s, nil
}

// Back returns from the gate to the quote builder.
func (f *Flow) Back(id string) (Session, error) {
	s, err := f.Sessions.Update(id, func(s *Session) error {
		return s.backToBuilding()
	})
	if err == nil {
		countTransition(StageBuilding)
	}
	return s, err
}

// SubmitGate records the lead details, queues the webhook payload, and
// advances to the sent screen. The transition never depends on the submission
// outcome; enqueue failures are logged and swallowed.
func (f *Flow) SubmitGate(ctx context.Context, id, leadID string, lead LeadDetails) (Session, error) {
	s, err := f.Sessions.Update(id, func(s *Session) error {
		return s.submitGate(lead)
	})
	if err != nil {
		return s, err
	}
	countTransition(StageSent)

	payload := notify.LeadPayload{
		Action:      "demoLead",
		Timestamp:   f.now(),
		LeadID:      leadID,
		Name:        lead.Name,
		Trade:       lead.Trade,
		Phone:       lead.Phone,
		Email:       lead.Email,
		Items:       leadItems(s.Items),
		Total:       quote.Dollars(s.Totals.Total),
		Attribution: f.Attrib.Current(ctx, leadID),
	}
	result := "enqueued"
	if f.Queue == nil {
		result = "skipped"
	} else if err := f.Queue.EnqueueLead(ctx, payload); err != nil {
		result = "enqueue_failed"
		f.Logger.Warn().Err(err).Str("lead_id", leadID).Msg("queue lead webhook")
	}
	if obs.LeadSubmissionsTotal != nil {
		obs.LeadSubmissionsTotal.WithLabelValues(result).Inc()
	}
	return s, nil
}

// Resend re-arms the sent-screen status label. No new network call is made.
func (f *Flow) Resend(id string) (Session, error) {
	s, err := f.Sessions.Update(id, func(s *Session) error {
		return s.startResend()
	})
	if err != nil {
		return s, err
	}
	f.Sessions.Schedule(id, f.resendDelay(), func(s *Session) {
		_ = s.finishResend()
	})
	return s, nil
}

// OpenAccept moves from the sent screen into the accept branch.
func (f *Flow) OpenAccept(id string) (Session, error) {
	s, err := f.Sessions.Update(id, func(s *Session) error {
		return s.openAccept()
	})
	if err == nil {
		countTransition(StageAccept)
	}
	return s, err
}

// ConfirmAccept validates the accept modal and starts the scripted playback.
// The terms checkbox is a local guard only; without it nothing transitions.
func (f *Flow) ConfirmAccept(id, date, startTime string, terms bool) (Session, error) {
	s, err := f.Sessions.Update(id, func(s *Session) error {
		return s.confirmAccept(date, startTime, terms)
	})
	if err != nil {
		return s, err
	}
	countTransition(StagePlayback)
	for _, step := range f.script() {
		step := step
		f.Sessions.Schedule(id, step.Offset, func(s *Session) {
			_ = s.playbackStep(step.Label, step.Percent)
		})
	}
	f.Sessions.Schedule(id, f.completeAfter(), func(s *Session) {
		if err := s.completePlayback(); err == nil {
			countTransition(StageComplete)
		}
	})
	return s, nil
}

func leadItems(items []quote.LineItem) []notify.LeadItem {
	out := make([]notify.LeadItem, 0, len(items))
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		out = append(out, notify.LeadItem{SKU: it.SKU, Qty: it.Qty})
	}
	return out
}
