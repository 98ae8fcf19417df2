package demo_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowio-app/backend-demo/internal/demo"
	"github.com/flowio-app/backend-demo/internal/notify"
	"github.com/flowio-app/backend-demo/internal/pricebook"
	"github.com/flowio-app/backend-demo/internal/quote"
)

type captureEnqueuer struct {
	mu       sync.Mutex
	payloads []notify.LeadPayload
	err      error
}

func (c *captureEnqueuer) EnqueueLead(ctx context.Context, p notify.LeadPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.payloads = append(c.payloads, p)
	return nil
}

func (c *captureEnqueuer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func newTestFlow(queue demo.Enqueuer) *demo.Flow {
	return &demo.Flow{
		Sessions:      demo.NewStore(),
		Pricebook:     &pricebook.Service{},
		Queue:         queue,
		GenerateDelay: 10 * time.Millisecond,
		ResendDelay:   10 * time.Millisecond,
		Script: []demo.Step{
			{Offset: 5 * time.Millisecond, Label: "Generating invoice", Percent: 45},
			{Offset: 10 * time.Millisecond, Label: "Done", Percent: 100},
		},
		CompleteAfter: 15 * time.Millisecond,
	}
}

func advanceToGate(t *testing.T, f *demo.Flow, id string) {
	t.Helper()
	_, err := f.AddItem(context.Background(), id, "ELEC-005")
	require.NoError(t, err)
	_, err = f.Generate(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, err := f.Get(id)
		return err == nil && s.Stage == demo.StageGate
	}, time.Second, 2*time.Millisecond)
}

func TestAddItemComputesTotals(t *testing.T) {
	f := newTestFlow(nil)
	s := f.CreateSession("")
	require.Equal(t, demo.StageBuilding, s.Stage)

	s, err := f.AddItem(context.Background(), s.ID, "ELEC-005")
	require.NoError(t, err)
	s, err = f.AddItem(context.Background(), s.ID, "GEN-002")
	require.NoError(t, err)

	require.Len(t, s.Items, 2)
	require.Equal(t, quote.Money(34500), s.Totals.Subtotal)
	require.Equal(t, quote.Money(3450), s.Totals.Tax)
	require.Equal(t, quote.Money(37950), s.Totals.Total)
}

func TestAddItemUnknownSKU(t *testing.T) {
	f := newTestFlow(nil)
	s := f.CreateSession("")

	got, err := f.AddItem(context.Background(), s.ID, "NOPE-001")
	require.ErrorIs(t, err, demo.ErrUnknownItem)
	require.Empty(t, got.Items)
}

func TestGenerateRejectsEmptyQuote(t *testing.T) {
	f := newTestFlow(nil)
	s := f.CreateSession("")

	got, err := f.Generate(s.ID)
	require.ErrorIs(t, err, demo.ErrEmptyQuote)
	require.Equal(t, demo.StageBuilding, got.Stage)
}

func TestGenerateAdvancesToGateAfterDelay(t *testing.T) {
	f := newTestFlow(nil)
	s := f.CreateSession("")
	_, err := f.AddItem(context.Background(), s.ID, "ELEC-002")
	require.NoError(t, err)

	got, err := f.Generate(s.ID)
	require.NoError(t, err)
	require.Equal(t, demo.StageGenerating, got.Stage)

	require.Eventually(t, func() bool {
		cur, err := f.Get(s.ID)
		return err == nil && cur.Stage == demo.StageGate
	}, time.Second, 2*time.Millisecond)

	cur, err := f.Get(s.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, cur.GenerationElapsed, f.GenerateDelay)
}

func TestBackReturnsToBuilding(t *testing.T) {
	f := newTestFlow(nil)
	s := f.CreateSession("")
	advanceToGate(t, f, s.ID)

	got, err := f.Back(s.ID)
	require.NoError(t, err)
	require.Equal(t, demo.StageBuilding, got.Stage)
	require.Len(t, got.Items, 1)
}

func TestSubmitGateQueuesLeadOnce(t *testing.T) {
	queue := &captureEnqueuer{}
	f := newTestFlow(queue)
	s := f.CreateSession("")
	advanceToGate(t, f, s.ID)

	got, err := f.SubmitGate(context.Background(), s.ID, "lead-123", demo.LeadDetails{
		Name: "Sam", Trade: "Electrician", Phone: "0400000000", Email: "sam@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, demo.StageSent, got.Stage)
	require.Equal(t, 1, queue.count())

	p := queue.payloads[0]
	require.Equal(t, "demoLead", p.Action)
	require.Equal(t, "lead-123", p.LeadID)
	require.Equal(t, "Sam", p.Name)
	require.Equal(t, []notify.LeadItem{{SKU: "ELEC-005", Qty: 1}}, p.Items)
	require.InDelta(t, 275.0, p.Total, 0.001)
}

func TestSubmitGateWrongStage(t *testing.T) {
	queue := &captureEnqueuer{}
	f := newTestFlow(queue)
	s := f.CreateSession("")

	_, err := f.SubmitGate(context.Background(), s.ID, "lead-123", demo.LeadDetails{Name: "Sam"})
	require.ErrorIs(t, err, demo.ErrInvalidStage)
	require.Zero(t, queue.count())
}

func TestSubmitGateSurvivesEnqueueFailure(t *testing.T) {
	queue := &captureEnqueuer{err: errors.New("redis down")}
	f := newTestFlow(queue)
	s := f.CreateSession("")
	advanceToGate(t, f, s.ID)

	got, err := f.SubmitGate(context.Background(), s.ID, "lead-123", demo.LeadDetails{
		Name: "Sam", Trade: "Electrician", Phone: "0400000000", Email: "sam@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, demo.StageSent, got.Stage)
}

func TestResendCyclesStatus(t *testing.T) {
	f := newTestFlow(&captureEnqueuer{})
	s := f.CreateSession("")
	advanceToGate(t, f, s.ID)
	_, err := f.SubmitGate(context.Background(), s.ID, "lead-123", demo.LeadDetails{
		Name: "Sam", Trade: "Electrician", Phone: "0400000000", Email: "sam@example.com",
	})
	require.NoError(t, err)

	got, err := f.Resend(s.ID)
	require.NoError(t, err)
	require.Equal(t, demo.ResendSending, got.ResendStatus)

	require.Eventually(t, func() bool {
		cur, err := f.Get(s.ID)
		return err == nil && cur.ResendStatus == demo.ResendSent
	}, time.Second, 2*time.Millisecond)
}

func TestConfirmAcceptRequiresTerms(t *testing.T) {
	f := newTestFlow(nil)
	s := f.CreateSession("accept")
	require.Equal(t, demo.StageAccept, s.Stage)

	got, err := f.ConfirmAccept(s.ID, "2026-09-01", "09:00", false)
	require.ErrorIs(t, err, demo.ErrTermsRequired)
	require.Equal(t, demo.StageAccept, got.Stage)
}

func TestConfirmAcceptPlaysBackToCompletion(t *testing.T) {
	f := newTestFlow(nil)
	s := f.CreateSession("accept")

	got, err := f.ConfirmAccept(s.ID, "2026-09-01", "09:00", true)
	require.NoError(t, err)
	require.Equal(t, demo.StagePlayback, got.Stage)
	require.Equal(t, "Connecting to calendar", got.Playback.Label)
	require.Equal(t, 5, got.Playback.Percent)

	require.Eventually(t, func() bool {
		cur, err := f.Get(s.ID)
		return err == nil && cur.Stage == demo.StageComplete
	}, time.Second, 2*time.Millisecond)
}

func TestDeleteCancelsPendingTimers(t *testing.T) {
	f := newTestFlow(nil)
	f.GenerateDelay = 30 * time.Millisecond
	s := f.CreateSession("")
	_, err := f.AddItem(context.Background(), s.ID, "ELEC-003")
	require.NoError(t, err)
	_, err = f.Generate(s.ID)
	require.NoError(t, err)

	f.Sessions.Delete(s.ID)
	require.Zero(t, f.Sessions.Len())

	time.Sleep(60 * time.Millisecond)
	_, err = f.Get(s.ID)
	require.ErrorIs(t, err, demo.ErrNotFound)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	f := newTestFlow(nil)
	s := f.CreateSession("")
	fresh := f.CreateSession("")

	f.Sessions.Now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err := f.Sessions.Update(fresh.ID, func(*demo.Session) error { return nil })
	require.NoError(t, err)

	evicted := f.Sessions.Sweep(30 * time.Minute)
	require.Equal(t, 1, evicted)
	_, err = f.Get(s.ID)
	require.ErrorIs(t, err, demo.ErrNotFound)
	_, err = f.Get(fresh.ID)
	require.NoError(t, err)
}
