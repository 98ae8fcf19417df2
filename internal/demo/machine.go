package demo

import (
	"errors"
	"time"

	"github.com/flowio-app/backend-demo/internal/quote"
)

// Stage identifies the visible step of the demo walkthrough.
type Stage string

// Demo stages. The primary path is building → generating → gate → sent; the
// accept branch runs sent → accept → playback → complete. The only backwards
// transition is gate → building via an explicit back action.
const (
	StageBuilding   Stage = "building"
	StageGenerating Stage = "generating"
	StageGate       Stage = "gate"
	StageSent       Stage = "sent"
	StageAccept     Stage = "accept"
	StagePlayback   Stage = "playback"
	StageComplete   Stage = "complete"
)

// Resend status labels shown on the sent screen.
const (
	ResendIdle    = ""
	ResendSending = "sending"
	ResendSent    = "sent"
)

var (
	// ErrNotFound indicates the requested session could not be located.
	ErrNotFound = errors.New("demo session not found")
	// ErrInvalidStage is returned when an action is not legal in the
	// session's current stage.
	ErrInvalidStage = errors.New("action not allowed in current stage")
	// ErrEmptyQuote rejects generation of a quote with no line items.
	ErrEmptyQuote = errors.New("quote has no line items")
	// ErrUnknownItem rejects SKUs not present in the pricebook.
	ErrUnknownItem = errors.New("unknown pricebook item")
	// ErrTermsRequired rejects an accept confirmation without the terms
	// checkbox set.
	ErrTermsRequired = errors.New("terms must be accepted to proceed")
)

// LeadDetails are the required gate form fields.
type LeadDetails struct {
	Name  string
	Trade string
	Phone string
	Email string
}

// PlaybackState tracks the scripted automation animation.
type PlaybackState struct {
	Label   string `json:"label"`
	Percent int    `json:"percent"`
}

// Session is the in-memory state of one demo walkthrough. It is never
// persisted and is discarded wholesale when the visitor goes away.
type Session struct {
	ID     string
	Stage  Stage
	Items  []quote.LineItem
	Totals quote.Totals

	Lead LeadDetails

	GenerationStarted time.Time
	GenerationElapsed time.Duration

	ResendStatus string

	AcceptDate string
	AcceptTime string

	Playback PlaybackState

	CreatedAt time.Time
	UpdatedAt time.Time

	timers []*time.Timer
}

// The transition methods below are pure state changes: side effects (webhook
// submission, timer scheduling) live with the Flow orchestrator.

func (s *Session) addItem(li quote.LineItem, taxBps int) error {
	if s.Stage != StageBuilding {
		return ErrInvalidStage
	}
	s.Items = quote.Add(s.Items, li)
	s.Totals = quote.Compute(s.Items, taxBps)
	return nil
}

func (s *Session) removeItem(sku string, taxBps int) error {
	if s.Stage != StageBuilding {
		return ErrInvalidStage
	}
	s.Items = quote.Remove(s.Items, sku)
	s.Totals = quote.Compute(s.Items, taxBps)
	return nil
}

func (s *Session) startGenerating(now time.Time) error {
	if s.Stage != StageBuilding {
		return ErrInvalidStage
	}
	if len(s.Items) == 0 {
		return ErrEmptyQuote
	}
	s.Stage = StageGenerating
	s.GenerationStarted = now
	s.GenerationElapsed = 0
	return nil
}

func (s *Session) finishGenerating(now time.Time) error {
	if s.Stage != StageGenerating {
		return ErrInvalidStage
	}
	s.Stage = StageGate
	s.GenerationElapsed = now.Sub(s.GenerationStarted)
	return nil
}

func (s *Session) backToBuilding() error {
	if s.Stage != StageGate {
		return ErrInvalidStage
	}
	s.Stage = StageBuilding
	return nil
}

func (s *Session) submitGate(lead LeadDetails) error {
	if s.Stage != StageGate {
		return ErrInvalidStage
	}
	s.Lead = lead
	s.Stage = StageSent
	s.ResendStatus = ResendIdle
	return nil
}

func (s *Session) startResend() error {
	if s.Stage != StageSent {
		return ErrInvalidStage
	}
	s.ResendStatus = ResendSending
	return nil
}

func (s *Session) finishResend() error {
	if s.Stage != StageSent || s.ResendStatus != ResendSending {
		return ErrInvalidStage
	}
	s.ResendStatus = ResendSent
	return nil
}

func (s *Session) openAccept() error {
	if s.Stage != StageSent {
		return ErrInvalidStage
	}
	s.Stage = StageAccept
	return nil
}

func (s *Session) confirmAccept(date, startTime string, terms bool) error {
	if s.Stage != StageAccept {
		return ErrInvalidStage
	}
	if !terms {
		return ErrTermsRequired
	}
	s.AcceptDate = date
	s.AcceptTime = startTime
	s.Stage = StagePlayback
	s.Playback = PlaybackState{Label: "Connecting to calendar", Percent: 5}
	return nil
}

func (s *Session) playbackStep(label string, percent int) error {
	if s.Stage != StagePlayback {
		return ErrInvalidStage
	}
	s.Playback = PlaybackState{Label: label, Percent: percent}
	return nil
}

func (s *Session) completePlayback() error {
	if s.Stage != StagePlayback {
		return ErrInvalidStage
	}
	s.Stage = StageComplete
	return nil
}
