package demo

import "time"

// Step is one scripted status update in the automation playback.
type Step struct {
	Offset  time.Duration
	Label   string
	Percent int
}

// DefaultScript mirrors the staged automation the landing page plays back
// after a quote is accepted.
func DefaultScript() []Step {
	return []Step{
		{Offset: 800 * time.Millisecond, Label: "Generating invoice", Percent: 45},
		{Offset: 1800 * time.Millisecond, Label: "Syncing payment", Percent: 70},
		{Offset: 2800 * time.Millisecond, Label: "Sending SMS", Percent: 90},
		{Offset: 3500 * time.Millisecond, Label: "Done", Percent: 100},
	}
}

// DefaultCompleteAfter is when the playback reveals the completion summary.
const DefaultCompleteAfter = 3800 * time.Millisecond

// CompletedAction is one canned entry on the automation-complete summary.
type CompletedAction struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// CompletedActions lists what the simulated automation "did". Presentation
// only; the lead webhook in the gate step is the sole real side effect.
func CompletedActions() []CompletedAction {
	return []CompletedAction{
		{Title: "Calendar event created", Detail: "Job automatically added to your calendar."},
		{Title: "Confirmation SMS", Detail: "Customer receives instant confirmation with invite link."},
		{Title: "Deposit processed", Detail: "Deposit payment captured, funds in your account."},
		{Title: "Reminder scheduled", Detail: "Automatic SMS reminder sent 24 hours before the job starts."},
	}
}

// TimeSaved is the fixed before/after comparison on the completion screen.
type TimeSaved struct {
	Automated string `json:"automated"`
	Manual    string `json:"manual"`
}

// DefaultTimeSaved returns the canned comparison figure.
func DefaultTimeSaved() TimeSaved {
	return TimeSaved{Automated: "8 sec", Manual: "3h 15m"}
}
