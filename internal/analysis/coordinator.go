// Package analysis drives acquisition and presentation of conversation
// analysis reports: a request/retry state machine per bound conversation and
// the disclosure/normalization model the score view renders from.
package analysis

import (
	"strings"

	"lantern/internal/api"
)

// State is the coordinator's position in the request lifecycle.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

const genericFailure = "analysis failed, try again"

// Coordinator owns at most one analysis report for the conversation it is
// bound to. A report, once obtained, is immutable; a new request replaces it
// wholly. Retry is always an explicit caller action, never automatic.
type Coordinator struct {
	conversationID string
	state          State
	report         api.Report
	errText        string
	scorecard      Scorecard
}

func NewCoordinator() *Coordinator {
	return &Coordinator{scorecard: NewScorecard()}
}

// Bind points the coordinator at a conversation, resetting the lifecycle to
// Idle and clearing the previous report, error, and disclosure state.
// Rebinding to the already-bound conversation keeps the current result.
func (c *Coordinator) Bind(conversationID string) {
	cid := strings.TrimSpace(conversationID)
	if cid == c.conversationID {
		return
	}
	c.conversationID = cid
	c.state = StateIdle
	c.report = api.Report{}
	c.errText = ""
	c.scorecard.Reset()
}

func (c *Coordinator) ConversationID() string { return c.conversationID }
func (c *Coordinator) State() State           { return c.state }

// Begin transitions to Requesting. Valid only from Idle or Failed; calling it
// while a request is in flight (or after success) is a no-op and returns
// false, which prevents duplicate concurrent requests for the conversation.
func (c *Coordinator) Begin() bool {
	if c.conversationID == "" {
		return false
	}
	if c.state != StateIdle && c.state != StateFailed {
		return false
	}
	c.state = StateRequesting
	return true
}

// Complete applies a finished request. Results tagged for a conversation the
// coordinator is no longer bound to are discarded. Success replaces any prior
// report and clears residual error text; failure retains the remote error
// message, falling back to a generic one.
func (c *Coordinator) Complete(conversationID string, report api.Report, err error) {
	if conversationID != c.conversationID || c.state != StateRequesting {
		return
	}
	if err != nil {
		c.state = StateFailed
		c.errText = strings.TrimSpace(err.Error())
		if c.errText == "" {
			c.errText = genericFailure
		}
		return
	}
	c.state = StateSuccess
	c.report = report
	c.errText = ""
}

// Report returns the current result; valid only in StateSuccess.
func (c *Coordinator) Report() (api.Report, bool) {
	return c.report, c.state == StateSuccess
}

// Err returns the retained failure message; empty outside StateFailed.
func (c *Coordinator) Err() string {
	if c.state != StateFailed {
		return ""
	}
	return c.errText
}

// Scorecard exposes the disclosure state scoped to the current binding.
func (c *Coordinator) Scorecard() *Scorecard { return &c.scorecard }
