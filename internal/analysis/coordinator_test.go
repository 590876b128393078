package analysis

import (
	"errors"
	"testing"

	"lantern/internal/api"
)

func TestBeginOnlyFromIdleOrFailed(t *testing.T) {
	c := NewCoordinator()
	if c.Begin() {
		t.Fatalf("Begin succeeded with no conversation bound")
	}

	c.Bind("C1")
	if !c.Begin() {
		t.Fatalf("Begin refused from Idle")
	}
	if c.Begin() {
		t.Fatalf("Begin succeeded while Requesting")
	}

	c.Complete("C1", api.Report{}, errors.New("model timeout"))
	if c.State() != StateFailed {
		t.Fatalf("state = %v after failure", c.State())
	}
	if !c.Begin() {
		t.Fatalf("Begin refused from Failed")
	}

	c.Complete("C1", api.Report{Summary: "fine"}, nil)
	if c.Begin() {
		t.Fatalf("Begin succeeded from Success")
	}
}

func TestFailureRetainsErrorAndRetryClears(t *testing.T) {
	c := NewCoordinator()
	c.Bind("C1")
	c.Begin()
	c.Complete("C1", api.Report{}, errors.New("model timeout"))

	if c.Err() != "model timeout" {
		t.Fatalf("Err = %q", c.Err())
	}
	if _, ok := c.Report(); ok {
		t.Fatalf("Report valid in Failed state")
	}

	c.Begin()
	c.Complete("C1", api.Report{Summary: "all good"}, nil)
	if c.Err() != "" {
		t.Fatalf("residual error after success: %q", c.Err())
	}
	report, ok := c.Report()
	if !ok || report.Summary != "all good" {
		t.Fatalf("Report = %+v, %v", report, ok)
	}
}

func TestBlankFailureGetsGenericMessage(t *testing.T) {
	c := NewCoordinator()
	c.Bind("C1")
	c.Begin()
	c.Complete("C1", api.Report{}, errors.New("  "))
	if c.Err() == "" {
		t.Fatalf("Failed state with empty error text")
	}
}

func TestStaleCompletionDiscardedAfterRebind(t *testing.T) {
	c := NewCoordinator()
	c.Bind("C1")
	c.Begin()

	c.Bind("C2")
	c.Complete("C1", api.Report{Summary: "stale"}, nil)

	if c.State() != StateIdle {
		t.Fatalf("state = %v after stale completion", c.State())
	}
	if _, ok := c.Report(); ok {
		t.Fatalf("stale report accepted")
	}
}

func TestRebindResetsDisclosure(t *testing.T) {
	c := NewCoordinator()
	c.Bind("C1")
	c.Scorecard().Toggle(api.AggregateSubject, "toxicity")
	if !c.Scorecard().Disclosed(api.AggregateSubject, "toxicity") {
		t.Fatalf("toggle did not disclose")
	}

	c.Bind("C2")
	if c.Scorecard().Disclosed(api.AggregateSubject, "toxicity") {
		t.Fatalf("disclosure survived rebinding")
	}
}

func TestRebindSameConversationKeepsResult(t *testing.T) {
	c := NewCoordinator()
	c.Bind("C1")
	c.Begin()
	c.Complete("C1", api.Report{Summary: "kept"}, nil)

	c.Bind("C1")
	report, ok := c.Report()
	if !ok || report.Summary != "kept" {
		t.Fatalf("result lost on same-conversation rebind: %+v, %v", report, ok)
	}
}
