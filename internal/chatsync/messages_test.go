package chatsync

import (
	"testing"
	"time"

	"lantern/internal/api"
)

func newTestSync(t *testing.T) (*MessageSynchronizer, *time.Time) {
	t.Helper()
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s := NewMessageSynchronizer("u0", "seed")
	s.now = func() time.Time { return clock }
	return s, &clock
}

func completeOK(t *testing.T, s *MessageSynchronizer, wire []api.WireMessage) {
	t.Helper()
	cid, ok := s.BeginPoll()
	if !ok {
		t.Fatalf("BeginPoll refused while no poll is outstanding")
	}
	s.CompletePoll(cid, wire, nil)
}

func TestStagePendingThenConfirmCollapses(t *testing.T) {
	s, clock := newTestSync(t)
	s.Bind("C1")
	completeOK(t, s, nil)

	if _, err := s.StagePending("hi"); err != nil {
		t.Fatalf("StagePending: %v", err)
	}
	log := s.Log()
	if len(log) != 1 || log[0].State != DeliveryPending || log[0].Content != "hi" {
		t.Fatalf("after staging, log = %+v", log)
	}

	*clock = clock.Add(time.Second)
	completeOK(t, s, []api.WireMessage{{ID: "m1", SenderID: "u0", Content: "hi"}})

	log = s.Log()
	if len(log) != 1 {
		t.Fatalf("expected the pending entry to collapse into the confirmed one, log = %+v", log)
	}
	if log[0].ID != "m1" || log[0].State != DeliveryConfirmed {
		t.Fatalf("confirmed entry = %+v", log[0])
	}
}

func TestRepeatedContentConsumesExactlyOnePending(t *testing.T) {
	s, clock := newTestSync(t)
	s.Bind("C1")

	if _, err := s.StagePending("ok"); err != nil {
		t.Fatalf("StagePending: %v", err)
	}
	if _, err := s.StagePending("ok"); err != nil {
		t.Fatalf("StagePending: %v", err)
	}

	*clock = clock.Add(time.Second)
	completeOK(t, s, []api.WireMessage{{ID: "m1", SenderID: "u0", Content: "ok"}})

	pending := 0
	for _, msg := range s.Log() {
		if msg.State == DeliveryPending {
			pending++
		}
	}
	if pending != 1 {
		t.Fatalf("expected exactly one pending entry left, got %d (log %+v)", pending, s.Log())
	}
}

func TestPendingNotConsumedByOtherSender(t *testing.T) {
	s, clock := newTestSync(t)
	s.Bind("C1")

	if _, err := s.StagePending("hello"); err != nil {
		t.Fatalf("StagePending: %v", err)
	}
	*clock = clock.Add(time.Second)
	completeOK(t, s, []api.WireMessage{{ID: "m1", SenderID: "u9", Content: "hello"}})

	log := s.Log()
	if len(log) != 2 {
		t.Fatalf("expected confirmed + pending to coexist, log = %+v", log)
	}
}

func TestDuplicateServerIDsDeduplicated(t *testing.T) {
	s, _ := newTestSync(t)
	s.Bind("C1")
	completeOK(t, s, []api.WireMessage{
		{ID: "m1", SenderID: "u1", Content: "a"},
		{ID: "m1", SenderID: "u1", Content: "a"},
		{ID: "m2", SenderID: "u1", Content: "b"},
	})
	if got := len(s.Log()); got != 2 {
		t.Fatalf("expected 2 messages after dedup, got %d", got)
	}
}

func TestFirstObservedTimestampIsSticky(t *testing.T) {
	s, clock := newTestSync(t)
	s.Bind("C1")
	completeOK(t, s, []api.WireMessage{{ID: "m1", SenderID: "u1", Content: "a"}})
	first := s.Log()[0].Timestamp

	*clock = clock.Add(time.Minute)
	completeOK(t, s, []api.WireMessage{{ID: "m1", SenderID: "u1", Content: "a"}})
	if !s.Log()[0].Timestamp.Equal(first) {
		t.Fatalf("timestamp drifted on re-observation: %v -> %v", first, s.Log()[0].Timestamp)
	}
}

func TestWireTimestampHonoredWhenParseable(t *testing.T) {
	s, _ := newTestSync(t)
	s.Bind("C1")
	stamp := "2026-03-14T08:30:00Z"
	completeOK(t, s, []api.WireMessage{{ID: "m1", SenderID: "u1", Content: "a", Timestamp: stamp}})
	want, _ := time.Parse(time.RFC3339, stamp)
	if !s.Log()[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", s.Log()[0].Timestamp, want)
	}
}

func TestLogOrderedByTimestampThenID(t *testing.T) {
	s, _ := newTestSync(t)
	s.Bind("C1")
	completeOK(t, s, []api.WireMessage{
		{ID: "m2", SenderID: "u1", Content: "b", Timestamp: "2026-03-14T08:00:05Z"},
		{ID: "m3", SenderID: "u1", Content: "c", Timestamp: "2026-03-14T08:00:05Z"},
		{ID: "m1", SenderID: "u1", Content: "a", Timestamp: "2026-03-14T08:00:01Z"},
	})
	log := s.Log()
	if log[0].ID != "m1" || log[1].ID != "m2" || log[2].ID != "m3" {
		t.Fatalf("order = %s %s %s", log[0].ID, log[1].ID, log[2].ID)
	}
}

func TestBindDiscardsLogAndStalePoll(t *testing.T) {
	s, _ := newTestSync(t)
	s.Bind("C1")
	cid, ok := s.BeginPoll()
	if !ok {
		t.Fatalf("BeginPoll refused")
	}

	s.Bind("C2")
	if got := len(s.Log()); got != 0 {
		t.Fatalf("log survived rebinding, len = %d", got)
	}

	// The C1 result arrives late and must not leak into C2.
	s.CompletePoll(cid, []api.WireMessage{{ID: "m1", SenderID: "u1", Content: "stale"}}, nil)
	if got := len(s.Log()); got != 0 {
		t.Fatalf("stale poll applied after rebinding, log = %+v", s.Log())
	}

	if _, ok := s.BeginPoll(); !ok {
		t.Fatalf("rebinding should clear the in-flight slot")
	}
}

func TestBeginPollRefusesOverlapAndUnbound(t *testing.T) {
	s, _ := newTestSync(t)
	if _, ok := s.BeginPoll(); ok {
		t.Fatalf("BeginPoll succeeded with no conversation bound")
	}
	s.Bind("C1")
	if _, ok := s.BeginPoll(); !ok {
		t.Fatalf("first BeginPoll refused")
	}
	if _, ok := s.BeginPoll(); ok {
		t.Fatalf("second BeginPoll succeeded while one is outstanding")
	}
}

func TestFailedPollKeepsLog(t *testing.T) {
	s, _ := newTestSync(t)
	s.Bind("C1")
	completeOK(t, s, []api.WireMessage{{ID: "m1", SenderID: "u1", Content: "a"}})

	cid, _ := s.BeginPoll()
	s.CompletePoll(cid, nil, errTest)
	if got := len(s.Log()); got != 1 {
		t.Fatalf("failed poll dropped the log, len = %d", got)
	}
	if _, ok := s.BeginPoll(); !ok {
		t.Fatalf("poll slot not released after failure")
	}
}

func TestStagePendingRejectsBlankContent(t *testing.T) {
	s, _ := newTestSync(t)
	s.Bind("C1")
	if _, err := s.StagePending("   \n"); err == nil {
		t.Fatalf("whitespace-only content accepted")
	}
	if _, err := s.StagePending(""); err == nil {
		t.Fatalf("empty content accepted")
	}
}

func TestStagePendingRequiresBinding(t *testing.T) {
	s, _ := newTestSync(t)
	if _, err := s.StagePending("hi"); err == nil {
		t.Fatalf("staging accepted with no conversation bound")
	}
}

var errTest = errOf("boom")

type errOf string

func (e errOf) Error() string { return string(e) }
