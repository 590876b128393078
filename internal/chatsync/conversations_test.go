package chatsync

import (
	"testing"

	"lantern/internal/api"
)

func TestRefreshReplacesSnapshotInServerOrder(t *testing.T) {
	s := NewConversationStore("u0")
	if !s.BeginRefresh() {
		t.Fatalf("BeginRefresh refused")
	}
	s.CompleteRefresh([]api.ConversationSummary{
		{ID: "C2", OtherParticipant: "+1555", LastMessage: "later"},
		{ID: "C1", OtherParticipant: "+1444", LastMessage: "earlier"},
	}, nil)

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != "C2" || snap[1].ID != "C1" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !s.Refreshed() {
		t.Fatalf("Refreshed false after a successful refresh")
	}
}

func TestRefreshOverlapDropped(t *testing.T) {
	s := NewConversationStore("u0")
	if !s.BeginRefresh() {
		t.Fatalf("first BeginRefresh refused")
	}
	if s.BeginRefresh() {
		t.Fatalf("second BeginRefresh succeeded while one is outstanding")
	}
	s.CompleteRefresh(nil, nil)
	if !s.BeginRefresh() {
		t.Fatalf("BeginRefresh refused after completion")
	}
}

func TestFailedRefreshKeepsPriorSnapshot(t *testing.T) {
	s := NewConversationStore("u0")
	s.BeginRefresh()
	s.CompleteRefresh([]api.ConversationSummary{{ID: "C1"}}, nil)

	s.BeginRefresh()
	s.CompleteRefresh(nil, errOf("network down"))

	if snap := s.Snapshot(); len(snap) != 1 || snap[0].ID != "C1" {
		t.Fatalf("failed refresh disturbed the snapshot: %+v", snap)
	}
}

func TestLookup(t *testing.T) {
	s := NewConversationStore("u0")
	s.BeginRefresh()
	s.CompleteRefresh([]api.ConversationSummary{{ID: "C1", OtherParticipant: "+1222"}}, nil)

	conv, ok := s.Lookup("C1")
	if !ok || conv.OtherParticipant != "+1222" {
		t.Fatalf("Lookup(C1) = %+v, %v", conv, ok)
	}
	if _, ok := s.Lookup("nope"); ok {
		t.Fatalf("Lookup found a conversation that does not exist")
	}
}
