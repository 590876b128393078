// Package chatsync holds the client-side synchronization state: the
// conversation list for the current user and the ordered message log for the
// conversation currently open. Both stores are plain single-owner state driven
// by the TUI update loop; remote I/O happens elsewhere and results are applied
// here through Begin/Complete pairs that enforce the overlap and staleness
// rules.
package chatsync

import (
	"strings"

	"lantern/internal/api"
)

// Conversation is one entry of the conversation list. The other participant is
// already resolved relative to the session user by the collaborator.
type Conversation struct {
	ID               string
	OtherParticipant string
	LastMessage      string
}

// ConversationStore owns the conversation list for one user session. Refreshes
// replace the snapshot wholesale; at most one refresh is in flight, and a
// refresh requested while one is outstanding is dropped, not queued.
type ConversationStore struct {
	userID     string
	convs      []Conversation
	refreshing bool
	refreshed  bool
}

func NewConversationStore(userID string) *ConversationStore {
	return &ConversationStore{userID: strings.TrimSpace(userID)}
}

func (s *ConversationStore) UserID() string { return s.userID }

// Refreshed reports whether at least one refresh has completed successfully.
func (s *ConversationStore) Refreshed() bool { return s.refreshed }

// BeginRefresh marks a refresh as in flight. It returns false when one is
// already outstanding, in which case the caller must not issue a request.
func (s *ConversationStore) BeginRefresh() bool {
	if s.refreshing {
		return false
	}
	s.refreshing = true
	return true
}

// CompleteRefresh applies a finished refresh. A failed refresh leaves the
// prior snapshot untouched.
func (s *ConversationStore) CompleteRefresh(summaries []api.ConversationSummary, err error) {
	s.refreshing = false
	if err != nil {
		return
	}
	convs := make([]Conversation, 0, len(summaries))
	for _, summary := range summaries {
		convs = append(convs, Conversation{
			ID:               summary.ID,
			OtherParticipant: summary.OtherParticipant,
			LastMessage:      summary.LastMessage,
		})
	}
	s.convs = convs
	s.refreshed = true
}

// Snapshot returns the current list in server-supplied order.
func (s *ConversationStore) Snapshot() []Conversation {
	out := make([]Conversation, len(s.convs))
	copy(out, s.convs)
	return out
}

// Lookup resolves a conversation by id from the current snapshot.
func (s *ConversationStore) Lookup(conversationID string) (Conversation, bool) {
	for _, conv := range s.convs {
		if conv.ID == conversationID {
			return conv, true
		}
	}
	return Conversation{}, false
}
