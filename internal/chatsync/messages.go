package chatsync

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"lantern/internal/api"
)

// DeliveryState tags a message as locally pending or server-confirmed.
type DeliveryState int

const (
	DeliveryPending DeliveryState = iota
	DeliveryConfirmed
)

// Message is one entry of the merged log. Pending messages carry a locally
// generated temporary id that is never sent to the server; confirmed messages
// carry the server id.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Timestamp      time.Time
	State          DeliveryState
}

// MessageSynchronizer owns the ordered message log for the conversation it is
// bound to. Polled server state is authoritative; optimistically sent messages
// live alongside it as pending entries until reconciliation replaces them.
type MessageSynchronizer struct {
	userID         string
	seed           string
	tempSeq        int
	conversationID string
	log            []Message
	seenAt         map[string]time.Time
	pollInFlight   bool

	now func() time.Time
}

func NewMessageSynchronizer(userID, sessionSeed string) *MessageSynchronizer {
	seed := strings.TrimSpace(sessionSeed)
	if seed == "" {
		seed = fmt.Sprintf("%d", time.Now().Unix())
	}
	return &MessageSynchronizer{
		userID: strings.TrimSpace(userID),
		seed:   seed,
		seenAt: map[string]time.Time{},
		now:    time.Now,
	}
}

// Bind switches the active conversation. The previous log is discarded and
// any in-flight poll for the old conversation becomes stale: its completion
// no longer matches the bound id and is dropped on arrival.
func (s *MessageSynchronizer) Bind(conversationID string) {
	cid := strings.TrimSpace(conversationID)
	if cid == s.conversationID {
		return
	}
	s.conversationID = cid
	s.log = nil
	s.seenAt = map[string]time.Time{}
	s.pollInFlight = false
}

func (s *MessageSynchronizer) ConversationID() string { return s.conversationID }

// BeginPoll reserves the single poll slot and returns the conversation id the
// request must be tagged with. ok is false when no conversation is bound or a
// poll is already outstanding.
func (s *MessageSynchronizer) BeginPoll() (conversationID string, ok bool) {
	if s.conversationID == "" || s.pollInFlight {
		return "", false
	}
	s.pollInFlight = true
	return s.conversationID, true
}

// CompletePoll applies a finished poll. Results tagged for a conversation that
// is no longer bound are discarded. A failed poll leaves the existing log
// intact.
func (s *MessageSynchronizer) CompletePoll(conversationID string, wire []api.WireMessage, err error) {
	if conversationID != s.conversationID {
		return
	}
	s.pollInFlight = false
	if err != nil {
		return
	}
	s.reconcile(wire)
}

// StagePending validates and appends an optimistic pending message, giving the
// sender instant feedback before the remote write confirms. Temp ids are
// monotonically increasing per session so they order deterministically.
func (s *MessageSynchronizer) StagePending(content string) (Message, error) {
	if s.conversationID == "" {
		return Message{}, errors.New("no conversation bound")
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, errors.New("message content is empty")
	}
	s.tempSeq++
	msg := Message{
		ID:             fmt.Sprintf("local-%s-%06d", s.seed, s.tempSeq),
		ConversationID: s.conversationID,
		SenderID:       s.userID,
		Content:        content,
		Timestamp:      s.now(),
		State:          DeliveryPending,
	}
	s.log = append(s.log, msg)
	sortLog(s.log)
	return msg, nil
}

// Log returns the merged log ordered by (timestamp, id).
func (s *MessageSynchronizer) Log() []Message {
	out := make([]Message, len(s.log))
	copy(out, s.log)
	return out
}

// reconcile merges the authoritative server set with local pending entries.
// Server messages are deduplicated by id and keep a sticky first-observed
// timestamp (the wire may omit or mangle timestamps). A pending entry is
// consumed by the first server message from the same sender with equal content
// and a timestamp at or after the staging time; each server message consumes
// at most one pending entry.
func (s *MessageSynchronizer) reconcile(wire []api.WireMessage) {
	pending := make([]Message, 0, 4)
	for _, msg := range s.log {
		if msg.State == DeliveryPending {
			pending = append(pending, msg)
		}
	}

	merged := make([]Message, 0, len(wire)+len(pending))
	seenIDs := make(map[string]bool, len(wire))
	for _, entry := range wire {
		if seenIDs[entry.ID] {
			continue
		}
		seenIDs[entry.ID] = true

		observed, known := s.seenAt[entry.ID]
		if !known {
			if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Timestamp)); err == nil {
				observed = parsed
			} else {
				observed = s.now()
			}
			s.seenAt[entry.ID] = observed
		}
		confirmed := Message{
			ID:             entry.ID,
			ConversationID: s.conversationID,
			SenderID:       entry.SenderID,
			Content:        entry.Content,
			Timestamp:      observed,
			State:          DeliveryConfirmed,
		}
		merged = append(merged, confirmed)
		pending = consumePending(pending, confirmed)
	}

	for id := range s.seenAt {
		if !seenIDs[id] {
			delete(s.seenAt, id)
		}
	}

	merged = append(merged, pending...)
	sortLog(merged)
	s.log = merged
}

// consumePending removes the earliest pending entry matched by a confirmed
// server message: same sender, equal content, server timestamp not before the
// staging time. At most one entry is removed.
func consumePending(pending []Message, confirmed Message) []Message {
	for i, msg := range pending {
		if msg.SenderID != confirmed.SenderID || msg.Content != confirmed.Content {
			continue
		}
		if confirmed.Timestamp.Before(msg.Timestamp) {
			continue
		}
		return append(pending[:i], pending[i+1:]...)
	}
	return pending
}

func sortLog(log []Message) {
	sort.SliceStable(log, func(i, j int) bool {
		if !log[i].Timestamp.Equal(log[j].Timestamp) {
			return log[i].Timestamp.Before(log[j].Timestamp)
		}
		return log[i].ID < log[j].ID
	})
}
