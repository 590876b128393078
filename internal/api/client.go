// Package api is the JSON/HTTP client for the remote chat collaborator.
// Every response is validated here at the boundary; malformed payloads are
// rejected with an error instead of leaking undefined fields into the stores.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Session is the identity returned by the login endpoint.
type Session struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
}

// ConversationSummary is one row of the conversation list as the server
// reports it. Order is server-supplied and preserved by callers.
type ConversationSummary struct {
	ID               string `json:"id"`
	OtherParticipant string `json:"otherParticipant"`
	LastMessage      string `json:"lastMessage"`
}

// WireMessage is a message as it appears on the wire. Timestamp is optional:
// the canonical collaborator omits it, and the synchronizer assigns a stable
// first-observed time per server id instead.
type WireMessage struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Report is a full analysis result for one conversation.
type Report struct {
	ConversationID   string
	Temperaments     map[string]map[string]float64
	EmotionalAspects map[string]float64
	IsTraffickerFlag bool
	Summary          string
	GeneratedAt      time.Time
}

// AggregateSubject is the subject key used when the collaborator returns a
// flat temperament object instead of per-participant records.
const AggregateSubject = "conversation"

// LeaderboardEntry is one row of the toxicity leaderboard.
type LeaderboardEntry struct {
	ConversationID string   `json:"conversationId"`
	Participants   []string `json:"participants"`
	Toxicity       float64  `json:"toxicity"`
	Summary        string   `json:"leaderboardSummary"`
}

// Client talks to the chat collaborator over JSON/HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) Login(ctx context.Context, phoneNumber string) (Session, error) {
	phone := strings.TrimSpace(phoneNumber)
	if phone == "" {
		return Session{}, errors.New("phone number required")
	}
	var session Session
	err := c.postJSON(ctx, "/api/login", map[string]string{"phoneNumber": phone}, &session)
	if err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(session.UserID) == "" {
		return Session{}, errors.New("login response missing userId")
	}
	return session, nil
}

func (c *Client) Conversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("user id required")
	}
	var summaries []ConversationSummary
	if err := c.getJSON(ctx, "/api/conversations?userId="+url.QueryEscape(uid), &summaries); err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(summaries))
	for _, summary := range summaries {
		if strings.TrimSpace(summary.ID) == "" {
			return nil, errors.New("conversation entry missing id")
		}
		out = append(out, summary)
	}
	return out, nil
}

func (c *Client) CreateConversation(ctx context.Context, userID, recipient string) (string, error) {
	uid := strings.TrimSpace(userID)
	rec := strings.TrimSpace(recipient)
	if uid == "" || rec == "" {
		return "", errors.New("user id and recipient required")
	}
	var created struct {
		ConversationID string `json:"conversationId"`
	}
	err := c.postJSON(ctx, "/api/conversations", map[string]string{"userId": uid, "recipient": rec}, &created)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(created.ConversationID) == "" {
		return "", errors.New("create response missing conversationId")
	}
	return created.ConversationID, nil
}

func (c *Client) Messages(ctx context.Context, conversationID string) ([]WireMessage, error) {
	cid := strings.TrimSpace(conversationID)
	if cid == "" {
		return nil, errors.New("conversation id required")
	}
	var wire []WireMessage
	if err := c.getJSON(ctx, "/api/messages/"+url.PathEscape(cid), &wire); err != nil {
		return nil, err
	}
	out := make([]WireMessage, 0, len(wire))
	for _, msg := range wire {
		if strings.TrimSpace(msg.ID) == "" {
			return nil, errors.New("message entry missing id")
		}
		out = append(out, msg)
	}
	return out, nil
}

// SendMessage submits a message. The response body is not consumed further;
// reconciliation on the next poll is the only confirmation path.
func (c *Client) SendMessage(ctx context.Context, conversationID, senderID, content string) error {
	cid := strings.TrimSpace(conversationID)
	sid := strings.TrimSpace(senderID)
	if cid == "" || sid == "" {
		return errors.New("conversation id and sender id required")
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("content required")
	}
	payload := map[string]string{
		"conversationId": cid,
		"senderId":       sid,
		"content":        content,
	}
	return c.postJSON(ctx, "/api/messages", payload, nil)
}

func (c *Client) Analyze(ctx context.Context, conversationID, userID string) (Report, error) {
	cid := strings.TrimSpace(conversationID)
	if cid == "" {
		return Report{}, errors.New("conversation id required")
	}
	payload := map[string]string{"conversationId": cid, "userId": strings.TrimSpace(userID)}
	var wire struct {
		Temperaments     map[string]json.RawMessage `json:"temperaments"`
		EmotionalAspects map[string]float64         `json:"emotional_aspects"`
		IsTrafficker     bool                       `json:"is_trafficker"`
		Summary          string                     `json:"summary"`
	}
	if err := c.postJSON(ctx, "/api/analyze-conversation", payload, &wire); err != nil {
		return Report{}, err
	}
	temperaments, err := decodeTemperaments(wire.Temperaments)
	if err != nil {
		return Report{}, err
	}
	aspects := make(map[string]float64, len(wire.EmotionalAspects))
	for aspect, score := range wire.EmotionalAspects {
		aspects[aspect] = score
	}
	return Report{
		ConversationID:   cid,
		Temperaments:     temperaments,
		EmotionalAspects: aspects,
		IsTraffickerFlag: wire.IsTrafficker,
		Summary:          wire.Summary,
		GeneratedAt:      time.Now(),
	}, nil
}

func (c *Client) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var board []LeaderboardEntry
	if err := c.getJSON(ctx, "/api/leaderboard", &board); err != nil {
		return nil, err
	}
	return board, nil
}

// decodeTemperaments accepts both temperament shapes the collaborator emits:
// nested per-participant records {participant: {trait: score}} and the flat
// aggregate object {trait: score}, which is filed under AggregateSubject.
func decodeTemperaments(raw map[string]json.RawMessage) (map[string]map[string]float64, error) {
	out := map[string]map[string]float64{}
	for key, value := range raw {
		var nested map[string]float64
		if err := json.Unmarshal(value, &nested); err == nil {
			out[key] = nested
			continue
		}
		var score float64
		if err := json.Unmarshal(value, &score); err != nil {
			return nil, fmt.Errorf("temperament %q is neither a score nor a record", key)
		}
		subject := out[AggregateSubject]
		if subject == nil {
			subject = map[string]float64{}
			out[AggregateSubject] = subject
		}
		subject[key] = score
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(remoteError(body, resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: invalid response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// remoteError extracts the collaborator's {error} payload when present and
// falls back to a generic status-based message.
func remoteError(body []byte, status int) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return strings.TrimSpace(payload.Error)
	}
	return fmt.Sprintf("remote returned status %d", status)
}
