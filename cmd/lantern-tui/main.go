package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"lantern/internal/analysis"
	"lantern/internal/api"
	"lantern/internal/chatsync"
	"lantern/internal/config"
)

const (
	appTitle         = "Lantern"
	logRingSize      = 40
	composeCharLimit = 2000
	scoreBarWidth    = 24
	statusTrimChars  = 160
)

type screenID int

const (
	screenLogin screenID = iota
	screenConversations
	screenMessages
	screenAnalysis
	screenLeaderboard
)

type appConfig struct {
	serverURL    string
	pollInterval time.Duration
	httpTimeout  time.Duration
	phoneNumber  string
	altScreen    bool
	sessionSeed  string
}

type loginDoneMsg struct {
	session api.Session
	err     error
}

type conversationsMsg struct {
	userID    string
	summaries []api.ConversationSummary
	err       error
}

type messagesMsg struct {
	conversationID string
	wire           []api.WireMessage
	err            error
}

type sendDoneMsg struct {
	conversationID string
	err            error
}

type chatCreatedMsg struct {
	conversationID string
	initialSent    bool
	err            error
}

type analysisMsg struct {
	conversationID string
	report         api.Report
	err            error
}

type leaderboardMsg struct {
	entries []api.LeaderboardEntry
	err     error
}

type tickMsg time.Time

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style
	listPick    lipgloss.Style
	listItem    lipgloss.Style
	sentBubble  lipgloss.Style
	recvBubble  lipgloss.Style
	pendingMark lipgloss.Style
	barFill     lipgloss.Style
	barEmpty    lipgloss.Style
	warnBanner  lipgloss.Style
	summary     lipgloss.Style
	modalFrame  lipgloss.Style
}

func newTheme() uiTheme {
	amber := lipgloss.Color("#f5a623")
	teal := lipgloss.Color("#2bd9c7")
	red := lipgloss.Color("#ff5370")
	bg := lipgloss.Color("#10141c")
	panelBg := lipgloss.Color("#181f2b")
	text := lipgloss.Color("#e8ecf4")
	muted := lipgloss.Color("#76819b")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(amber).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(amber).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(teal).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(red).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(amber).
			Padding(0, 1),
		helpText: lipgloss.NewStyle().Foreground(muted),
		listPick: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10141c")).
			Background(amber).
			Bold(true).
			Padding(0, 1),
		listItem:    lipgloss.NewStyle().Foreground(text).Padding(0, 1),
		sentBubble:  lipgloss.NewStyle().Foreground(teal).Bold(true),
		recvBubble:  lipgloss.NewStyle().Foreground(text),
		pendingMark: lipgloss.NewStyle().Foreground(muted).Italic(true),
		barFill:     lipgloss.NewStyle().Foreground(amber),
		barEmpty:    lipgloss.NewStyle().Foreground(muted),
		warnBanner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10141c")).
			Background(red).
			Bold(true).
			Padding(0, 1),
		summary: lipgloss.NewStyle().Foreground(text).Italic(true),
		modalFrame: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(amber).
			Padding(1, 2),
	}
}

type model struct {
	cfg    appConfig
	client *api.Client

	session     api.Session
	convs       *chatsync.ConversationStore
	sync        *chatsync.MessageSynchronizer
	coordinator *analysis.Coordinator

	screen     screenID
	statusLine string
	logs       []string

	convIndex  int
	traitIndex int

	newChatOpen  bool
	newChatField int

	leaderboard        []api.LeaderboardEntry
	leaderboardIndex   int
	leaderboardLoading bool

	loginInFlight  bool
	sendInFlight   bool
	createInFlight bool

	quitConfirm bool

	width  int
	height int

	loginInput     textinput.Model
	composeInput   textinput.Model
	recipientInput textinput.Model
	firstMsgInput  textinput.Model
	timeline       viewport.Model
	spinner        spinner.Model

	theme uiTheme
}

func newModel(cfg appConfig) model {
	login := textinput.New()
	login.Prompt = "phone ❯ "
	login.Placeholder = "Phone number"
	login.CharLimit = 32
	login.SetValue(cfg.phoneNumber)
	login.Focus()

	compose := textinput.New()
	compose.Prompt = "❯ "
	compose.Placeholder = "Message"
	compose.CharLimit = composeCharLimit

	recipient := textinput.New()
	recipient.Prompt = "to ❯ "
	recipient.Placeholder = "Recipient phone number"
	recipient.CharLimit = 32

	firstMsg := textinput.New()
	firstMsg.Prompt = "msg ❯ "
	firstMsg.Placeholder = "First message (optional)"
	firstMsg.CharLimit = composeCharLimit

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#f5a623"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 3

	return model{
		cfg:            cfg,
		client:         api.NewClient(cfg.serverURL, cfg.httpTimeout),
		coordinator:    analysis.NewCoordinator(),
		screen:         screenLogin,
		statusLine:     "enter your phone number to sign in",
		logs:           []string{},
		loginInput:     login,
		composeInput:   compose,
		recipientInput: recipient,
		firstMsgInput:  firstMsg,
		timeline:       timeline,
		spinner:        sp,
		theme:          newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickEvery(m.cfg.pollInterval))
}

func tickEvery(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) loginCmd(phone string) tea.Cmd {
	client := m.client
	timeout := m.cfg.httpTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		session, err := client.Login(ctx, phone)
		return loginDoneMsg{session: session, err: err}
	}
}

func (m model) refreshConversationsCmd(userID string) tea.Cmd {
	client := m.client
	timeout := m.cfg.httpTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		summaries, err := client.Conversations(ctx, userID)
		return conversationsMsg{userID: userID, summaries: summaries, err: err}
	}
}

func (m model) pollMessagesCmd(conversationID string) tea.Cmd {
	client := m.client
	timeout := m.cfg.httpTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		wire, err := client.Messages(ctx, conversationID)
		return messagesMsg{conversationID: conversationID, wire: wire, err: err}
	}
}

func (m model) sendMessageCmd(conversationID, senderID, content string) tea.Cmd {
	client := m.client
	timeout := m.cfg.httpTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := client.SendMessage(ctx, conversationID, senderID, content)
		return sendDoneMsg{conversationID: conversationID, err: err}
	}
}

// createChatCmd creates the conversation and, when a first message was given,
// submits it right after, before the list refresh picks the new chat up.
func (m model) createChatCmd(userID, recipient, firstMessage string) tea.Cmd {
	client := m.client
	timeout := m.cfg.httpTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
		defer cancel()
		conversationID, err := client.CreateConversation(ctx, userID, recipient)
		if err != nil {
			return chatCreatedMsg{err: err}
		}
		initialSent := false
		if strings.TrimSpace(firstMessage) != "" {
			if err := client.SendMessage(ctx, conversationID, userID, firstMessage); err == nil {
				initialSent = true
			}
		}
		return chatCreatedMsg{conversationID: conversationID, initialSent: initialSent}
	}
}

func (m model) analyzeCmd(conversationID, userID string) tea.Cmd {
	client := m.client
	timeout := m.cfg.httpTimeout
	return func() tea.Msg {
		// Analysis runs a remote model; give it more room than a plain fetch.
		ctx, cancel := context.WithTimeout(context.Background(), 6*timeout)
		defer cancel()
		report, err := client.Analyze(ctx, conversationID, userID)
		return analysisMsg{conversationID: conversationID, report: report, err: err}
	}
}

func (m model) leaderboardCmd() tea.Cmd {
	client := m.client
	timeout := m.cfg.httpTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		entries, err := client.Leaderboard(ctx)
		return leaderboardMsg{entries: entries, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tickMsg:
		cmds = append(cmds, m.pollForScreen()...)
		cmds = append(cmds, tickEvery(m.cfg.pollInterval))
	case loginDoneMsg:
		m.loginInFlight = false
		if msg.err != nil {
			m.logError(msg.err)
			m.statusLine = "sign-in failed"
			break
		}
		m.session = msg.session
		m.convs = chatsync.NewConversationStore(msg.session.UserID)
		m.sync = chatsync.NewMessageSynchronizer(msg.session.UserID, m.cfg.sessionSeed)
		m.screen = screenConversations
		m.loginInput.Blur()
		m.statusLine = fmt.Sprintf("signed in as %s", msg.session.PhoneNumber)
		if m.convs.BeginRefresh() {
			cmds = append(cmds, m.refreshConversationsCmd(m.session.UserID))
		}
	case conversationsMsg:
		if m.convs == nil || msg.userID != m.convs.UserID() {
			break
		}
		m.convs.CompleteRefresh(msg.summaries, msg.err)
		if msg.err != nil {
			m.logError(msg.err)
			break
		}
		m.convIndex = clampInt(m.convIndex, 0, maxInt(0, len(m.convs.Snapshot())-1))
	case messagesMsg:
		if m.sync == nil {
			break
		}
		m.sync.CompletePoll(msg.conversationID, msg.wire, msg.err)
		if msg.err != nil {
			m.logError(msg.err)
			break
		}
		if m.screen == screenMessages {
			m.renderTimeline()
		}
	case sendDoneMsg:
		m.sendInFlight = false
		if msg.err != nil {
			// Fail-soft: the optimistic entry stays pending in the log.
			m.logError(msg.err)
			break
		}
		if m.sync != nil {
			if conversationID, ok := m.sync.BeginPoll(); ok {
				cmds = append(cmds, m.pollMessagesCmd(conversationID))
			}
		}
	case chatCreatedMsg:
		m.createInFlight = false
		if msg.err != nil {
			m.logError(msg.err)
			m.statusLine = "could not start chat"
			break
		}
		m.newChatOpen = false
		m.recipientInput.SetValue("")
		m.firstMsgInput.SetValue("")
		m.statusLine = "chat started"
		if msg.initialSent {
			m.statusLine = "chat started, message sent"
		}
		if m.convs != nil && m.convs.BeginRefresh() {
			cmds = append(cmds, m.refreshConversationsCmd(m.convs.UserID()))
		}
		cmds = append(cmds, m.openConversationByID(msg.conversationID)...)
	case analysisMsg:
		m.coordinator.Complete(msg.conversationID, msg.report, msg.err)
		if msg.err != nil && msg.conversationID == m.coordinator.ConversationID() {
			m.statusLine = "analysis failed"
		} else if m.coordinator.State() == analysis.StateSuccess {
			m.statusLine = "analysis ready"
		}
	case leaderboardMsg:
		m.leaderboardLoading = false
		if msg.err != nil {
			m.logError(msg.err)
			break
		}
		m.leaderboard = msg.entries
		m.leaderboardIndex = clampInt(m.leaderboardIndex, 0, maxInt(0, len(m.leaderboard)-1))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		if m.screen == screenMessages {
			m.renderTimeline()
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.screen == screenMessages {
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			cmds = append(cmds, cmd)
		}
	case tea.KeyMsg:
		return m.handleKey(msg, cmds)
	}
	return m, tea.Batch(cmds...)
}

// pollForScreen issues the periodic fetches for whatever screen is active.
// Each store enforces its own one-in-flight rule; a tick that lands while a
// request is outstanding is simply dropped.
func (m *model) pollForScreen() []tea.Cmd {
	var cmds []tea.Cmd
	switch m.screen {
	case screenConversations:
		if m.convs != nil && m.convs.BeginRefresh() {
			cmds = append(cmds, m.refreshConversationsCmd(m.convs.UserID()))
		}
	case screenMessages:
		if m.sync != nil {
			if conversationID, ok := m.sync.BeginPoll(); ok {
				cmds = append(cmds, m.pollMessagesCmd(conversationID))
			}
			// Participant label comes from the conversation list; keep it
			// fresh only while it is still unresolved.
			if m.convs != nil {
				if _, known := m.convs.Lookup(m.sync.ConversationID()); !known && m.convs.BeginRefresh() {
					cmds = append(cmds, m.refreshConversationsCmd(m.convs.UserID()))
				}
			}
		}
	}
	return cmds
}

func (m model) handleKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.quitConfirm {
		switch msg.String() {
		case "y", "Y", "enter":
			return m, tea.Quit
		case "n", "N", "esc":
			m.quitConfirm = false
			m.statusLine = "quit canceled"
		}
		return m, tea.Batch(cmds...)
	}

	switch m.screen {
	case screenLogin:
		return m.handleLoginKey(msg, cmds)
	case screenConversations:
		if m.newChatOpen {
			return m.handleNewChatKey(msg, cmds)
		}
		return m.handleConversationsKey(msg, cmds)
	case screenMessages:
		return m.handleMessagesKey(msg, cmds)
	case screenAnalysis:
		return m.handleAnalysisKey(msg, cmds)
	case screenLeaderboard:
		return m.handleLeaderboardKey(msg, cmds)
	}
	return m, tea.Batch(cmds...)
}

func (m model) handleLoginKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.quitConfirm = true
		m.statusLine = "quit? (y/n)"
		return m, tea.Batch(cmds...)
	case "enter":
		if m.loginInFlight {
			return m, tea.Batch(cmds...)
		}
		phone := strings.TrimSpace(m.loginInput.Value())
		if phone == "" {
			m.statusLine = "phone number required"
			return m, tea.Batch(cmds...)
		}
		m.loginInFlight = true
		m.statusLine = "signing in..."
		cmds = append(cmds, m.loginCmd(phone))
		return m, tea.Batch(cmds...)
	}
	var cmd tea.Cmd
	m.loginInput, cmd = m.loginInput.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) handleConversationsKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	convs := []chatsync.Conversation{}
	if m.convs != nil {
		convs = m.convs.Snapshot()
	}
	switch msg.String() {
	case "esc", "q":
		m.quitConfirm = true
		m.statusLine = "quit? (y/n)"
	case "up", "k":
		m.convIndex = maxInt(0, m.convIndex-1)
	case "down", "j":
		m.convIndex = minInt(maxInt(0, len(convs)-1), m.convIndex+1)
	case "enter":
		if m.convIndex < len(convs) {
			cmds = append(cmds, m.openConversation(convs[m.convIndex])...)
		}
	case "n":
		m.newChatOpen = true
		m.newChatField = 0
		m.recipientInput.Focus()
		m.firstMsgInput.Blur()
		m.statusLine = "new chat"
	case "l", "L":
		m.screen = screenLeaderboard
		m.leaderboardIndex = 0
		if !m.leaderboardLoading {
			m.leaderboardLoading = true
			cmds = append(cmds, m.leaderboardCmd())
		}
	case "r":
		if m.convs != nil && m.convs.BeginRefresh() {
			cmds = append(cmds, m.refreshConversationsCmd(m.convs.UserID()))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m model) handleNewChatKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.newChatOpen = false
		m.recipientInput.Blur()
		m.firstMsgInput.Blur()
		m.statusLine = "new chat canceled"
		return m, tea.Batch(cmds...)
	case "tab", "shift+tab", "up", "down":
		m.newChatField = (m.newChatField + 1) % 2
		if m.newChatField == 0 {
			m.recipientInput.Focus()
			m.firstMsgInput.Blur()
		} else {
			m.recipientInput.Blur()
			m.firstMsgInput.Focus()
		}
		return m, tea.Batch(cmds...)
	case "enter":
		if m.createInFlight {
			return m, tea.Batch(cmds...)
		}
		recipient := strings.TrimSpace(m.recipientInput.Value())
		if recipient == "" {
			m.statusLine = "recipient required"
			return m, tea.Batch(cmds...)
		}
		m.createInFlight = true
		m.statusLine = "starting chat..."
		cmds = append(cmds, m.createChatCmd(m.session.UserID, recipient, m.firstMsgInput.Value()))
		return m, tea.Batch(cmds...)
	}
	var cmd tea.Cmd
	if m.newChatField == 0 {
		m.recipientInput, cmd = m.recipientInput.Update(msg)
	} else {
		m.firstMsgInput, cmd = m.firstMsgInput.Update(msg)
	}
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) handleMessagesKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenConversations
		m.composeInput.Blur()
		m.statusLine = "conversations"
		return m, tea.Batch(cmds...)
	case "enter":
		content := m.composeInput.Value()
		if strings.TrimSpace(content) == "" {
			return m, tea.Batch(cmds...)
		}
		if m.sendInFlight || m.sync == nil {
			return m, tea.Batch(cmds...)
		}
		staged, err := m.sync.StagePending(content)
		if err != nil {
			m.logError(err)
			return m, tea.Batch(cmds...)
		}
		m.composeInput.SetValue("")
		m.sendInFlight = true
		m.renderTimeline()
		cmds = append(cmds, m.sendMessageCmd(staged.ConversationID, staged.SenderID, staged.Content))
		return m, tea.Batch(cmds...)
	case "ctrl+a":
		cmds = append(cmds, m.openAnalysis(m.sync.ConversationID())...)
		return m, tea.Batch(cmds...)
	case "pgup":
		m.timeline.LineUp(6)
		return m, tea.Batch(cmds...)
	case "pgdown":
		m.timeline.LineDown(6)
		return m, tea.Batch(cmds...)
	}
	var cmd tea.Cmd
	m.composeInput, cmd = m.composeInput.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) handleAnalysisKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	rows := []scoreRow{}
	if report, ok := m.coordinator.Report(); ok {
		rows = analysisRows(report)
	}
	switch msg.String() {
	case "esc":
		m.screen = screenMessages
		m.composeInput.Focus()
		m.statusLine = "messages"
	case "up", "k":
		m.traitIndex = maxInt(0, m.traitIndex-1)
	case "down", "j":
		m.traitIndex = minInt(maxInt(0, len(rows)-1), m.traitIndex+1)
	case "enter", " ":
		if m.traitIndex < len(rows) {
			row := rows[m.traitIndex]
			m.coordinator.Scorecard().Toggle(row.Subject, row.Trait)
		}
	case "r":
		// Explicit retry; Begin refuses anything but Idle/Failed.
		if m.coordinator.Begin() {
			m.statusLine = "analyzing conversation..."
			cmds = append(cmds, m.analyzeCmd(m.coordinator.ConversationID(), m.session.UserID))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m model) handleLeaderboardKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenConversations
		m.statusLine = "conversations"
	case "up", "k":
		m.leaderboardIndex = maxInt(0, m.leaderboardIndex-1)
	case "down", "j":
		m.leaderboardIndex = minInt(maxInt(0, len(m.leaderboard)-1), m.leaderboardIndex+1)
	case "enter":
		if m.leaderboardIndex < len(m.leaderboard) {
			cmds = append(cmds, m.openAnalysis(m.leaderboard[m.leaderboardIndex].ConversationID)...)
		}
	case "r":
		if !m.leaderboardLoading {
			m.leaderboardLoading = true
			cmds = append(cmds, m.leaderboardCmd())
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *model) openConversation(conv chatsync.Conversation) []tea.Cmd {
	return m.openConversationByID(conv.ID)
}

func (m *model) openConversationByID(conversationID string) []tea.Cmd {
	if m.sync == nil || strings.TrimSpace(conversationID) == "" {
		return nil
	}
	m.sync.Bind(conversationID)
	m.screen = screenMessages
	m.composeInput.Focus()
	m.statusLine = "chat with " + m.participantLabel(conversationID)
	m.renderTimeline()
	var cmds []tea.Cmd
	if cid, ok := m.sync.BeginPoll(); ok {
		cmds = append(cmds, m.pollMessagesCmd(cid))
	}
	return cmds
}

func (m *model) openAnalysis(conversationID string) []tea.Cmd {
	if strings.TrimSpace(conversationID) == "" {
		return nil
	}
	m.coordinator.Bind(conversationID)
	m.screen = screenAnalysis
	m.traitIndex = 0
	m.composeInput.Blur()
	var cmds []tea.Cmd
	if m.coordinator.Begin() {
		m.statusLine = "analyzing conversation..."
		cmds = append(cmds, m.analyzeCmd(conversationID, m.session.UserID))
	}
	return cmds
}

func (m *model) participantLabel(conversationID string) string {
	if m.convs != nil {
		if conv, ok := m.convs.Lookup(conversationID); ok && strings.TrimSpace(conv.OtherParticipant) != "" {
			return conv.OtherParticipant
		}
	}
	return truncate(conversationID, 12)
}

func (m model) View() string {
	var body string
	switch m.screen {
	case screenLogin:
		body = m.renderLogin()
	case screenConversations:
		body = m.renderConversations()
		if m.newChatOpen {
			body = m.renderNewChatModal()
		}
	case screenMessages:
		body = m.renderMessages()
	case screenAnalysis:
		body = m.renderAnalysis()
	case screenLeaderboard:
		body = m.renderLeaderboard()
	}
	out := lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), body, m.renderFooter())
	if m.quitConfirm {
		out = m.renderQuitModal()
	}
	return m.theme.root.Render(out)
}

func (m *model) renderHeader() string {
	title := m.theme.panelTitle.Render(appTitle)
	where := ""
	switch m.screen {
	case screenLogin:
		where = "Sign In"
	case screenConversations:
		where = "Conversations"
	case screenMessages:
		where = "Chat · " + m.participantLabel(m.sync.ConversationID())
	case screenAnalysis:
		where = "Analysis · " + m.participantLabel(m.coordinator.ConversationID())
	case screenLeaderboard:
		where = "Toxicity Leaderboard"
	}
	meta := m.theme.helpText.Render(where)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(title + "  " + meta)
}

func (m *model) renderFooter() string {
	help := ""
	switch m.screen {
	case screenLogin:
		help = "enter sign in · esc quit"
	case screenConversations:
		help = "enter open · n new chat · l leaderboard · r refresh · esc quit"
	case screenMessages:
		help = "enter send · ctrl+a analyze · pgup/pgdn scroll · esc back"
	case screenAnalysis:
		help = "up/down select · enter toggle detail · r retry · esc back"
	case screenLeaderboard:
		help = "enter open analysis · r refresh · esc back"
	}
	status := m.theme.status.Render(compactSingleLine(m.statusLine, statusTrimChars))
	line := status + "  " + m.theme.helpText.Render(help)
	if len(m.logs) > 0 {
		line += "\n" + m.theme.helpText.Render(m.logs[len(m.logs)-1])
	}
	return m.theme.footer.Width(maxInt(20, m.width-4)).Render(line)
}

func (m *model) renderLogin() string {
	contentWidth := maxInt(40, m.width-4)
	contentHeight := maxInt(6, m.height-10)
	busy := ""
	if m.loginInFlight {
		busy = "\n" + m.spinner.View() + " signing in..."
	}
	body := m.theme.panelTitle.Render("Welcome to Lantern") + "\n\n" +
		m.loginInput.View() + busy + "\n\n" +
		m.theme.helpText.Render("Your number is only used to identify your session.")
	return m.theme.panel.Width(contentWidth).Height(contentHeight).Render(body)
}

func (m *model) renderConversations() string {
	contentWidth := maxInt(40, m.width-4)
	contentHeight := maxInt(6, m.height-10)
	var b strings.Builder
	b.WriteString(m.theme.panelTitle.Render("Messages"))
	b.WriteString("\n")
	convs := []chatsync.Conversation{}
	if m.convs != nil {
		convs = m.convs.Snapshot()
	}
	if len(convs) == 0 {
		hint := "No conversations yet. Press n to start one."
		if m.convs != nil && !m.convs.Refreshed() {
			hint = m.spinner.View() + " loading conversations..."
		}
		b.WriteString(m.theme.helpText.Render(hint))
	}
	for idx, conv := range convs {
		label := nullCoalesce(conv.OtherParticipant, truncate(conv.ID, 12))
		preview := nullCoalesce(conv.LastMessage, "No messages yet")
		line := fmt.Sprintf("%s — %s", label, compactSingleLine(preview, 70))
		if idx == m.convIndex {
			b.WriteString(m.theme.listPick.Render(line))
		} else {
			b.WriteString(m.theme.listItem.Render(line))
		}
		b.WriteString("\n")
	}
	return m.theme.panel.Width(contentWidth).Height(contentHeight).Render(strings.TrimRight(b.String(), "\n"))
}

func (m *model) renderNewChatModal() string {
	body := m.theme.panelTitle.Render("New Message") + "\n\n" +
		m.recipientInput.View() + "\n" +
		m.firstMsgInput.View() + "\n\n" +
		m.theme.helpText.Render("tab switch field · enter start chat · esc cancel")
	panel := m.theme.modalFrame.Width(clampInt(m.width-8, 44, 80)).Render(body)
	return lipgloss.Place(maxInt(48, m.width-2), maxInt(12, m.height-8), lipgloss.Center, lipgloss.Center, panel)
}

func (m *model) renderMessages() string {
	contentWidth := maxInt(40, m.width-4)
	contentHeight := maxInt(6, m.height-13)
	panel := m.theme.panel.Width(contentWidth).Height(contentHeight).Render(
		m.theme.panelTitle.Render(m.participantLabel(m.sync.ConversationID())) + "\n" + m.timeline.View(),
	)
	input := m.theme.inputPanel.Width(contentWidth).Render(m.composeInput.View())
	return lipgloss.JoinVertical(lipgloss.Left, panel, input)
}

// renderTimeline rebuilds the message viewport from the synchronizer's merged
// log and keeps the view pinned to the newest message.
func (m *model) renderTimeline() {
	if m.sync == nil {
		return
	}
	width := maxInt(24, m.timeline.Width-2)
	var b strings.Builder
	for _, msg := range m.sync.Log() {
		mine := msg.SenderID == m.session.UserID
		style := m.theme.recvBubble
		label := m.participantLabel(msg.ConversationID)
		if mine {
			style = m.theme.sentBubble
			label = "you"
		}
		line := style.Render(label+":") + " " + wrapText(msg.Content, width-4)
		if msg.State == chatsync.DeliveryPending {
			line += " " + m.theme.pendingMark.Render("(sending...)")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		b.WriteString(m.theme.helpText.Render("No messages yet. Say hello."))
	}
	m.timeline.SetContent(strings.TrimRight(b.String(), "\n"))
	m.timeline.GotoBottom()
}

func (m *model) renderAnalysis() string {
	contentWidth := maxInt(40, m.width-4)
	contentHeight := maxInt(6, m.height-10)
	panel := m.theme.panel.Width(contentWidth).Height(contentHeight)

	switch m.coordinator.State() {
	case analysis.StateRequesting:
		return panel.Render(
			m.theme.panelTitle.Render("Conversation Analysis") + "\n\n" +
				m.spinner.View() + " analyzing conversation...",
		)
	case analysis.StateFailed:
		return panel.Render(
			m.theme.panelTitle.Render("Conversation Analysis") + "\n\n" +
				m.theme.errorStatus.Render(m.coordinator.Err()) + "\n\n" +
				m.theme.helpText.Render("Press r to try again."),
		)
	case analysis.StateSuccess:
		report, _ := m.coordinator.Report()
		return panel.Render(m.renderReport(report, contentWidth-4))
	default:
		return panel.Render(
			m.theme.panelTitle.Render("Conversation Analysis") + "\n\n" +
				m.theme.helpText.Render("No analysis requested."),
		)
	}
}

func (m *model) renderReport(report api.Report, width int) string {
	var b strings.Builder
	b.WriteString(m.theme.panelTitle.Render("Conversation Analysis"))
	b.WriteString("\n")
	if report.IsTraffickerFlag {
		b.WriteString(m.theme.warnBanner.Render("⚠ TRAFFICKING RISK DETECTED — review this conversation"))
		b.WriteString("\n")
	}

	rows := analysisRows(report)
	section := ""
	for idx, row := range rows {
		if row.Section != section {
			section = row.Section
			b.WriteString("\n")
			b.WriteString(m.theme.panelTitle.Render(section))
			b.WriteString("\n")
		}
		bar := m.scoreBar(row.Score)
		label := displayTrait(row.Trait)
		if row.Subject != api.AggregateSubject {
			label = row.Subject + " · " + label
		}
		line := fmt.Sprintf("%-28s %s %4.1f", truncate(label, 28), bar, row.Score)
		if idx == m.traitIndex {
			line = m.theme.listPick.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
		if m.coordinator.Scorecard().Disclosed(row.Subject, row.Trait) {
			description := analysis.TraitDescription(row.Trait)
			if description != "" {
				b.WriteString(m.theme.helpText.Render("  " + wrapText(description, width-4)))
				b.WriteString("\n")
			}
		}
	}

	if strings.TrimSpace(report.Summary) != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.panelTitle.Render("Summary"))
		b.WriteString("\n")
		b.WriteString(m.theme.summary.Render(wrapText(report.Summary, width)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderLeaderboard() string {
	contentWidth := maxInt(40, m.width-4)
	contentHeight := maxInt(6, m.height-10)
	var b strings.Builder
	b.WriteString(m.theme.panelTitle.Render("Toxicity Leaderboard"))
	b.WriteString("\n")
	if m.leaderboardLoading && len(m.leaderboard) == 0 {
		b.WriteString(m.spinner.View() + " loading leaderboard...")
	} else if len(m.leaderboard) == 0 {
		b.WriteString(m.theme.helpText.Render("Leaderboard is empty."))
	}
	for idx, entry := range m.leaderboard {
		who := strings.Join(entry.Participants, " & ")
		line := fmt.Sprintf("%-30s %s %4.1f", truncate(who, 30), m.scoreBar(entry.Toxicity), entry.Toxicity)
		if idx == m.leaderboardIndex {
			line = m.theme.listPick.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
		if strings.TrimSpace(entry.Summary) != "" {
			b.WriteString(m.theme.helpText.Render("  " + compactSingleLine(entry.Summary, contentWidth-6)))
			b.WriteString("\n")
		}
	}
	return m.theme.panel.Width(contentWidth).Height(contentHeight).Render(strings.TrimRight(b.String(), "\n"))
}

func (m *model) renderQuitModal() string {
	body := m.theme.panelTitle.Render("Leave Lantern?") + "\n\n" +
		m.theme.helpText.Render("y confirm · n stay")
	panel := m.theme.modalFrame.Render(body)
	return lipgloss.Place(maxInt(40, m.width-2), maxInt(10, m.height-2), lipgloss.Center, lipgloss.Center, panel)
}

func (m *model) scoreBar(score float64) string {
	filled := int(analysis.NormalizeScore(score) / 100 * scoreBarWidth)
	filled = clampInt(filled, 0, scoreBarWidth)
	return m.theme.barFill.Render(strings.Repeat("█", filled)) +
		m.theme.barEmpty.Render(strings.Repeat("░", scoreBarWidth-filled))
}

func (m *model) resize() {
	m.timeline.Width = maxInt(24, m.width-8)
	m.timeline.Height = maxInt(4, m.height-16)
	inputWidth := maxInt(20, m.width-12)
	m.loginInput.Width = minInt(inputWidth, 48)
	m.composeInput.Width = inputWidth
	m.recipientInput.Width = minInt(inputWidth, 48)
	m.firstMsgInput.Width = minInt(inputWidth, 64)
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), compactSingleLine(trimmed, 200)))
	if len(m.logs) > logRingSize {
		m.logs = m.logs[len(m.logs)-logRingSize:]
	}
}

func (m *model) logError(err error) {
	if err == nil {
		return
	}
	m.appendLog("error: " + err.Error())
}

// scoreRow is one renderable score line of the analysis view.
type scoreRow struct {
	Section string
	Subject string
	Trait   string
	Score   float64
}

var temperamentOrder = []string{"artisan", "guardian", "idealist", "rational"}
var aspectOrder = []string{"positiveness", "agreeableness", "toxicity", "empathy", "emotional_depth"}

// analysisRows flattens a report into a stable row sequence: temperaments per
// subject (aggregate subject first, then participants alphabetically, known
// traits in Keirsey order), then emotional aspects.
func analysisRows(report api.Report) []scoreRow {
	rows := make([]scoreRow, 0, 12)

	subjects := make([]string, 0, len(report.Temperaments))
	for subject := range report.Temperaments {
		if subject != api.AggregateSubject {
			subjects = append(subjects, subject)
		}
	}
	sort.Strings(subjects)
	if _, ok := report.Temperaments[api.AggregateSubject]; ok {
		subjects = append([]string{api.AggregateSubject}, subjects...)
	}

	for _, subject := range subjects {
		traits := report.Temperaments[subject]
		section := "Keirsey Temperaments"
		if subject != api.AggregateSubject {
			section = "Keirsey Temperaments · " + subject
		}
		for _, trait := range orderedTraits(traits, temperamentOrder) {
			rows = append(rows, scoreRow{Section: section, Subject: subject, Trait: trait, Score: traits[trait]})
		}
	}

	for _, aspect := range orderedTraits(report.EmotionalAspects, aspectOrder) {
		rows = append(rows, scoreRow{
			Section: "Emotional Aspects",
			Subject: api.AggregateSubject,
			Trait:   aspect,
			Score:   report.EmotionalAspects[aspect],
		})
	}
	return rows
}

// orderedTraits lists known traits in their canonical order followed by any
// unknown ones alphabetically.
func orderedTraits(scores map[string]float64, canonical []string) []string {
	out := make([]string, 0, len(scores))
	seen := map[string]bool{}
	for _, trait := range canonical {
		if _, ok := scores[trait]; ok {
			out = append(out, trait)
			seen[trait] = true
		}
	}
	rest := make([]string, 0, len(scores))
	for trait := range scores {
		if !seen[trait] {
			rest = append(rest, trait)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// displayTrait turns a wire trait key into its display label: underscores to
// spaces, words title-cased.
func displayTrait(trait string) string {
	words := strings.Split(strings.ReplaceAll(trait, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			wrapped = append(wrapped, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len(current)+1+len(word) <= width {
				current += " " + word
				continue
			}
			wrapped = append(wrapped, current)
			current = word
		}
		wrapped = append(wrapped, current)
	}
	return strings.Join(wrapped, "\n")
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	if limit <= 3 {
		return text[:limit]
	}
	return text[:limit-3] + "..."
}

func compactSingleLine(text string, limit int) string {
	compact := strings.Join(strings.Fields(text), " ")
	return truncate(compact, limit)
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func parseFlags() (appConfig, error) {
	fileCfg, err := config.Load()
	if err != nil {
		return appConfig{}, err
	}

	cfg := appConfig{}
	serverURL := flag.String("server-url", fileCfg.ServerURL, "Chat server base URL")
	pollSeconds := flag.Int("poll-interval", fileCfg.PollSeconds, "Refresh interval seconds")
	timeoutSeconds := flag.Int("http-timeout", fileCfg.HTTPTimeoutSeconds, "Per-request HTTP timeout seconds")
	phone := flag.String("phone", fileCfg.PhoneNumber, "Phone number prefilled on the sign-in screen")
	altDefault := true
	if fileCfg.AltScreen != nil {
		altDefault = *fileCfg.AltScreen
	}
	altScreen := flag.Bool("alt-screen", altDefault, "Use alternate screen buffer")
	sessionSeed := flag.String("session-seed", "", "Optional seed for local message ids")
	flag.Parse()

	cfg.serverURL = strings.TrimRight(strings.TrimSpace(*serverURL), "/")
	cfg.pollInterval = time.Duration(clampInt(*pollSeconds, 1, 60)) * time.Second
	cfg.httpTimeout = time.Duration(clampInt(*timeoutSeconds, 1, 120)) * time.Second
	cfg.phoneNumber = strings.TrimSpace(*phone)
	cfg.altScreen = *altScreen
	cfg.sessionSeed = strings.TrimSpace(*sessionSeed)
	if cfg.sessionSeed == "" {
		cfg.sessionSeed = uuid.NewString()
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lantern-tui: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if cfg.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if _, err := tea.NewProgram(newModel(cfg), opts...).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "lantern-tui fatal error: %v\n", err)
		os.Exit(1)
	}
}
