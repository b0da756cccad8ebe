package app

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailobot/internal/keys"
	"github.com/nhle/mailobot/internal/mail"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/relay"
	"github.com/nhle/mailobot/internal/store"
	"github.com/nhle/mailobot/internal/ui"
	chatview "github.com/nhle/mailobot/internal/ui/chat"
	composeview "github.com/nhle/mailobot/internal/ui/compose"
	"github.com/nhle/mailobot/internal/ui/emailview"
	helpview "github.com/nhle/mailobot/internal/ui/help"
	inboxview "github.com/nhle/mailobot/internal/ui/inbox"
	settingsview "github.com/nhle/mailobot/internal/ui/settings"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewChat ViewState = iota
	ViewInbox
	ViewEmail
	ViewSettings
	ViewCompose
	ViewHelp
)

// Model is the root Bubble Tea model that manages view routing, layout,
// the mail poller, and dispatch of backend actions.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	store        store.Store
	cfg          model.AppConfig
	keys         *keys.KeyMap

	chatView     chatview.Model
	inboxView    inboxview.Model
	emailView    emailview.Model
	settingsView settingsview.Model
	composeView  composeview.Model
	helpView     helpview.Model

	relay        *relay.Client
	poller       *mail.Poller
	imapSettings *model.IMAPSettings

	ready            bool
	unreadCount      int
	authErrorMessage string
	pollerStarted    bool
}

// New creates the root application model. imapSettings may be nil when
// no mail account has been configured yet; the poller then idles until
// settings are saved.
func New(
	s store.Store,
	cfg model.AppConfig,
	history []model.ChatMessage,
	imapSettings *model.IMAPSettings,
) Model {
	k := keys.DefaultKeyMap()

	relayClient := relay.New(
		cfg.Rasa.URL,
		time.Duration(cfg.Rasa.TimeoutSec)*time.Second,
	)

	var checker mail.Checker
	if imapSettings != nil && imapSettings.Configured() {
		checker = mail.NewClient(*imapSettings)
	}

	poller := mail.NewPoller(
		s,
		checker,
		time.Duration(cfg.Mail.PollIntervalSec)*time.Second,
		cfg.Mail.RecentLimit,
	)

	return Model{
		currentView:   ViewChat,
		pollerStarted: checker != nil,
		store:         s,
		cfg:           cfg,
		keys:          k,
		chatView:      chatview.New(s, relayClient, history, k, 80, 24),
		inboxView:     inboxview.New(s, k, 80, 24),
		emailView:     emailview.New(k, 80, 24),
		settingsView:  settingsview.New(s, imapSettings, k, 80, 24),
		helpView:      helpview.New(k, 80, 24),
		relay:         relayClient,
		poller:        poller,
		imapSettings:  imapSettings,
	}
}

// Init returns the initial commands: the chat view, the cached inbox,
// and the mail poller when an account is configured.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.chatView.Init(),
		m.inboxView.Init(),
	}

	if m.imapSettings != nil && m.imapSettings.Configured() {
		cmds = append(cmds, m.poller.Start())
	}

	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.chatView.SetSize(contentWidth, contentHeight)
		m.inboxView.SetSize(contentWidth, contentHeight)
		m.emailView.SetSize(contentWidth, contentHeight)
		m.settingsView.SetSize(contentWidth, contentHeight)
		m.composeView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case chatview.ReplyMsg:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)

		var actionCmds []tea.Cmd
		if msg.Reply != nil {
			for _, action := range msg.Reply.Actions {
				if actionCmd := m.dispatchAction(action); actionCmd != nil {
					actionCmds = append(actionCmds, actionCmd)
				}
			}
		}
		return m, tea.Batch(append(actionCmds, cmd)...)

	case mail.MailCheckedMsg:
		return m.handleMailChecked(msg)

	case emailLoadedMsg:
		if msg.email == nil {
			m.currentView = ViewInbox
			return m, m.chatView.AddBotBubble(
				"I couldn't find that email. It may not be cached yet.",
			)
		}
		m.previousView = m.currentView
		m.currentView = ViewEmail
		m.emailView.SetEmail(msg.email)
		// Opening an email marks it read; repeating this is a no-op.
		return m, tea.Batch(
			m.markRead(msg.email.MessageID),
			m.inboxView.LoadEmails(),
		)

	case searchDoneMsg:
		return m, m.chatView.AddCard(msg.card)

	case connectionTestedMsg:
		return m, m.chatView.AddBotBubble(msg.text)

	case markedAllReadMsg:
		return m, m.inboxView.LoadEmails()

	case inboxview.SelectedEmailMsg:
		return m, m.loadEmail(msg.MessageID)

	case emailview.BackMsg:
		m.currentView = ViewInbox
		return m, m.inboxView.LoadEmails()

	case emailview.ReplyRequestMsg:
		return m.openComposer(model.Draft{
			Recipient: msg.Email.From,
			Subject:   msg.Email.Subject,
			InReplyTo: msg.Email.MessageID,
		})

	case settingsview.SavedMsg:
		return m.handleSettingsSaved(msg.Settings)

	case settingsview.DoneMsg:
		m.currentView = ViewChat
		return m, m.chatView.Focus()

	case composeview.DoneMsg:
		m.currentView = m.previousView
		if m.currentView == ViewChat {
			return m, m.chatView.Focus()
		}
		return m, nil

	case tea.KeyMsg:
		if handled, mdl, cmd := m.handleGlobalKeys(msg); handled {
			return mdl, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKeys processes keybindings that work regardless of the
// active view. Returns false when the key should fall through.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (bool, tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.poller.Stop()
		return true, m, tea.Quit

	case "ctrl+t":
		if m.currentView != ViewChat {
			m.previousView = m.currentView
			m.currentView = ViewChat
			return true, m, m.chatView.Focus()
		}

	case "ctrl+b":
		if m.currentView != ViewInbox {
			m.previousView = m.currentView
			m.currentView = ViewInbox
			return true, m, m.inboxView.LoadEmails()
		}

	case "ctrl+s":
		if m.currentView != ViewSettings {
			m.previousView = m.currentView
			m.currentView = ViewSettings
			m.settingsView = settingsview.New(
				m.store, m.imapSettings, m.keys,
				m.layout.ContentWidth(), m.layout.ContentHeight(),
			)
			return true, m, m.settingsView.Init()
		}

	case "ctrl+h":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return true, m, nil
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return true, m, nil

	case "ctrl+r":
		m.poller.RefreshNow()
		return true, m, nil

	case "esc":
		switch m.currentView {
		case ViewInbox, ViewHelp:
			m.currentView = ViewChat
			return true, m, m.chatView.Focus()
		}
	}

	return false, m, nil
}

// handleMailChecked reacts to a completed background mail check:
// announce new mail in the chat, refresh the inbox, and re-subscribe
// for the next result.
func (m Model) handleMailChecked(msg mail.MailCheckedMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.poller.WaitForNextResult()}

	if msg.Err != nil {
		if msg.AuthFailed {
			m.authErrorMessage = "Mail login failed. Check your account settings (ctrl+s)."
		}
		return m, tea.Batch(cmds...)
	}

	m.authErrorMessage = ""
	m.unreadCount = msg.UnreadCount

	if msg.NewCount > 0 {
		noun := "emails"
		if msg.NewCount == 1 {
			noun = "email"
		}
		cmds = append(cmds, m.chatView.AddBotBubble(fmt.Sprintf(
			"You have %d new %s. Open the inbox with ctrl+b or ask me to summarize them.",
			msg.NewCount, noun,
		)))
		cmds = append(cmds, m.inboxView.LoadEmails())
	}

	return m, tea.Batch(cmds...)
}

// handleSettingsSaved rebuilds the mail client from the saved settings
// and kicks off an immediate check.
func (m Model) handleSettingsSaved(settings model.IMAPSettings) (tea.Model, tea.Cmd) {
	m.imapSettings = &settings
	m.authErrorMessage = ""
	m.poller.SetChecker(mail.NewClient(settings))

	m.currentView = ViewChat

	var cmds []tea.Cmd
	if !m.pollerStarted {
		m.pollerStarted = true
		cmds = append(cmds, m.poller.Start())
	} else {
		m.poller.RefreshNow()
	}
	cmds = append(cmds, m.chatView.Focus())
	cmds = append(cmds, m.chatView.AddBotBubble(
		"Your mail account is set up. I'll check for new email every "+
			fmt.Sprintf("%d seconds.", m.cfg.Mail.PollIntervalSec),
	))

	return m, tea.Batch(cmds...)
}

// openComposer switches to the draft composer pre-filled with the draft.
func (m Model) openComposer(draft model.Draft) (tea.Model, tea.Cmd) {
	m.previousView = m.currentView
	m.currentView = ViewCompose
	m.composeView = composeview.New(
		m.store, m.smtpSettings(), draft, m.keys,
		m.layout.ContentWidth(), m.layout.ContentHeight(),
	)
	return m, m.composeView.Init()
}

// smtpSettings derives SMTP settings from the mail account and config,
// or nil when sending is not configured.
func (m Model) smtpSettings() *mail.SMTPSettings {
	if m.imapSettings == nil || m.cfg.Mail.SMTPHost == "" {
		return nil
	}
	return &mail.SMTPSettings{
		Host:     m.cfg.Mail.SMTPHost,
		Port:     m.cfg.Mail.SMTPPort,
		Username: m.imapSettings.Username,
		Password: m.imapSettings.Password,
		TLS:      m.imapSettings.TLS,
	}
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewChat:
		m.chatView, cmd = m.chatView.Update(msg)
	case ViewInbox:
		m.inboxView, cmd = m.inboxView.Update(msg)
	case ViewEmail:
		m.emailView, cmd = m.emailView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	case ViewCompose:
		m.composeView, cmd = m.composeView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("MailoBot", m.mailStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewChat:
		return m.chatView.View()
	case ViewInbox:
		return m.inboxView.View()
	case ViewEmail:
		return m.emailView.View()
	case ViewSettings:
		return m.settingsView.View()
	case ViewCompose:
		return m.composeView.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// mailStatus returns a short string describing the mail account state.
func (m Model) mailStatus() string {
	if m.imapSettings == nil || !m.imapSettings.Configured() {
		return "no mail account"
	}
	if m.authErrorMessage != "" {
		return "mail: auth failed"
	}
	if m.unreadCount > 0 {
		return fmt.Sprintf("%d unread", m.unreadCount)
	}
	return "mail: idle"
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.authErrorMessage != "" && m.currentView == ViewChat {
		return m.authErrorMessage
	}

	switch m.currentView {
	case ViewHelp:
		return "ctrl+h close help | esc back"
	case ViewInbox:
		return "enter open | m mark read | u unread only | / search | esc back"
	case ViewEmail:
		return "r reply | j/k scroll | esc back"
	case ViewSettings:
		return "enter next field | esc cancel"
	case ViewCompose:
		return "enter next field | esc cancel"
	default:
		return "enter send | ctrl+b inbox | ctrl+s settings | ctrl+r check mail | ctrl+h help"
	}
}
