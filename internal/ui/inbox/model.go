package inbox

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailobot/internal/keys"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/store"
	"github.com/nhle/mailobot/internal/theme"
)

// EmailsLoadedMsg is sent when cached emails have been loaded from the
// store.
type EmailsLoadedMsg struct {
	Emails []model.Email
}

// SelectedEmailMsg is sent when the user opens an email.
type SelectedEmailMsg struct {
	MessageID string
}

// MarkedReadMsg is sent after an email is marked read in the store.
type MarkedReadMsg struct {
	MessageID string
}

// Model is the inbox view listing cached emails.
type Model struct {
	list        list.Model
	store       store.Store
	keys        *keys.KeyMap
	filter      store.EmailFilter
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates the inbox view.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	delegate := EmailDelegate{}
	l := list.New([]list.Item{}, delegate, width, height-2)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search emails..."
	si.Prompt = "/ "
	si.Width = width - 4

	folder := "INBOX"

	return Model{
		list:        l,
		store:       s,
		keys:        k,
		filter:      store.EmailFilter{Folder: &folder, Limit: 200},
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Init returns a command that loads the cached emails.
func (m Model) Init() tea.Cmd {
	return m.LoadEmails()
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EmailsLoadedMsg:
		items := make([]list.Item, len(msg.Emails))
		for i, email := range msg.Emails {
			items[i] = EmailItem{Email: email}
		}
		cmd := m.list.SetItems(items)
		return m, cmd

	case MarkedReadMsg:
		return m, m.LoadEmails()

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	// Delegate to list model for other messages
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		query := m.searchInput.Value()
		if query != "" {
			m.filter.Query = &query
		} else {
			m.filter.Query = nil
		}
		return m, m.LoadEmails()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.filter.Query = nil
		return m, m.LoadEmails()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(EmailItem)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedEmailMsg{MessageID: item.Email.MessageID}
		}

	case key.Matches(msg, m.keys.MarkRead):
		item, ok := m.list.SelectedItem().(EmailItem)
		if !ok || item.Email.Read {
			return m, nil
		}
		return m, m.markRead(item.Email.MessageID)

	case msg.String() == "/":
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case msg.String() == "u":
		if m.filter.Unread == nil {
			unread := true
			m.filter.Unread = &unread
		} else {
			m.filter.Unread = nil
		}
		return m, m.LoadEmails()
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// markRead returns a command that marks the email read in the store.
// Marking an already-read email is a no-op at the store level.
func (m Model) markRead(messageID string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		if err := s.MarkEmailRead(context.Background(), messageID); err != nil {
			return EmailsLoadedMsg{}
		}
		return MarkedReadMsg{MessageID: messageID}
	}
}

// View renders the inbox view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when no emails are cached.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.filter.Query != nil || m.filter.Unread != nil {
		return style.Render("No matching emails.\nTry adjusting your filters.")
	}

	return style.Render(
		"No emails yet.\n\n" +
			"Configure your mail account in settings (ctrl+s),\n" +
			"then check mail with ctrl+r.",
	)
}

// LoadEmails returns a tea.Cmd that queries the store with the current
// filter.
func (m Model) LoadEmails() tea.Cmd {
	filter := m.filter
	s := m.store
	return func() tea.Msg {
		emails, err := s.GetEmails(context.Background(), filter)
		if err != nil {
			return EmailsLoadedMsg{Emails: nil}
		}
		return EmailsLoadedMsg{Emails: emails}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
