package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailobot/internal/mail"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/relay"
	"github.com/nhle/mailobot/internal/store"
	composeview "github.com/nhle/mailobot/internal/ui/compose"
	settingsview "github.com/nhle/mailobot/internal/ui/settings"
)

// emailLoadedMsg carries an email loaded for the detail view. A nil
// email means the requested message was not cached.
type emailLoadedMsg struct {
	email *model.Email
}

// searchDoneMsg carries a mailbox search result rendered as a card.
type searchDoneMsg struct {
	card relay.Card
}

// connectionTestedMsg carries the outcome of a test_connection action.
type connectionTestedMsg struct {
	text string
}

// markedAllReadMsg is sent after a mark_emails_read action completes.
type markedAllReadMsg struct{}

// dispatchAction executes one structured action from the backend. The
// returned command carries any follow-up message; view switches happen
// here on the receiver copy, so callers must use the returned model.
func (m *Model) dispatchAction(action relay.Action) tea.Cmd {
	switch a := action.(type) {
	case relay.CheckEmails:
		m.poller.RefreshNow()
		return nil

	case relay.ShowInbox:
		m.previousView = m.currentView
		m.currentView = ViewInbox
		return m.inboxView.LoadEmails()

	case relay.ReadEmail:
		return m.loadEmail(a.EmailID)

	case relay.OpenSettings:
		m.previousView = m.currentView
		m.currentView = ViewSettings
		m.settingsView = settingsview.New(
			m.store, m.imapSettings, m.keys,
			m.layout.ContentWidth(), m.layout.ContentHeight(),
		)
		return m.settingsView.Init()

	case relay.SearchEmails:
		return m.searchEmails(a)

	case relay.DraftEmail:
		m.previousView = m.currentView
		m.currentView = ViewCompose
		m.composeView = composeview.New(
			m.store, m.smtpSettings(), model.Draft{
				Recipient: a.Recipient,
				Subject:   a.Subject,
				Body:      a.Body,
				InReplyTo: a.InReplyTo,
			}, m.keys,
			m.layout.ContentWidth(), m.layout.ContentHeight(),
		)
		return m.composeView.Init()

	case relay.MarkEmailsRead:
		return m.markEmailsRead(a.MessageIDs)

	case relay.TestConnection:
		return m.testConnection()
	}

	return nil
}

// loadEmail returns a command that loads an email from the cache.
// An empty message id loads the most recent one.
func (m Model) loadEmail(messageID string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx := context.Background()

		if messageID == "" {
			emails, err := s.GetEmails(ctx, store.EmailFilter{Limit: 1})
			if err != nil || len(emails) == 0 {
				return emailLoadedMsg{}
			}
			return emailLoadedMsg{email: &emails[0]}
		}

		email, err := s.GetEmailByMessageID(ctx, messageID)
		if err != nil {
			return emailLoadedMsg{}
		}
		return emailLoadedMsg{email: email}
	}
}

// markRead returns a command that marks a cached email read.
func (m Model) markRead(messageID string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		s.MarkEmailRead(context.Background(), messageID)
		return nil
	}
}

// markEmailsRead returns a command that marks the given cached emails
// read; an empty list means every unread email.
func (m Model) markEmailsRead(messageIDs []string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx := context.Background()

		ids := messageIDs
		if len(ids) == 0 {
			unread := true
			emails, err := s.GetEmails(ctx, store.EmailFilter{Unread: &unread})
			if err != nil {
				return markedAllReadMsg{}
			}
			for _, e := range emails {
				ids = append(ids, e.MessageID)
			}
		}

		for _, id := range ids {
			s.MarkEmailRead(ctx, id)
		}
		return markedAllReadMsg{}
	}
}

// searchEmails returns a command that runs a mailbox search and renders
// the result as an analysis card in the chat.
func (m Model) searchEmails(a relay.SearchEmails) tea.Cmd {
	settings := m.imapSettings
	limit := m.cfg.Mail.RecentLimit

	return func() tea.Msg {
		if settings == nil || !settings.Configured() {
			return searchDoneMsg{card: relay.Card{
				Type:  "analysis",
				Title: "Search",
				Body:  "No mail account is configured. Open settings with ctrl+s.",
			}}
		}

		criteria := mail.SearchCriteria{
			Sender:  a.Sender,
			Subject: a.Subject,
			Text:    a.Text,
			Unread:  a.Unread,
			Limit:   limit,
		}
		if a.Since != "" {
			if since, err := time.Parse("2006-01-02", a.Since); err == nil {
				criteria.Since = since
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client := mail.NewClient(*settings)
		emails, err := client.Search(ctx, criteria)
		if err != nil {
			return searchDoneMsg{card: relay.Card{
				Type:  "analysis",
				Title: "Search failed",
				Body:  err.Error(),
			}}
		}

		if len(emails) == 0 {
			return searchDoneMsg{card: relay.Card{
				Type:  "analysis",
				Title: "Search",
				Body:  "No matching emails found.",
			}}
		}

		var lines []string
		for _, e := range emails {
			lines = append(lines, fmt.Sprintf(
				"%s — %s (%s)",
				e.From, e.Subject, e.Timestamp.Format("Jan 02 15:04"),
			))
		}

		return searchDoneMsg{card: relay.Card{
			Type:  "analysis",
			Title: fmt.Sprintf("Search: %d matching emails", len(emails)),
			Body:  strings.Join(lines, "\n"),
		}}
	}
}

// testConnection returns a command that verifies the mail account and
// reports the outcome in the chat.
func (m Model) testConnection() tea.Cmd {
	settings := m.imapSettings

	return func() tea.Msg {
		if settings == nil || !settings.Configured() {
			return connectionTestedMsg{
				text: "No mail account is configured. Open settings with ctrl+s.",
			}
		}

		client := mail.NewClient(*settings)
		status, err := client.TestConnection(context.Background())
		if err != nil {
			return connectionTestedMsg{
				text: "Connection failed: " + err.Error(),
			}
		}

		return connectionTestedMsg{text: fmt.Sprintf(
			"Connected to %s. Mailbox %s has %d unread emails.",
			settings.Host, status.Mailbox, status.UnreadCount,
		)}
	}
}
