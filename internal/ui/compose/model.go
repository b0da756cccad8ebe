package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailobot/internal/keys"
	"github.com/nhle/mailobot/internal/mail"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/store"
	"github.com/nhle/mailobot/internal/theme"
)

// DoneMsg signals the composer should close.
type DoneMsg struct{}

// DraftSavedMsg is sent after the draft is persisted.
type DraftSavedMsg struct {
	Draft model.Draft
	Err   error
}

// DraftSentMsg is sent after a send attempt.
type DraftSentMsg struct {
	Draft model.Draft
	Err   error
}

// Mode represents the current state of the composer.
type Mode int

const (
	ModeEdit    Mode = iota // Editing the draft form
	ModeSending             // Sending via SMTP
	ModeResult              // Showing the outcome
)

// Model is the draft composer: a form pre-filled from a draft_email
// action or a reply target, saved to the drafts table and optionally
// sent over SMTP.
type Model struct {
	mode  Mode
	store store.Store
	smtp  *mail.SMTPSettings

	form *huh.Form

	formRecipient string
	formSubject   string
	formBody      string
	formSend      bool

	inReplyTo string
	draftID   int64

	resultMsg string
	resultErr error
	spinner   spinner.Model

	keys          *keys.KeyMap
	width, height int
}

// New creates a composer pre-filled from the given draft. smtp may be
// nil when sending is not configured; the draft is then only saved.
func New(
	s store.Store,
	smtp *mail.SMTPSettings,
	draft model.Draft,
	k *keys.KeyMap,
	width, height int,
) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		mode:          ModeEdit,
		store:         s,
		smtp:          smtp,
		formRecipient: draft.Recipient,
		formSubject:   draft.Subject,
		formBody:      draft.Body,
		inReplyTo:     draft.InReplyTo,
		draftID:       draft.ID,
		spinner:       sp,
		keys:          k,
		width:         width,
		height:        height,
	}

	m.form = m.buildForm()
	return m
}

// Init returns the initial command for the composer.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// buildForm constructs the draft form bound to the field values.
func (m *Model) buildForm() *huh.Form {
	canSend := m.smtp != nil

	fields := []huh.Field{
		huh.NewInput().
			Title("To").
			Placeholder("recipient@example.com").
			Value(&m.formRecipient).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("recipient is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Subject").
			Value(&m.formSubject),
		huh.NewText().
			Title("Body").
			Value(&m.formBody).
			Lines(8),
	}

	if canSend {
		fields = append(fields, huh.NewConfirm().
			Title("Send now?").
			Description("No sends the draft to saved drafts only").
			Affirmative("Send").
			Negative("Save draft").
			Value(&m.formSend))
	}

	return huh.NewForm(huh.NewGroup(fields...)).WithWidth(m.formWidth())
}

// Update handles messages for the composer.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case DraftSavedMsg:
		if msg.Err != nil {
			m.mode = ModeResult
			m.resultErr = msg.Err
			return m, nil
		}
		if m.formSend && m.smtp != nil {
			m.mode = ModeSending
			return m, tea.Batch(m.spinner.Tick, m.send(msg.Draft))
		}
		m.mode = ModeResult
		m.resultMsg = "Draft saved."
		return m, nil

	case DraftSentMsg:
		m.mode = ModeResult
		if msg.Err != nil {
			m.resultErr = msg.Err
		} else {
			m.resultMsg = "Email sent to " + msg.Draft.Recipient + "."
		}
		return m, nil

	case spinner.TickMsg:
		if m.mode == ModeSending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode == ModeResult {
			switch msg.String() {
			case "enter", "esc":
				return m, func() tea.Msg { return DoneMsg{} }
			}
			return m, nil
		}
		if m.mode == ModeSending {
			return m, nil
		}
	}

	return m.updateForm(msg)
}

// updateForm delegates a message to the form and reacts to completion.
func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.saveDraft()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return DoneMsg{} }
	}

	return m, cmd
}

// draft builds the Draft from the current form values.
func (m Model) draft() model.Draft {
	return model.Draft{
		ID:        m.draftID,
		Recipient: strings.TrimSpace(m.formRecipient),
		Subject:   m.formSubject,
		Body:      m.formBody,
		InReplyTo: m.inReplyTo,
	}
}

// saveDraft returns a command that persists the draft.
func (m Model) saveDraft() tea.Cmd {
	draft := m.draft()
	s := m.store
	return func() tea.Msg {
		id, err := s.SaveDraft(context.Background(), draft)
		if err == nil {
			draft.ID = id
		}
		return DraftSavedMsg{Draft: draft, Err: err}
	}
}

// send returns a command that delivers the draft over SMTP and removes
// it from the drafts table on success.
func (m Model) send(draft model.Draft) tea.Cmd {
	smtp := *m.smtp
	s := m.store
	return func() tea.Msg {
		if err := mail.SendDraft(smtp, draft); err != nil {
			return DraftSentMsg{Draft: draft, Err: err}
		}
		if draft.ID != 0 {
			s.DeleteDraft(context.Background(), draft.ID)
		}
		return DraftSentMsg{Draft: draft}
	}
}

// View renders the composer.
func (m Model) View() string {
	switch m.mode {
	case ModeSending:
		return lipgloss.NewStyle().
			Padding(1, 2).
			Width(m.width).
			Height(m.height).
			Render(m.spinner.View() + " Sending...")

	case ModeResult:
		var content string
		if m.resultErr != nil {
			errStyle := lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorRed)
			content = errStyle.Render("Failed") + "\n\n" +
				m.resultErr.Error()
		} else {
			okStyle := lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorGreen)
			content = okStyle.Render(m.resultMsg)
		}
		content += "\n\n" + theme.HelpStyle.Render("enter/esc close")

		return lipgloss.NewStyle().
			Padding(1, 2).
			Width(m.width).
			Height(m.height).
			Render(content)
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := "Compose"
	if m.inReplyTo != "" {
		title = "Reply"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString(m.form.View())

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(b.String())
}

// SetSize updates the composer dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}
