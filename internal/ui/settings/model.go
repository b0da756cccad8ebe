package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailobot/internal/credential"
	"github.com/nhle/mailobot/internal/keys"
	"github.com/nhle/mailobot/internal/mail"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/store"
	"github.com/nhle/mailobot/internal/theme"
)

// Mode represents the current state of the settings view.
type Mode int

const (
	ModeForm           Mode = iota // Editing the account form
	ModeValidating                 // Testing connection
	ModeValidateResult             // Showing validation result
)

// DoneMsg signals the settings view should close.
type DoneMsg struct{}

// SavedMsg signals the mail-account settings were persisted. The parent
// rebuilds the mail client from the new settings.
type SavedMsg struct {
	Settings model.IMAPSettings
}

// savedInternalMsg is sent after the settings are persisted.
type savedInternalMsg struct {
	settings model.IMAPSettings
	err      error
}

// ValidateResultMsg carries the result of a connection test.
type ValidateResultMsg struct {
	Status mail.Status
	Err    error
}

// Model is the mail-account settings view built around a huh form.
type Model struct {
	mode  Mode
	store store.Store

	form *huh.Form

	// Form field values (huh binds to these)
	formHost     string
	formPort     string
	formUsername string
	formPassword string
	formTLS      bool

	pendingSave bool
	saved       model.IMAPSettings
	validStatus mail.Status
	validError  error
	spinner     spinner.Model
	statusMsg   string

	keys          *keys.KeyMap
	width, height int
}

// New creates the settings view, pre-filled from the stored account when
// one exists. The password is never pre-filled.
func New(
	s store.Store,
	current *model.IMAPSettings,
	k *keys.KeyMap,
	width, height int,
) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		mode:     ModeForm,
		store:    s,
		spinner:  sp,
		formPort: "993",
		formTLS:  true,
		keys:     k,
		width:    width,
		height:   height,
	}

	if current != nil {
		m.formHost = current.Host
		m.formPort = current.Port
		m.formUsername = current.Username
		m.formTLS = current.TLS
	}

	m.form = m.buildForm()
	return m
}

// Init returns the initial command for the settings view.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case savedInternalMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error saving settings: %v", msg.err)
			m.mode = ModeForm
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		m.saved = msg.settings
		return m, func() tea.Msg { return SavedMsg{Settings: msg.settings} }

	case ValidateResultMsg:
		m.validStatus = msg.Status
		m.validError = msg.Err
		m.mode = ModeValidateResult

		if msg.Err == nil && m.pendingSave {
			m.pendingSave = false
			return m, m.save()
		}
		m.pendingSave = false
		return m, nil

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m.updateForm(msg)
}

// handleKeyMsg processes key messages based on the current mode.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeForm:
		return m.updateForm(msg)

	case ModeValidating:
		// Only allow escape during validation
		if msg.String() == "esc" {
			m.mode = ModeForm
			m.pendingSave = false
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		return m, nil

	case ModeValidateResult:
		switch msg.String() {
		case "enter", "esc":
			if m.validError == nil {
				return m, func() tea.Msg { return DoneMsg{} }
			}
			m.mode = ModeForm
			m.validError = nil
			m.form = m.buildForm()
			return m, m.form.Init()
		}
		return m, nil
	}
	return m, nil
}

// buildForm constructs the account form bound to the field values.
func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.example.com").
				Value(&m.formHost).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("IMAP server port (e.g., 993)").
				Placeholder("993").
				Value(&m.formPort).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Description("Email account username").
				Placeholder("user@example.com").
				Value(&m.formUsername).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Email account password or app password").
				EchoMode(huh.EchoModePassword).
				Value(&m.formPassword).
				Validate(validateRequired("Password")),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Enable TLS encryption for connections").
				Affirmative("Yes").
				Negative("No").
				Value(&m.formTLS),
		),
	).WithWidth(m.formWidth())
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
		m.pendingSave = true
		m.mode = ModeValidating
		return m, tea.Batch(
			m.spinner.Tick,
			m.testConnection(),
		)
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return DoneMsg{} }
	}

	return m, cmd
}

// settings builds the IMAPSettings from the current form values.
func (m Model) settings() model.IMAPSettings {
	return model.IMAPSettings{
		Host:     m.formHost,
		Port:     m.formPort,
		Username: m.formUsername,
		Password: m.formPassword,
		TLS:      m.formTLS,
	}
}

// testConnection returns a command that verifies the account by logging
// in and selecting the inbox.
func (m Model) testConnection() tea.Cmd {
	settings := m.settings()
	return func() tea.Msg {
		client := mail.NewClient(settings)
		status, err := client.TestConnection(context.Background())
		return ValidateResultMsg{Status: status, Err: err}
	}
}

// save returns a command that persists the settings to the store and the
// password to the system keyring.
func (m Model) save() tea.Cmd {
	settings := m.settings()
	s := m.store
	return func() tea.Msg {
		ctx := context.Background()

		// The password lives in the system keyring; the database row only
		// keeps it when no keyring backend is available.
		stored := settings
		if err := credential.Set(
			credential.KeyIMAPPassword, settings.Password,
		); err == nil {
			stored.Password = ""
		}

		err := s.SaveIMAPSettings(ctx, stored)
		return savedInternalMsg{settings: settings, err: err}
	}
}

// View renders the settings view based on the current mode.
func (m Model) View() string {
	switch m.mode {
	case ModeForm:
		return m.viewForm()
	case ModeValidating:
		return m.viewValidating()
	case ModeValidateResult:
		return m.viewValidateResult()
	default:
		return ""
	}
}

func (m Model) viewForm() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Mail Account"))
	b.WriteString("\n\n")
	b.WriteString(m.form.View())

	if m.statusMsg != "" {
		b.WriteString("\n")
		statusStyle := lipgloss.NewStyle().
			Foreground(theme.ColorYellow).
			Italic(true)
		b.WriteString(statusStyle.Render(m.statusMsg))
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(b.String())
}

func (m Model) viewValidating() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	content := fmt.Sprintf(
		"%s Testing connection...\n\nPress esc to cancel.",
		m.spinner.View(),
	)

	return style.Render(content)
}

func (m Model) viewValidateResult() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	var content string
	if m.validError != nil {
		errStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorRed)
		content = errStyle.Render("Connection failed") + "\n\n" +
			m.validError.Error() + "\n\n" +
			lipgloss.NewStyle().Foreground(theme.ColorGray).
				Render("enter/esc back to form")
	} else {
		okStyle := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorGreen)
		content = okStyle.Render("Connection successful") + "\n\n" +
			fmt.Sprintf(
				"Mailbox: %s (%d unread)",
				m.validStatus.Mailbox, m.validStatus.UnreadCount,
			) + "\n\n" +
			lipgloss.NewStyle().Foreground(theme.ColorGray).
				Render("enter/esc close")
	}

	return style.Render(content)
}

// SetSize updates the view dimensions.
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

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("port is required")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	return nil
}
