package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailobot/internal/keys"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/relay"
	"github.com/nhle/mailobot/internal/store"
	"github.com/nhle/mailobot/internal/theme"
)

// ReplyMsg carries the backend's normalized reply for a sent message.
// Fallback is set when the reply was generated locally because the
// backend was unreachable. The parent model dispatches Reply.Actions.
type ReplyMsg struct {
	Reply    *relay.Reply
	Fallback bool
}

// Bubble is one rendered entry in the chat transcript.
type Bubble struct {
	Sender  model.Sender
	Content string
	Card    *relay.Card
	IsError bool
}

// Model is the chat view: a transcript viewport over a text input,
// relaying each submitted message to the conversational backend.
type Model struct {
	store        store.Store
	relay        *relay.Client
	input        textarea.Model
	viewport     viewport.Model
	bubbles      []Bubble
	waiting      bool
	confirmClear bool
	convContext  map[string]any
	renderer     *glamour.TermRenderer
	keys         *keys.KeyMap
	width        int
	height       int
}

// New creates the chat view seeded with the persisted conversation
// history. An empty history gets the welcome bubble.
func New(
	s store.Store,
	relayClient *relay.Client,
	history []model.ChatMessage,
	k *keys.KeyMap,
	width, height int,
) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask me about your email..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetWidth(width - 4)
	ta.SetHeight(3)
	ta.CharLimit = 2000
	ta.Focus()

	vpHeight := height - 8 // space for input area + borders
	if vpHeight < 4 {
		vpHeight = 4
	}

	vp := viewport.New(width-4, vpHeight)
	vp.Style = lipgloss.NewStyle()

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(width-8, 100)),
	)
	if err != nil {
		renderer = nil
	}

	bubbles := make([]Bubble, 0, len(history)+1)
	for _, msg := range history {
		bubbles = append(bubbles, Bubble{
			Sender:  msg.Sender,
			Content: msg.Message,
		})
	}
	if len(bubbles) == 0 {
		bubbles = append(bubbles, Bubble{
			Sender:  model.SenderBot,
			Content: model.WelcomeText,
		})
	}

	m := Model{
		store:       s,
		relay:       relayClient,
		input:       ta,
		viewport:    vp,
		bubbles:     bubbles,
		convContext: map[string]any{},
		renderer:    renderer,
		keys:        k,
		width:       width,
		height:      height,
	}
	m.refreshViewport()

	return m
}

// Init returns the initial command for the chat view.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages for the chat view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ReplyMsg:
		return m.handleReply(msg)

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	// Delegate to textarea and viewport
	var cmds []tea.Cmd

	var taCmd tea.Cmd
	m.input, taCmd = m.input.Update(msg)
	if taCmd != nil {
		cmds = append(cmds, taCmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	if vpCmd != nil {
		cmds = append(cmds, vpCmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKeyMsg processes keyboard input for the chat view.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.confirmClear {
		switch msg.String() {
		case "y", "Y":
			m.confirmClear = false
			return m.clearHistory()
		default:
			m.confirmClear = false
			return m, nil
		}
	}

	switch msg.String() {
	case "ctrl+l":
		m.confirmClear = true
		return m, nil

	case "enter":
		if m.waiting {
			return m, nil
		}

		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}

		m.input.Reset()
		m.bubbles = append(m.bubbles, Bubble{
			Sender:  model.SenderUser,
			Content: text,
		})
		m.waiting = true
		m.refreshViewport()

		return m, m.sendMessage(text)
	}

	// Let textarea handle other keys
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sendMessage returns a command that persists the user's message,
// relays it to the backend, and delivers the reply. An unreachable
// backend yields a single locally generated fallback bubble.
func (m Model) sendMessage(text string) tea.Cmd {
	s := m.store
	client := m.relay
	convContext := m.convContext

	return func() tea.Msg {
		ctx := context.Background()

		s.AppendMessage(ctx, model.ChatMessage{
			Sender:  model.SenderUser,
			Message: text,
		})

		reqCtx, cancel := context.WithTimeout(ctx, client.Timeout())
		defer cancel()

		reply, err := client.SendMessage(reqCtx, text, convContext)
		if err != nil {
			return ReplyMsg{
				Reply:    relay.FallbackReply(err, convContext),
				Fallback: true,
			}
		}
		return ReplyMsg{Reply: reply}
	}
}

// handleReply appends the reply's bubbles to the transcript and persists
// the bot side of the exchange.
func (m Model) handleReply(msg ReplyMsg) (Model, tea.Cmd) {
	m.waiting = false

	if msg.Reply == nil {
		return m, nil
	}

	if msg.Reply.Context != nil {
		m.convContext = msg.Reply.Context
	}

	var persisted []model.ChatMessage
	for _, seg := range msg.Reply.Messages {
		if seg.Card != nil {
			card := seg.Card
			m.bubbles = append(m.bubbles, Bubble{
				Sender: model.SenderBot,
				Card:   card,
			})
			persisted = append(persisted, model.ChatMessage{
				Sender:  model.SenderBot,
				Message: card.Title + "\n" + card.Body,
			})
			continue
		}

		content := seg.Text
		if content == "" && seg.ImageURL != "" {
			content = seg.ImageURL
		}
		for _, btn := range seg.Buttons {
			content += "\n  [" + btn.Title + "]"
		}

		m.bubbles = append(m.bubbles, Bubble{
			Sender:  model.SenderBot,
			Content: content,
			IsError: msg.Fallback,
		})
		persisted = append(persisted, model.ChatMessage{
			Sender:  model.SenderBot,
			Message: content,
		})
	}

	m.refreshViewport()

	return m, m.persistMessages(persisted)
}

// persistMessages returns a command that appends bot messages to the
// conversation history.
func (m Model) persistMessages(msgs []model.ChatMessage) tea.Cmd {
	if len(msgs) == 0 {
		return nil
	}

	s := m.store
	return func() tea.Msg {
		ctx := context.Background()
		for _, msg := range msgs {
			s.AppendMessage(ctx, msg)
		}
		return nil
	}
}

// clearHistory wipes the persisted conversation and resets the
// transcript to the welcome bubble.
func (m Model) clearHistory() (Model, tea.Cmd) {
	m.bubbles = []Bubble{{
		Sender:  model.SenderBot,
		Content: model.WelcomeText,
	}}
	m.waiting = false
	m.refreshViewport()

	s := m.store
	return m, func() tea.Msg {
		ctx := context.Background()
		s.ClearConversation(ctx)
		s.AppendMessage(ctx, model.WelcomeMessage())
		return nil
	}
}

// AddBotBubble appends a locally generated bot message, such as a
// new-mail notification, and persists it.
func (m *Model) AddBotBubble(text string) tea.Cmd {
	m.bubbles = append(m.bubbles, Bubble{
		Sender:  model.SenderBot,
		Content: text,
	})
	m.refreshViewport()

	return m.persistMessages([]model.ChatMessage{{
		Sender:  model.SenderBot,
		Message: text,
	}})
}

// AddCard appends a structured card to the transcript.
func (m *Model) AddCard(card relay.Card) tea.Cmd {
	m.bubbles = append(m.bubbles, Bubble{
		Sender: model.SenderBot,
		Card:   &card,
	})
	m.refreshViewport()

	return m.persistMessages([]model.ChatMessage{{
		Sender:  model.SenderBot,
		Message: card.Title + "\n" + card.Body,
	}})
}

// Waiting reports whether a relayed message is still in flight.
func (m Model) Waiting() bool {
	return m.waiting
}

// Bubbles returns the current transcript.
func (m Model) Bubbles() []Bubble {
	return m.bubbles
}

// refreshViewport re-renders the transcript and scrolls to the bottom.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// renderMarkdown renders bot text as markdown, falling back to plain
// text when the renderer is unavailable.
func (m Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}

	rendered, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// renderTranscript builds the conversation display string.
func (m Model) renderTranscript() string {
	var sections []string

	contentStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	for _, b := range m.bubbles {
		if b.Card != nil {
			sections = append(sections, renderCard(*b.Card, m.width-8))
			sections = append(sections, "")
			continue
		}

		switch {
		case b.Sender == model.SenderUser:
			sections = append(sections, theme.UserBubbleStyle.Render("You:"))
			sections = append(sections, contentStyle.Render(b.Content))
		case b.IsError:
			sections = append(sections, theme.BotBubbleStyle.Render("MailoBot:"))
			sections = append(sections, theme.ErrorBubbleStyle.Render(b.Content))
		default:
			sections = append(sections, theme.BotBubbleStyle.Render("MailoBot:"))
			sections = append(sections, m.renderMarkdown(b.Content))
		}
		sections = append(sections, "")
	}

	if m.waiting {
		thinkingStyle := lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true)
		sections = append(sections, thinkingStyle.Render("..."))
	}

	return strings.Join(sections, "\n")
}

// View renders the chat view.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("MailoBot")
	if m.confirmClear {
		title = titleStyle.Render("Clear conversation history? (y/n)")
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(
		strings.Repeat("─", min(m.width-6, 80)),
	)

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		m.viewport.View(),
		separator,
		m.input.View(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the chat view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(width - 4)

	vpHeight := height - 8
	if vpHeight < 4 {
		vpHeight = 4
	}
	m.viewport.Width = width - 4
	m.viewport.Height = vpHeight
	m.refreshViewport()
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
