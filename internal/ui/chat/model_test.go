package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailobot/internal/keys"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/relay"
	"github.com/nhle/mailobot/tests/testutil"
)

// newTestChat builds a chat view whose relay client points at a closed
// server, so every send resolves to the connection fallback.
func newTestChat(t *testing.T) Model {
	t.Helper()

	s := testutil.NewTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {},
	))
	url := srv.URL
	srv.Close()

	client := relay.New(url, time.Second)
	return New(s, client, nil, keys.DefaultKeyMap(), 80, 24)
}

func typeText(m Model, text string) Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func pressEnter(m Model) (Model, tea.Cmd) {
	return m.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestEmptyHistoryShowsWelcome(t *testing.T) {
	m := newTestChat(t)

	bubbles := m.Bubbles()
	require.Len(t, bubbles, 1)
	assert.Equal(t, model.SenderBot, bubbles[0].Sender)
	assert.Equal(t, model.WelcomeText, bubbles[0].Content)
}

func TestSubmitAppendsExactlyOneUserBubble(t *testing.T) {
	m := newTestChat(t)
	m = typeText(m, "check my email")

	m, cmd := pressEnter(m)

	// The user bubble appears before the network command resolves.
	require.NotNil(t, cmd)
	assert.True(t, m.Waiting())

	userBubbles := 0
	for _, b := range m.Bubbles() {
		if b.Sender == model.SenderUser {
			userBubbles++
		}
	}
	assert.Equal(t, 1, userBubbles)
	assert.Equal(t, "check my email", m.Bubbles()[1].Content)
}

func TestSubmitEmptyInputIsNoop(t *testing.T) {
	m := newTestChat(t)
	m = typeText(m, "   ")

	m, cmd := pressEnter(m)

	assert.Nil(t, cmd)
	assert.False(t, m.Waiting())
	assert.Len(t, m.Bubbles(), 1)
}

func TestUnreachableBackendYieldsFallbackBubble(t *testing.T) {
	m := newTestChat(t)
	m = typeText(m, "hello")

	m, cmd := pressEnter(m)
	require.NotNil(t, cmd)

	msg, ok := cmd().(ReplyMsg)
	require.True(t, ok)
	assert.True(t, msg.Fallback)

	m, _ = m.Update(msg)

	assert.False(t, m.Waiting())

	bubbles := m.Bubbles()
	last := bubbles[len(bubbles)-1]
	assert.Equal(t, model.SenderBot, last.Sender)
	assert.True(t, last.IsError)
	assert.Contains(t, last.Content,
		"I'm having trouble connecting to my backend services")
}

func TestSubmitBlockedWhileWaiting(t *testing.T) {
	m := newTestChat(t)
	m = typeText(m, "first")
	m, _ = pressEnter(m)
	require.True(t, m.Waiting())

	m = typeText(m, "second")
	m, cmd := pressEnter(m)

	assert.Nil(t, cmd)

	userBubbles := 0
	for _, b := range m.Bubbles() {
		if b.Sender == model.SenderUser {
			userBubbles++
		}
	}
	assert.Equal(t, 1, userBubbles)
}

func TestReplyWithCardRendersCardBubble(t *testing.T) {
	m := newTestChat(t)

	m, _ = m.Update(ReplyMsg{Reply: &relay.Reply{
		Messages: []relay.Segment{
			{Card: &relay.Card{
				Type:  "summary",
				Title: "Inbox summary",
				Body:  "3 emails, 1 urgent.",
			}},
		},
	}})

	bubbles := m.Bubbles()
	last := bubbles[len(bubbles)-1]
	require.NotNil(t, last.Card)
	assert.Equal(t, "summary", last.Card.Type)
}

func TestClearHistoryKeepsWelcome(t *testing.T) {
	m := newTestChat(t)

	// Seed a short exchange.
	m = typeText(m, "hello")
	m, cmd := pressEnter(m)
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd().(ReplyMsg))
	require.Greater(t, len(m.Bubbles()), 1)

	// ctrl+l asks for confirmation, y confirms.
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	m, clearCmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	require.NotNil(t, clearCmd)
	clearCmd()

	bubbles := m.Bubbles()
	require.Len(t, bubbles, 1)
	assert.Equal(t, model.WelcomeText, bubbles[0].Content)

	// The persisted history also resets to the welcome message.
	msgs, err := m.store.GetConversation(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.WelcomeText, msgs[0].Message)
}

func TestClearHistoryDeclined(t *testing.T) {
	m := newTestChat(t)
	m = typeText(m, "keep me")
	m, cmd := pressEnter(m)
	require.NotNil(t, cmd)
	m, _ = m.Update(cmd().(ReplyMsg))
	before := len(m.Bubbles())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})

	assert.Len(t, m.Bubbles(), before)
}
