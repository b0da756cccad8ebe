package model

import "time"

// Sender identifies who produced a chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ChatMessage is a single chat bubble persisted in the conversation history.
type ChatMessage struct {
	// ID is the auto-increment row id assigned by the store.
	ID int64

	// Timestamp is when the message was created.
	Timestamp time.Time

	// Sender is who produced the message.
	Sender Sender

	// Message is the rendered text of the bubble.
	Message string

	// Context is the conversation context snapshot at the time the
	// message was sent, as exchanged with the conversational backend.
	Context map[string]any
}

// WelcomeText is the greeting seeded as the first bubble of every
// conversation. Clearing the chat history re-seeds it.
const WelcomeText = "Hi! I'm MailoBot, your email assistant. " +
	"I can check your inbox, read and search emails, and help you draft " +
	"replies. How can I help you today?"

// WelcomeMessage returns the canonical first message of a conversation.
func WelcomeMessage() ChatMessage {
	return ChatMessage{
		Timestamp: time.Now(),
		Sender:    SenderBot,
		Message:   WelcomeText,
	}
}
