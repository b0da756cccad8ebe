package store

import (
	"context"

	"github.com/nhle/mailobot/internal/model"
)

// EmailFilter controls filtering and pagination for cached email queries.
type EmailFilter struct {
	Folder *string
	Unread *bool
	Query  *string // substring match against subject, sender, and body
	Limit  int
	Offset int
}

// Store defines the persistence interface for conversations, cached
// emails, drafts, and mail-account settings.
type Store interface {
	// === Conversation history ===

	AppendMessage(ctx context.Context, msg model.ChatMessage) (int64, error)
	GetConversation(ctx context.Context, limit int) ([]model.ChatMessage, error)
	ClearConversation(ctx context.Context) error

	// === Cached emails ===

	// UpsertEmails inserts or updates a batch of emails keyed by message id
	// and returns how many of them were not cached before.
	UpsertEmails(ctx context.Context, emails []model.Email) (int, error)
	GetEmails(ctx context.Context, filter EmailFilter) ([]model.Email, error)
	GetEmailByMessageID(ctx context.Context, messageID string) (*model.Email, error)
	MarkEmailRead(ctx context.Context, messageID string) error
	UnreadCount(ctx context.Context) (int, error)

	// === Mail-account settings ===

	SaveIMAPSettings(ctx context.Context, s model.IMAPSettings) error
	GetIMAPSettings(ctx context.Context) (*model.IMAPSettings, error)

	// === Drafts ===

	SaveDraft(ctx context.Context, d model.Draft) (int64, error)
	GetDrafts(ctx context.Context) ([]model.Draft, error)
	DeleteDraft(ctx context.Context, id int64) error
}
