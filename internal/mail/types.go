package mail

import (
	"context"
	"time"

	"github.com/nhle/mailobot/internal/model"
)

// CheckResult is what one mail check returns: the most recent messages
// normalized to the local schema, plus the server-side unread count.
type CheckResult struct {
	Emails      []model.Email
	UnreadCount int
}

// Checker is the mail-check contract the poller depends on.
type Checker interface {
	CheckMail(ctx context.Context, limit int) (*CheckResult, error)
}

// SearchCriteria selects messages for a mailbox search. Zero-valued
// fields are ignored.
type SearchCriteria struct {
	Sender  string
	Subject string
	Since   time.Time
	Text    string
	Unread  bool
	Limit   int
}

// Status describes the outcome of a connection test.
type Status struct {
	Connected   bool   `json:"connected"`
	Mailbox     string `json:"mailbox,omitempty"`
	UnreadCount int    `json:"unread_count"`
	Error       string `json:"error,omitempty"`
}

// SMTPSettings holds the SMTP server settings for sending drafts.
type SMTPSettings struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}
