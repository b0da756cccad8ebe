package model

import "time"

// Email is a cached mail message in the local store. MessageID is the
// RFC 5322 Message-ID header and is unique: re-checking the same message
// updates the cached row instead of duplicating it.
type Email struct {
	// ID is the auto-increment row id assigned by the store.
	ID int64

	// MessageID is the globally unique message identifier.
	MessageID string

	// From is the display name or address of the sender.
	From string

	// To holds the recipient addresses, comma-joined.
	To string

	// Subject is the message subject line.
	Subject string

	// Body is the plain-text body (HTML stripped when no text part exists).
	Body string

	// Timestamp is the message date.
	Timestamp time.Time

	// Read reports whether the message carries the \Seen flag.
	Read bool

	// Folder is the mailbox folder the message was fetched from.
	Folder string

	// Attachments holds attachment metadata; content is never cached.
	Attachments []Attachment

	// UID is the IMAP UID within Folder, used for server-side operations.
	UID uint32
}

// Attachment holds metadata about a message attachment.
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// IMAPSettings holds the mail-account connection parameters. A single
// settings row (id=1) exists in the store; the password column stays empty
// when the system keyring holds the credential.
type IMAPSettings struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	TLS      bool   `json:"tls"`
}

// Addr returns the host:port dial address.
func (s IMAPSettings) Addr() string {
	return s.Host + ":" + s.Port
}

// Configured reports whether enough fields are set to attempt a connection.
func (s IMAPSettings) Configured() bool {
	return s.Host != "" && s.Username != ""
}

// Draft is a locally saved email draft.
type Draft struct {
	ID        int64
	Recipient string
	Subject   string
	Body      string

	// InReplyTo is the Message-ID of the message being replied to,
	// empty for a fresh draft.
	InReplyTo string

	CreatedAt time.Time
	UpdatedAt time.Time
}
