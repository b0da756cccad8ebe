package relay

import (
	"encoding/json"
	"fmt"
)

// Action is a structured instruction returned by the conversational
// backend alongside text, naming a UI or data operation to perform. The
// concrete types below form a closed union; they travel through the
// Bubble Tea message loop rather than a string-keyed event bus.
type Action interface {
	// ActionName returns the wire name of the action.
	ActionName() string
}

// CheckEmails asks the client to poll the mail account now.
type CheckEmails struct{}

func (CheckEmails) ActionName() string { return "check_emails" }

// ReadEmail asks the client to open a specific email. EmailID is the
// message id of the email to read; empty means the most recent one.
type ReadEmail struct {
	EmailID string `json:"emailId,omitempty"`
}

func (ReadEmail) ActionName() string { return "read_email" }

// ShowInbox asks the client to open the inbox view.
type ShowInbox struct{}

func (ShowInbox) ActionName() string { return "show_inbox" }

// OpenSettings asks the client to open the mail-account settings dialog.
type OpenSettings struct{}

func (OpenSettings) ActionName() string { return "settings_dialog" }

// SearchEmails asks the client to run a mailbox search.
type SearchEmails struct {
	Sender  string `json:"sender,omitempty"`
	Subject string `json:"subject,omitempty"`
	Since   string `json:"since,omitempty"`
	Text    string `json:"text,omitempty"`
	Unread  bool   `json:"unread,omitempty"`
}

func (SearchEmails) ActionName() string { return "search_emails" }

// DraftEmail asks the client to open the draft composer.
type DraftEmail struct {
	Recipient string `json:"recipient,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"body,omitempty"`
	InReplyTo string `json:"inReplyTo,omitempty"`
}

func (DraftEmail) ActionName() string { return "draft_email" }

// MarkEmailsRead asks the client to mark emails as read. Empty MessageIDs
// means all cached unread emails.
type MarkEmailsRead struct {
	MessageIDs []string `json:"messageIds,omitempty"`
}

func (MarkEmailsRead) ActionName() string { return "mark_emails_read" }

// TestConnection asks the client to verify the configured mail account.
type TestConnection struct{}

func (TestConnection) ActionName() string { return "test_connection" }

// wireAction is the JSON shape of an action payload: a name plus the
// union of all per-action parameters.
type wireAction struct {
	Name string `json:"name"`

	EmailID    string   `json:"emailId,omitempty"`
	Sender     string   `json:"sender,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Since      string   `json:"since,omitempty"`
	Text       string   `json:"text,omitempty"`
	Unread     bool     `json:"unread,omitempty"`
	Recipient  string   `json:"recipient,omitempty"`
	Body       string   `json:"body,omitempty"`
	InReplyTo  string   `json:"inReplyTo,omitempty"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// DecodeAction converts a raw action payload into its typed form. The
// payload is either a bare string naming the action or an object with a
// "name" field and action-specific parameters.
func DecodeAction(raw json.RawMessage) (Action, error) {
	var wa wireAction

	if firstNonSpace(raw) == '"' {
		if err := json.Unmarshal(raw, &wa.Name); err != nil {
			return nil, fmt.Errorf("decoding action name: %w", err)
		}
	} else if err := json.Unmarshal(raw, &wa); err != nil {
		return nil, fmt.Errorf("decoding action payload: %w", err)
	}

	switch wa.Name {
	case "check_emails", "check_email":
		return CheckEmails{}, nil
	case "read_email", "get_email":
		return ReadEmail{EmailID: wa.EmailID}, nil
	case "show_inbox":
		return ShowInbox{}, nil
	case "settings_dialog", "show_settings":
		return OpenSettings{}, nil
	case "search_emails":
		return SearchEmails{
			Sender:  wa.Sender,
			Subject: wa.Subject,
			Since:   wa.Since,
			Text:    wa.Text,
			Unread:  wa.Unread,
		}, nil
	case "draft_email", "reply_to_email":
		return DraftEmail{
			Recipient: wa.Recipient,
			Subject:   wa.Subject,
			Body:      wa.Body,
			InReplyTo: wa.InReplyTo,
		}, nil
	case "mark_emails_read":
		return MarkEmailsRead{MessageIDs: wa.MessageIDs}, nil
	case "test_connection":
		return TestConnection{}, nil
	case "":
		return nil, fmt.Errorf("action payload has no name")
	default:
		return nil, fmt.Errorf("unknown action %q", wa.Name)
	}
}

// EncodeAction converts a typed action back to its wire form, used by the
// gateway when emitting the normalized {messages, actions, context} shape.
func EncodeAction(a Action) json.RawMessage {
	wa := wireAction{Name: a.ActionName()}

	switch v := a.(type) {
	case ReadEmail:
		wa.EmailID = v.EmailID
	case SearchEmails:
		wa.Sender = v.Sender
		wa.Subject = v.Subject
		wa.Since = v.Since
		wa.Text = v.Text
		wa.Unread = v.Unread
	case DraftEmail:
		wa.Recipient = v.Recipient
		wa.Subject = v.Subject
		wa.Body = v.Body
		wa.InReplyTo = v.InReplyTo
	case MarkEmailsRead:
		wa.MessageIDs = v.MessageIDs
	}

	raw, err := json.Marshal(wa)
	if err != nil {
		// wireAction contains only marshalable fields.
		panic(err)
	}
	return raw
}
