package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Action
	}{
		{"bare string", `"check_emails"`, CheckEmails{}},
		{"object without params", `{"name": "show_inbox"}`, ShowInbox{}},
		{"settings wire name", `{"name": "settings_dialog"}`, OpenSettings{}},
		{"settings alias", `{"name": "show_settings"}`, OpenSettings{}},
		{"check alias", `"check_email"`, CheckEmails{}},
		{
			"read with email id",
			`{"name": "read_email", "emailId": "m1@example.com"}`,
			ReadEmail{EmailID: "m1@example.com"},
		},
		{"read alias", `{"name": "get_email"}`, ReadEmail{}},
		{
			"search with params",
			`{"name": "search_emails", "sender": "alice", "unread": true}`,
			SearchEmails{Sender: "alice", Unread: true},
		},
		{
			"draft",
			`{"name": "draft_email", "recipient": "bob@example.com", "inReplyTo": "m2"}`,
			DraftEmail{Recipient: "bob@example.com", InReplyTo: "m2"},
		},
		{"reply alias", `{"name": "reply_to_email"}`, DraftEmail{}},
		{
			"mark read with ids",
			`{"name": "mark_emails_read", "messageIds": ["a", "b"]}`,
			MarkEmailsRead{MessageIDs: []string{"a", "b"}},
		},
		{"test connection", `"test_connection"`, TestConnection{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAction(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeActionErrors(t *testing.T) {
	_, err := DecodeAction(json.RawMessage(`{"name": "unknown_thing"}`))
	assert.Error(t, err)

	_, err = DecodeAction(json.RawMessage(`{}`))
	assert.Error(t, err)

	_, err = DecodeAction(json.RawMessage(`42`))
	assert.Error(t, err)
}

func TestEncodeActionRoundTrip(t *testing.T) {
	actions := []Action{
		CheckEmails{},
		ReadEmail{EmailID: "m1@example.com"},
		SearchEmails{Sender: "alice", Subject: "invoice"},
		DraftEmail{Recipient: "bob@example.com", Subject: "hi"},
		MarkEmailsRead{MessageIDs: []string{"m1"}},
	}

	for _, a := range actions {
		raw := EncodeAction(a)
		decoded, err := DecodeAction(raw)
		require.NoError(t, err)
		assert.Equal(t, a, decoded)
	}
}
