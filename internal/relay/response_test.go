package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlainSegments(t *testing.T) {
	body := []byte(`[
		{"recipient_id": "u1", "text": "Hello!"},
		{"recipient_id": "u1", "text": "You have 3 unread emails."}
	]`)

	reply, err := normalize(body, nil)
	require.NoError(t, err)

	require.Len(t, reply.Messages, 2)
	assert.Equal(t, "Hello!", reply.Messages[0].Text)
	assert.Equal(t, "You have 3 unread emails.", reply.Messages[1].Text)
	assert.Empty(t, reply.Actions)
	assert.NotNil(t, reply.Context)
}

func TestNormalizeWrappedReply(t *testing.T) {
	body := []byte(`{
		"messages": [{"text": "Opening your inbox."}],
		"actions": [{"name": "show_inbox"}],
		"context": {"lastAction": "show_inbox"}
	}`)

	reply, err := normalize(body, map[string]any{"user": "u1"})
	require.NoError(t, err)

	require.Len(t, reply.Messages, 1)
	require.Len(t, reply.Actions, 1)
	assert.IsType(t, ShowInbox{}, reply.Actions[0])

	// The wrapped context merges over the base context.
	assert.Equal(t, "u1", reply.Context["user"])
	assert.Equal(t, "show_inbox", reply.Context["lastAction"])
}

func TestNormalizeCustomPayloadObject(t *testing.T) {
	body := []byte(`[
		{"text": "Checking your mail now."},
		{"custom": {"action": {"name": "check_emails"}, "context": {"pending": true}}}
	]`)

	reply, err := normalize(body, nil)
	require.NoError(t, err)

	require.Len(t, reply.Messages, 1)
	require.Len(t, reply.Actions, 1)
	assert.IsType(t, CheckEmails{}, reply.Actions[0])
	assert.Equal(t, true, reply.Context["pending"])
}

func TestNormalizeCustomPayloadDoubleEncoded(t *testing.T) {
	inner := `{"custom": {"action": {"name": "read_email", "emailId": "m1@example.com"}}}`
	wire, err := json.Marshal([]map[string]any{{"custom": inner}})
	require.NoError(t, err)

	reply, err := normalize(wire, nil)
	require.NoError(t, err)

	require.Len(t, reply.Actions, 1)
	read, ok := reply.Actions[0].(ReadEmail)
	require.True(t, ok)
	assert.Equal(t, "m1@example.com", read.EmailID)
}

func TestNormalizeJSONMessageSkipsRestOfSegment(t *testing.T) {
	body := []byte(`[
		{"json_message": {"action": "show_inbox"}, "image": "http://example.com/x.png"}
	]`)

	reply, err := normalize(body, nil)
	require.NoError(t, err)

	// json_message consumes the whole segment; the image is not emitted.
	require.Len(t, reply.Actions, 1)
	assert.Empty(t, reply.Messages)
}

func TestNormalizeButtonsAttachToPrecedingMessage(t *testing.T) {
	body := []byte(`[
		{"text": "What would you like to do?"},
		{"buttons": [
			{"title": "Show inbox", "payload": "/show_inbox"},
			{"title": "Check mail", "payload": "/check_emails"}
		]}
	]`)

	reply, err := normalize(body, nil)
	require.NoError(t, err)

	require.Len(t, reply.Messages, 1)
	require.Len(t, reply.Messages[0].Buttons, 2)
	assert.Equal(t, "Show inbox", reply.Messages[0].Buttons[0].Title)
}

func TestNormalizeCard(t *testing.T) {
	body := []byte(`[
		{"custom": {"card": {
			"type": "summary",
			"title": "Inbox summary",
			"body": "3 emails, 1 urgent.",
			"fields": {"Unread": "3"}
		}}}
	]`)

	reply, err := normalize(body, nil)
	require.NoError(t, err)

	require.Len(t, reply.Messages, 1)
	card := reply.Messages[0].Card
	require.NotNil(t, card)
	assert.Equal(t, "summary", card.Type)
	assert.Equal(t, "3", card.Fields["Unread"])
}

func TestNormalizeEmptyResponseGetsFallbackText(t *testing.T) {
	reply, err := normalize([]byte(`[]`), nil)
	require.NoError(t, err)

	require.Len(t, reply.Messages, 1)
	assert.Equal(t,
		"I didn't receive a proper response. Please try again.",
		reply.Messages[0].Text,
	)
}

func TestNormalizeUndecodableActionIsSkipped(t *testing.T) {
	body := []byte(`[
		{"text": "Done."},
		{"custom": {"action": {"name": "launch_rockets"}}}
	]`)

	reply, err := normalize(body, nil)
	require.NoError(t, err)

	require.Len(t, reply.Messages, 1)
	assert.Empty(t, reply.Actions)
}

func TestNormalizeInvalidJSON(t *testing.T) {
	_, err := normalize([]byte(`not json`), nil)
	assert.Error(t, err)
}
