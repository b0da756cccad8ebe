package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/store"
	"github.com/nhle/mailobot/tests/testutil"
)

func TestConversationAppendAndGet(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id1, err := s.AppendMessage(ctx, model.ChatMessage{
		Sender:  model.SenderBot,
		Message: model.WelcomeText,
	})
	require.NoError(t, err)
	require.NotZero(t, id1)

	id2, err := s.AppendMessage(ctx, model.ChatMessage{
		Sender:  model.SenderUser,
		Message: "check my email",
		Context: map[string]any{"lastAction": "check_emails"},
	})
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	msgs, err := s.GetConversation(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, model.SenderBot, msgs[0].Sender)
	assert.Equal(t, model.SenderUser, msgs[1].Sender)
	assert.Equal(t, "check my email", msgs[1].Message)
	assert.Equal(t, "check_emails", msgs[1].Context["lastAction"])
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestConversationClear(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.AppendMessage(ctx, model.ChatMessage{
			Sender:  model.SenderUser,
			Message: "hello",
		})
		require.NoError(t, err)
	}

	require.NoError(t, s.ClearConversation(ctx))

	msgs, err := s.GetConversation(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// The welcome message can be re-seeded after a clear.
	_, err = s.AppendMessage(ctx, model.WelcomeMessage())
	require.NoError(t, err)

	msgs, err = s.GetConversation(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.WelcomeText, msgs[0].Message)
}

func testEmail(messageID, subject string) model.Email {
	return model.Email{
		MessageID: messageID,
		From:      "alice@example.com",
		To:        "me@example.com",
		Subject:   subject,
		Body:      "body of " + subject,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Folder:    "INBOX",
	}
}

func TestUpsertEmailsDeduplicates(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	batch := []model.Email{
		testEmail("m1@example.com", "first"),
		testEmail("m2@example.com", "second"),
		testEmail("m3@example.com", "third"),
	}

	newCount, err := s.UpsertEmails(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, newCount)

	// Re-upserting the same batch inserts nothing new.
	newCount, err = s.UpsertEmails(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, newCount)

	emails, err := s.GetEmails(ctx, store.EmailFilter{})
	require.NoError(t, err)
	assert.Len(t, emails, 3)

	// A batch overlapping the cache only counts the unseen message.
	overlap := []model.Email{
		testEmail("m3@example.com", "third"),
		testEmail("m4@example.com", "fourth"),
	}
	newCount, err = s.UpsertEmails(ctx, overlap)
	require.NoError(t, err)
	assert.Equal(t, 1, newCount)

	emails, err = s.GetEmails(ctx, store.EmailFilter{})
	require.NoError(t, err)
	assert.Len(t, emails, 4)
}

func TestUpsertEmailsUpdatesExisting(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	email := testEmail("m1@example.com", "original")
	_, err := s.UpsertEmails(ctx, []model.Email{email})
	require.NoError(t, err)

	email.Subject = "updated"
	email.Read = true
	_, err = s.UpsertEmails(ctx, []model.Email{email})
	require.NoError(t, err)

	got, err := s.GetEmailByMessageID(ctx, "m1@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "updated", got.Subject)
	assert.True(t, got.Read)
}

func TestMarkEmailReadIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertEmails(ctx, []model.Email{
		testEmail("m1@example.com", "unread one"),
		testEmail("m2@example.com", "unread two"),
	})
	require.NoError(t, err)

	count, err := s.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, s.MarkEmailRead(ctx, "m1@example.com"))

	// Repeating the mark leaves the row unchanged.
	require.NoError(t, s.MarkEmailRead(ctx, "m1@example.com"))

	count, err = s.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetEmailByMessageID(ctx, "m1@example.com")
	require.NoError(t, err)
	assert.True(t, got.Read)
}

func TestGetEmailsFilters(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	read := testEmail("m1@example.com", "meeting notes")
	read.Read = true
	unread := testEmail("m2@example.com", "invoice attached")
	unread.From = "billing@example.com"

	_, err := s.UpsertEmails(ctx, []model.Email{read, unread})
	require.NoError(t, err)

	wantUnread := true
	emails, err := s.GetEmails(ctx, store.EmailFilter{Unread: &wantUnread})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "m2@example.com", emails[0].MessageID)

	query := "invoice"
	emails, err = s.GetEmails(ctx, store.EmailFilter{Query: &query})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "invoice attached", emails[0].Subject)

	query = "billing@"
	emails, err = s.GetEmails(ctx, store.EmailFilter{Query: &query})
	require.NoError(t, err)
	assert.Len(t, emails, 1)
}

func TestIMAPSettingsSingleton(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	got, err := s.GetIMAPSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	first := model.IMAPSettings{
		Host:     "imap.example.com",
		Port:     "993",
		Username: "me@example.com",
		Password: "secret",
		TLS:      true,
	}
	require.NoError(t, s.SaveIMAPSettings(ctx, first))

	got, err = s.GetIMAPSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "imap.example.com", got.Host)

	// Saving again replaces the single row instead of adding one.
	second := first
	second.Host = "imap.other.com"
	require.NoError(t, s.SaveIMAPSettings(ctx, second))

	got, err = s.GetIMAPSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "imap.other.com", got.Host)
	assert.True(t, got.Configured())
}

func TestDrafts(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id, err := s.SaveDraft(ctx, model.Draft{
		Recipient: "bob@example.com",
		Subject:   "re: lunch",
		Body:      "sounds good",
		InReplyTo: "m9@example.com",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	drafts, err := s.GetDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "bob@example.com", drafts[0].Recipient)
	assert.Equal(t, "m9@example.com", drafts[0].InReplyTo)

	// Saving with the same id updates in place.
	drafts[0].Body = "actually, let's do tomorrow"
	updatedID, err := s.SaveDraft(ctx, drafts[0])
	require.NoError(t, err)
	assert.Equal(t, id, updatedID)

	drafts, err = s.GetDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "actually, let's do tomorrow", drafts[0].Body)

	require.NoError(t, s.DeleteDraft(ctx, id))

	drafts, err = s.GetDrafts(ctx)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}
