package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailobot/internal/credential"
	"github.com/nhle/mailobot/internal/keys"
	"github.com/nhle/mailobot/internal/mail"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/tests/testutil"
)

func newTestSettings(t *testing.T, current *model.IMAPSettings) Model {
	t.Helper()
	return New(testutil.NewTestStore(t), current, keys.DefaultKeyMap(), 80, 24)
}

func TestNewPrefillsAccountWithoutPassword(t *testing.T) {
	m := newTestSettings(t, &model.IMAPSettings{
		Host:     "imap.example.com",
		Port:     "143",
		Username: "me@example.com",
		Password: "secret",
		TLS:      false,
	})

	assert.Equal(t, "imap.example.com", m.formHost)
	assert.Equal(t, "143", m.formPort)
	assert.Equal(t, "me@example.com", m.formUsername)
	assert.False(t, m.formTLS)
	assert.Empty(t, m.formPassword)
}

func TestConnectionTestSurfacesDialError(t *testing.T) {
	m := newTestSettings(t, nil)
	m.formHost = "127.0.0.1"
	m.formPort = "1" // nothing listens here
	m.formUsername = "me@example.com"
	m.formPassword = "secret"
	m.formTLS = true

	msg, ok := m.testConnection()().(ValidateResultMsg)
	require.True(t, ok)
	require.Error(t, msg.Err)
	assert.False(t, msg.Status.Connected)
	assert.NotEmpty(t, msg.Status.Error)
}

func TestValidationFailureDoesNotSave(t *testing.T) {
	m := newTestSettings(t, nil)
	m.pendingSave = true

	m, cmd := m.Update(ValidateResultMsg{Err: errors.New("login refused")})

	assert.Nil(t, cmd)
	assert.Equal(t, ModeValidateResult, m.mode)
	assert.False(t, m.pendingSave)
}

func TestValidationSuccessSavesKeyringFirst(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // keep the file keyring out of the real home

	s := testutil.NewTestStore(t)
	m := New(s, nil, keys.DefaultKeyMap(), 80, 24)
	m.formHost = "imap.example.com"
	m.formPort = "993"
	m.formUsername = "me@example.com"
	m.formPassword = "secret"
	m.formTLS = true
	m.pendingSave = true

	m, cmd := m.Update(ValidateResultMsg{
		Status: mail.Status{Connected: true, Mailbox: "INBOX", UnreadCount: 2},
	})
	require.NotNil(t, cmd)

	m, cmd = m.Update(cmd())
	require.NotNil(t, cmd)

	// The parent gets settings with a usable password.
	saved, ok := cmd().(SavedMsg)
	require.True(t, ok)
	assert.Equal(t, "secret", saved.Settings.Password)

	// The database row keeps everything but the password.
	row, err := s.GetIMAPSettings(context.Background())
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "imap.example.com", row.Host)
	assert.Empty(t, row.Password)

	// The keyring holds the password.
	pw, err := credential.Get(credential.KeyIMAPPassword)
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)
}

func TestSaveErrorReturnsToForm(t *testing.T) {
	m := newTestSettings(t, nil)

	m, cmd := m.Update(savedInternalMsg{err: errors.New("disk full")})

	assert.Nil(t, cmd)
	assert.Equal(t, ModeForm, m.mode)
	assert.Contains(t, m.statusMsg, "Error saving settings")
}
