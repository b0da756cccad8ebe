package mail_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailobot/internal/mail"
	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/tests/testutil"
)

// fakeChecker returns canned results, one per call.
type fakeChecker struct {
	mu      sync.Mutex
	results []checkOutcome
	calls   int
}

type checkOutcome struct {
	result *mail.CheckResult
	err    error
}

func (f *fakeChecker) CheckMail(
	_ context.Context, _ int,
) (*mail.CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].result, f.results[i].err
}

func pollEmail(messageID, subject string) model.Email {
	return model.Email{
		MessageID: messageID,
		From:      "alice@example.com",
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Folder:    "INBOX",
	}
}

func TestPollerStoresAndCountsNewEmails(t *testing.T) {
	s := testutil.NewTestStore(t)

	checker := &fakeChecker{results: []checkOutcome{
		{result: &mail.CheckResult{
			Emails: []model.Email{
				pollEmail("m1@example.com", "one"),
				pollEmail("m2@example.com", "two"),
			},
			UnreadCount: 2,
		}},
	}}

	p := mail.NewPoller(s, checker, time.Hour, 5)
	cmd := p.Start()
	defer p.Stop()

	msg, ok := cmd().(mail.MailCheckedMsg)
	require.True(t, ok)
	require.NoError(t, msg.Err)
	assert.Equal(t, 2, msg.NewCount)
	assert.Equal(t, 2, msg.UnreadCount)

	count, err := s.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPollerDeduplicatesAcrossChecks(t *testing.T) {
	s := testutil.NewTestStore(t)

	firstBatch := []model.Email{
		pollEmail("m1@example.com", "one"),
		pollEmail("m2@example.com", "two"),
	}
	secondBatch := []model.Email{
		pollEmail("m2@example.com", "two"),
		pollEmail("m3@example.com", "three"),
	}

	checker := &fakeChecker{results: []checkOutcome{
		{result: &mail.CheckResult{Emails: firstBatch, UnreadCount: 2}},
		{result: &mail.CheckResult{Emails: secondBatch, UnreadCount: 3}},
	}}

	p := mail.NewPoller(s, checker, time.Hour, 5)
	cmd := p.Start()
	defer p.Stop()

	msg := cmd().(mail.MailCheckedMsg)
	require.NoError(t, msg.Err)
	assert.Equal(t, 2, msg.NewCount)

	// A second check overlapping the cache only counts the unseen email.
	p.RefreshNow()
	msg = p.WaitForNextResult()().(mail.MailCheckedMsg)
	require.NoError(t, msg.Err)
	assert.Equal(t, 1, msg.NewCount)
	assert.Equal(t, 3, msg.UnreadCount)
}

func TestPollerSurfacesCheckError(t *testing.T) {
	s := testutil.NewTestStore(t)

	checkErr := errors.New("dial tcp: connection refused")
	checker := &fakeChecker{results: []checkOutcome{
		{err: checkErr},
	}}

	p := mail.NewPoller(s, checker, time.Hour, 5)
	cmd := p.Start()
	defer p.Stop()

	msg := cmd().(mail.MailCheckedMsg)
	require.Error(t, msg.Err)
	assert.False(t, msg.AuthFailed)
	assert.Zero(t, msg.NewCount)
}

func TestPollerRestartsAfterStop(t *testing.T) {
	s := testutil.NewTestStore(t)

	checker := &fakeChecker{results: []checkOutcome{
		{result: &mail.CheckResult{
			Emails:      []model.Email{pollEmail("m1@example.com", "one")},
			UnreadCount: 1,
		}},
	}}

	p := mail.NewPoller(s, checker, time.Hour, 5)

	msg := p.Start()().(mail.MailCheckedMsg)
	require.NoError(t, msg.Err)
	p.Stop()

	// A stopped poller can be started again and keeps delivering results.
	cmd := p.Start()
	defer p.Stop()

	msg, ok := cmd().(mail.MailCheckedMsg)
	require.True(t, ok)
	require.NoError(t, msg.Err)
	assert.Equal(t, 1, msg.UnreadCount)
}

func TestPollerFlagsAuthFailure(t *testing.T) {
	s := testutil.NewTestStore(t)

	checker := &fakeChecker{results: []checkOutcome{
		{err: &mail.AuthError{
			Username: "me@example.com",
			Message:  "LOGIN failed",
		}},
	}}

	p := mail.NewPoller(s, checker, time.Hour, 5)
	cmd := p.Start()
	defer p.Stop()

	msg := cmd().(mail.MailCheckedMsg)
	require.Error(t, msg.Err)
	assert.True(t, msg.AuthFailed)
}
