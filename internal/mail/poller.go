package mail

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/store"
)

// MailCheckedMsg is a tea.Msg sent when a background mail check
// completes. NewCount is how many of the returned emails were not cached
// before (deduplicated by message id).
type MailCheckedMsg struct {
	Emails      []model.Email
	NewCount    int
	UnreadCount int
	Err         error
	AuthFailed  bool
}

// checkTimeout is the maximum time allowed for a single mail check.
const checkTimeout = 30 * time.Second

// Poller asks the mail backend for new messages on a fixed interval,
// caches them through the store's deduplicating upsert, and bridges the
// results into the Bubble Tea runtime.
type Poller struct {
	store    store.Store
	checker  Checker
	interval time.Duration
	limit    int

	resultCh  chan MailCheckedMsg
	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      sync.Mutex
	running bool
}

// NewPoller creates a poller that checks mail every interval, retrieving
// up to limit recent messages per check.
func NewPoller(
	s store.Store,
	checker Checker,
	interval time.Duration,
	limit int,
) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if limit <= 0 {
		limit = 5
	}

	return &Poller{
		store:     s,
		checker:   checker,
		interval:  interval,
		limit:     limit,
		resultCh:  make(chan MailCheckedMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// SetChecker swaps the mail backend, used after the account settings
// change.
func (p *Poller) SetChecker(checker Checker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checker = checker
}

// Start launches the polling goroutine and returns a subscription
// command that delivers MailCheckedMsg messages to the UI. Calling Start
// on a running poller only renews the subscription.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return p.waitForResult()
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	go p.loop(stopCh)

	return p.waitForResult()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// RefreshNow triggers an immediate mail check.
func (p *Poller) RefreshNow() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A trigger is already pending.
	}
}

// loop runs the fixed-interval polling cycle with an immediate first
// check. stopCh is captured per run so a restart does not race the
// previous goroutine's shutdown.
func (p *Poller) loop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.checkAndStore()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.checkAndStore()
		case <-p.triggerCh:
			p.checkAndStore()
		}
	}
}

// checkAndStore performs a single mail check, upserts the results into
// the store, and sends a MailCheckedMsg on the result channel. Errors
// surface once per check; there are no retries.
func (p *Poller) checkAndStore() {
	p.mu.Lock()
	checker := p.checker
	p.mu.Unlock()

	if checker == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	result, err := checker.CheckMail(ctx, p.limit)
	if err != nil {
		p.sendResult(MailCheckedMsg{
			Err:        err,
			AuthFailed: IsAuthError(err),
		})
		return
	}

	newCount := 0
	if len(result.Emails) > 0 {
		newCount, err = p.store.UpsertEmails(ctx, result.Emails)
		if err != nil {
			p.sendResult(MailCheckedMsg{Err: err})
			return
		}
	}

	p.sendResult(MailCheckedMsg{
		Emails:      result.Emails,
		NewCount:    newCount,
		UnreadCount: result.UnreadCount,
	})
}

// sendResult sends a MailCheckedMsg on the result channel without
// blocking the polling goroutine.
func (p *Poller) sendResult(msg MailCheckedMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if the UI is not draining results.
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next mail-check
// result. This should be called after processing a MailCheckedMsg to
// continue listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
