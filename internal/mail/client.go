package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomail "github.com/emersion/go-message/mail"

	"github.com/nhle/mailobot/internal/model"
)

// AuthError indicates that authentication failed for the mail account.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Client wraps go-imap v2 for connecting to and querying the configured
// mail account. Each operation opens its own short-lived connection.
type Client struct {
	settings model.IMAPSettings
	folder   string
}

// NewClient creates an IMAP client for the given account settings.
func NewClient(settings model.IMAPSettings) *Client {
	return &Client{
		settings: settings,
		folder:   "INBOX",
	}
}

// connect establishes a connection to the IMAP server, authenticates,
// and selects the working folder. The caller is responsible for calling
// Logout on the returned client.
func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.settings.Addr()

	var client *imapclient.Client
	var err error

	if c.settings.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.settings.Username, c.settings.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Username: c.settings.Username,
			Message:  fmt.Sprintf("authentication failed: %v", err),
		}
	}

	if _, err := client.Select(c.folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", c.folder, err)
	}

	return client, nil
}

// TestConnection verifies credentials by connecting, authenticating, and
// selecting the inbox. The returned Status mirrors the test_connection
// action contract; the error carries the same failure for callers that
// branch on it.
func (c *Client) TestConnection(ctx context.Context) (Status, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return Status{Error: err.Error()}, err
	}
	defer func() { _ = client.Logout().Wait() }()

	unread, err := c.unreadCount(client)
	if err != nil {
		return Status{Connected: true, Mailbox: c.folder, Error: err.Error()}, err
	}

	return Status{Connected: true, Mailbox: c.folder, UnreadCount: unread}, nil
}

// CheckMail retrieves the limit most recent messages with their full
// bodies and the unread count for the inbox.
func (c *Client) CheckMail(
	ctx context.Context,
	limit int,
) (*CheckResult, error) {
	if limit <= 0 {
		limit = 5
	}

	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	unread, err := c.unreadCount(client)
	if err != nil {
		return nil, err
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	emails, err := c.fetchFull(client, uids)
	if err != nil {
		return nil, err
	}

	// Most recent first.
	for i, j := 0, len(emails)-1; i < j; i, j = i+1, j-1 {
		emails[i], emails[j] = emails[j], emails[i]
	}

	return &CheckResult{Emails: emails, UnreadCount: unread}, nil
}

// Search finds messages matching the criteria and returns them with
// their full bodies, most recent first.
func (c *Client) Search(
	ctx context.Context,
	criteria SearchCriteria,
) ([]model.Email, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	search := &imap.SearchCriteria{}
	if criteria.Sender != "" {
		search.Header = append(search.Header, imap.SearchCriteriaHeaderField{
			Key: "From", Value: criteria.Sender,
		})
	}
	if criteria.Subject != "" {
		search.Header = append(search.Header, imap.SearchCriteriaHeaderField{
			Key: "Subject", Value: criteria.Subject,
		})
	}
	if !criteria.Since.IsZero() {
		search.Since = criteria.Since
	}
	if criteria.Text != "" {
		search.Text = []string{criteria.Text}
	}
	if criteria.Unread {
		search.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	searchData, err := client.UIDSearch(search, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	limit := criteria.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	emails, err := c.fetchFull(client, uids)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(emails)-1; i < j; i, j = i+1, j-1 {
		emails[i], emails[j] = emails[j], emails[i]
	}
	return emails, nil
}

// GetEmail fetches a single message by its Message-ID header.
func (c *Client) GetEmail(
	ctx context.Context,
	messageID string,
) (*model.Email, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	uids, err := c.findByMessageID(client, messageID)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("message %s not found", messageID)
	}

	emails, err := c.fetchFull(client, uids[:1])
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, fmt.Errorf("message %s not found", messageID)
	}

	return &emails[0], nil
}

// MarkRead sets the \Seen flag on the message with the given Message-ID.
// Marking an already-read message is a no-op on the server side.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	uids, err := c.findByMessageID(client, messageID)
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return fmt.Errorf("message %s not found", messageID)
	}

	storeCmd := client.Store(imap.UIDSetNum(uids...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	return storeCmd.Close()
}

// unreadCount counts the messages without the \Seen flag in the
// selected folder.
func (c *Client) unreadCount(client *imapclient.Client) (int, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}

	return len(searchData.AllUIDs()), nil
}

// findByMessageID searches the selected folder for the given
// Message-ID header value.
func (c *Client) findByMessageID(
	client *imapclient.Client,
	messageID string,
) ([]imap.UID, error) {
	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Message-Id", Value: messageID},
		},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching message %s: %w", messageID, err)
	}

	return searchData.AllUIDs(), nil
}

// fetchFull fetches envelope, flags, and full body for the given UIDs
// and normalizes each message into the local schema.
func (c *Client) fetchFull(
	client *imapclient.Client,
	uids []imap.UID,
) ([]model.Email, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var emails []model.Email
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		emails = append(emails, c.bufferToEmail(buf, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return emails, fmt.Errorf("fetching messages: %w", err)
	}

	return emails, nil
}

// bufferToEmail normalizes a fetched message into the local schema.
func (c *Client) bufferToEmail(
	buf *imapclient.FetchMessageBuffer,
	bodySection *imap.FetchItemBodySection,
) model.Email {
	e := model.Email{
		Folder: c.folder,
		UID:    uint32(buf.UID),
	}

	if buf.Envelope != nil {
		e.MessageID = buf.Envelope.MessageID
		e.Subject = buf.Envelope.Subject
		e.Timestamp = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			if from.Name != "" {
				e.From = from.Name
			} else {
				e.From = from.Addr()
			}
		}

		var to []string
		for _, addr := range buf.Envelope.To {
			to = append(to, addr.Addr())
		}
		e.To = strings.Join(to, ", ")
	}

	// A message without a Message-ID header still needs a stable key.
	if e.MessageID == "" {
		e.MessageID = fmt.Sprintf("uid-%d@%s", buf.UID, c.settings.Host)
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			e.Read = true
		}
	}

	if rawBody := buf.FindBodySection(bodySection); rawBody != nil {
		textBody, htmlBody, attachments := parseMIMEBody(rawBody)
		e.Body = textBody
		if e.Body == "" && htmlBody != "" {
			e.Body = stripHTML(htmlBody)
		}
		e.Attachments = attachments
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	return e
}

// parseMIMEBody parses a raw RFC 2822 message body using go-message
// and extracts the text/plain body, text/html body, and attachment
// metadata.
func parseMIMEBody(raw []byte) (
	textBody string, htmlBody string, attachments []model.Attachment,
) {
	reader := bytes.NewReader(raw)

	mr, err := gomail.CreateReader(reader)
	if err != nil {
		// If parsing fails, treat the whole thing as plain text.
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				htmlBody = string(body)
			}

		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			attachments = append(attachments, model.Attachment{
				Filename: filename,
				MIMEType: contentType,
				Size:     int64(len(body)),
			})
		}
	}

	return textBody, htmlBody, attachments
}

// htmlReplacer decodes the common HTML entities left after tag stripping.
var htmlReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// stripHTML removes HTML tags from a string and decodes common
// entities, providing a basic plain-text rendering.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	var sb strings.Builder
	inTag := false
	for _, r := range result {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	result = htmlReplacer.Replace(sb.String())

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
