package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailobot/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// AppendMessage inserts a chat message and returns its assigned row id.
func (s *SQLiteStore) AppendMessage(
	ctx context.Context,
	msg model.ChatMessage,
) (int64, error) {
	contextJSON := "{}"
	if msg.Context != nil {
		raw, err := json.Marshal(msg.Context)
		if err != nil {
			return 0, fmt.Errorf("marshaling message context: %w", err)
		}
		contextJSON = string(raw)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (timestamp, sender, message, context)
		VALUES (?, ?, ?, ?)`,
		ts.UTC(), string(msg.Sender), msg.Message, contextJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("appending message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading message id: %w", err)
	}
	return id, nil
}

// GetConversation retrieves the conversation history in chronological
// order. A limit <= 0 returns all messages.
func (s *SQLiteStore) GetConversation(
	ctx context.Context,
	limit int,
) ([]model.ChatMessage, error) {
	query := "SELECT * FROM conversations ORDER BY id ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	defer rows.Close()

	var messages []model.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// ClearConversation removes all stored chat messages. The caller is
// responsible for re-seeding the welcome message.
func (s *SQLiteStore) ClearConversation(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	return nil
}

// UpsertEmails inserts or updates a batch of emails keyed by message id.
// Re-checking an already cached message updates the row in place; the
// return value counts only messages that were not cached before.
func (s *SQLiteStore) UpsertEmails(
	ctx context.Context,
	emails []model.Email,
) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO emails (
			message_id, from_addr, to_addr, subject, body,
			timestamp, read, folder, attachments, uid
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			from_addr   = excluded.from_addr,
			to_addr     = excluded.to_addr,
			subject     = excluded.subject,
			body        = excluded.body,
			timestamp   = excluded.timestamp,
			read        = excluded.read,
			folder      = excluded.folder,
			attachments = excluded.attachments,
			uid         = excluded.uid`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing email upsert: %w", err)
	}
	defer stmt.Close()

	existStmt, err := tx.PreparexContext(ctx,
		"SELECT COUNT(*) FROM emails WHERE message_id = ?",
	)
	if err != nil {
		return 0, fmt.Errorf("preparing existence check: %w", err)
	}
	defer existStmt.Close()

	newCount := 0
	for _, e := range emails {
		if e.MessageID == "" {
			return 0, errors.New("email has empty message id")
		}

		var existing int
		if err := existStmt.GetContext(ctx, &existing, e.MessageID); err != nil {
			return 0, fmt.Errorf("checking email %s: %w", e.MessageID, err)
		}

		attachments, err := json.Marshal(e.Attachments)
		if err != nil {
			return 0, fmt.Errorf("marshaling attachments for %s: %w", e.MessageID, err)
		}

		folder := e.Folder
		if folder == "" {
			folder = "INBOX"
		}

		_, err = stmt.ExecContext(ctx,
			e.MessageID, e.From, e.To, e.Subject, e.Body,
			e.Timestamp.UTC(), boolToInt(e.Read), folder,
			string(attachments), e.UID,
		)
		if err != nil {
			return 0, fmt.Errorf("upserting email %s: %w", e.MessageID, err)
		}

		if existing == 0 {
			newCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing email upsert: %w", err)
	}
	return newCount, nil
}

// GetEmails retrieves cached emails matching the filter, newest first.
func (s *SQLiteStore) GetEmails(
	ctx context.Context,
	filter EmailFilter,
) ([]model.Email, error) {
	var conditions []string
	var args []interface{}

	if filter.Folder != nil {
		conditions = append(conditions, "folder = ?")
		args = append(args, *filter.Folder)
	}
	if filter.Unread != nil {
		conditions = append(conditions, "read = ?")
		args = append(args, boolToInt(!*filter.Unread))
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions,
			"(subject LIKE ? OR from_addr LIKE ? OR body LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q, q)
	}

	query := "SELECT * FROM emails"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}
	defer rows.Close()

	var emails []model.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}

	return emails, rows.Err()
}

// GetEmailByMessageID retrieves a single cached email, or nil when the
// message id is unknown.
func (s *SQLiteStore) GetEmailByMessageID(
	ctx context.Context,
	messageID string,
) (*model.Email, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM emails WHERE message_id = ?", messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying email %s: %w", messageID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	e, err := scanEmail(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkEmailRead sets read=true for the given message id. Marking an
// already-read message is a no-op, not an error.
func (s *SQLiteStore) MarkEmailRead(
	ctx context.Context,
	messageID string,
) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE emails SET read = 1 WHERE message_id = ?", messageID,
	)
	if err != nil {
		return fmt.Errorf("marking email %s read: %w", messageID, err)
	}
	return nil
}

// UnreadCount returns the number of cached unread emails.
func (s *SQLiteStore) UnreadCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM emails WHERE read = 0",
	)
	if err != nil {
		return 0, fmt.Errorf("counting unread emails: %w", err)
	}
	return count, nil
}

// SaveIMAPSettings writes the singleton settings row (id=1).
func (s *SQLiteStore) SaveIMAPSettings(
	ctx context.Context,
	settings model.IMAPSettings,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO imap_settings (id, host, port, username, password, tls)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host     = excluded.host,
			port     = excluded.port,
			username = excluded.username,
			password = excluded.password,
			tls      = excluded.tls`,
		settings.Host, settings.Port, settings.Username,
		settings.Password, boolToInt(settings.TLS),
	)
	if err != nil {
		return fmt.Errorf("saving IMAP settings: %w", err)
	}
	return nil
}

// GetIMAPSettings returns the stored settings, or nil when none are saved.
func (s *SQLiteStore) GetIMAPSettings(
	ctx context.Context,
) (*model.IMAPSettings, error) {
	var (
		settings model.IMAPSettings
		id       int
		tls      int
	)

	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM imap_settings WHERE id = 1",
	)
	err := row.Scan(
		&id, &settings.Host, &settings.Port,
		&settings.Username, &settings.Password, &tls,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading IMAP settings: %w", err)
	}

	settings.TLS = tls != 0
	return &settings, nil
}

// SaveDraft inserts a new draft or updates an existing one (ID > 0) and
// returns the draft's row id.
func (s *SQLiteStore) SaveDraft(
	ctx context.Context,
	d model.Draft,
) (int64, error) {
	now := time.Now().UTC()

	if d.ID > 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE drafts
			SET recipient = ?, subject = ?, body = ?, in_reply_to = ?, updated_at = ?
			WHERE id = ?`,
			d.Recipient, d.Subject, d.Body, d.InReplyTo, now, d.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("updating draft %d: %w", d.ID, err)
		}
		return d.ID, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (recipient, subject, body, in_reply_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.Recipient, d.Subject, d.Body, d.InReplyTo, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("saving draft: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading draft id: %w", err)
	}
	return id, nil
}

// GetDrafts retrieves all saved drafts, most recently updated first.
func (s *SQLiteStore) GetDrafts(ctx context.Context) ([]model.Draft, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM drafts ORDER BY updated_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying drafts: %w", err)
	}
	defer rows.Close()

	var drafts []model.Draft
	for rows.Next() {
		var (
			d         model.Draft
			createdAt time.Time
			updatedAt time.Time
		)
		err := rows.Scan(
			&d.ID, &d.Recipient, &d.Subject, &d.Body,
			&d.InReplyTo, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning draft row: %w", err)
		}
		d.CreatedAt = createdAt
		d.UpdatedAt = updatedAt
		drafts = append(drafts, d)
	}

	return drafts, rows.Err()
}

// DeleteDraft removes a draft by id.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting draft %d: %w", id, err)
	}
	return nil
}

// scanMessage scans a conversation row from a sqlx.Rows result set.
func scanMessage(rows *sqlx.Rows) (model.ChatMessage, error) {
	var (
		msg         model.ChatMessage
		sender      string
		timestamp   time.Time
		contextJSON string
	)

	err := rows.Scan(&msg.ID, &timestamp, &sender, &msg.Message, &contextJSON)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("scanning conversation row: %w", err)
	}

	msg.Sender = model.Sender(sender)
	msg.Timestamp = timestamp

	if contextJSON != "" && contextJSON != "{}" {
		if err := json.Unmarshal([]byte(contextJSON), &msg.Context); err != nil {
			return model.ChatMessage{}, fmt.Errorf("unmarshaling message context: %w", err)
		}
	}

	return msg, nil
}

// scanEmail scans an email row from a sqlx.Rows result set.
func scanEmail(rows *sqlx.Rows) (model.Email, error) {
	var (
		e           model.Email
		timestamp   time.Time
		readInt     int
		attachments string
	)

	err := rows.Scan(
		&e.ID, &e.MessageID, &e.From, &e.To, &e.Subject, &e.Body,
		&timestamp, &readInt, &e.Folder, &attachments, &e.UID,
	)
	if err != nil {
		return model.Email{}, fmt.Errorf("scanning email row: %w", err)
	}

	e.Timestamp = timestamp
	e.Read = readInt != 0

	if attachments != "" && attachments != "[]" {
		if err := json.Unmarshal([]byte(attachments), &e.Attachments); err != nil {
			return model.Email{}, fmt.Errorf("unmarshaling attachments: %w", err)
		}
	}

	return e, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
