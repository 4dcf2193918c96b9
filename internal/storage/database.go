package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"ragchat/internal/models"
)

// ErrNotFound is returned when a chat does not exist
var ErrNotFound = errors.New("chat not found")

// Database handles SQLite operations for chats and messages
type Database struct {
	db  *sql.DB
	now func() time.Time
}

// NewDatabase creates a new database connection and initializes tables
func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	database := &Database{db: db, now: time.Now}
	if err := database.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

// SetClock replaces time.Now, used to order chats deterministically in tests
func (d *Database) SetClock(now func() time.Time) {
	d.now = now
}

func (d *Database) createTables() error {
	chatsTable := `
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	messagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		message TEXT NOT NULL,
		sources TEXT NOT NULL DEFAULT '[]',
		content TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (chat_id) REFERENCES chats (id) ON DELETE CASCADE
	);`

	indexTable := `
	CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);
	CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at DESC);`

	for _, query := range []string{chatsTable, messagesTable, indexTable} {
		if _, err := d.db.Exec(query); err != nil {
			return errors.Wrap(err, "creating tables")
		}
	}

	return nil
}

// ListChats returns all chats, most recently active first
func (d *Database) ListChats(ctx context.Context) ([]models.Summary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, title
		FROM chats
		ORDER BY updated_at DESC, created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "listing chats")
	}
	defer rows.Close()

	chats := []models.Summary{}
	for rows.Next() {
		var s models.Summary
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, errors.Wrap(err, "scanning chat")
		}
		chats = append(chats, s)
	}

	return chats, rows.Err()
}

// GetMessages returns the messages of a chat in the order they were
// written. An unknown chat has no messages.
func (d *Database) GetMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT sender, message, sources, content, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY id ASC`,
		chatID)
	if err != nil {
		return nil, errors.Wrap(err, "loading messages")
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var sources, content string
		if err := rows.Scan(&msg.Sender, &msg.Text, &sources, &content, &msg.Time); err != nil {
			return nil, errors.Wrap(err, "scanning message")
		}
		if err := json.Unmarshal([]byte(sources), &msg.Sources); err != nil {
			return nil, errors.Wrap(err, "decoding sources")
		}
		if err := json.Unmarshal([]byte(content), &msg.Content); err != nil {
			return nil, errors.Wrap(err, "decoding content")
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// AppendMessage stores a message, creating the chat on its first message.
// A new chat is titled after the first words of that message.
func (d *Database) AppendMessage(ctx context.Context, chatID string, msg models.Message) error {
	sources, err := json.Marshal(nonNil(msg.Sources))
	if err != nil {
		return errors.Wrap(err, "encoding sources")
	}
	content, err := json.Marshal(nonNil(msg.Content))
	if err != nil {
		return errors.Wrap(err, "encoding content")
	}

	now := d.now().UTC()
	if msg.Time.IsZero() {
		msg.Time = now
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	// Insert the chat or bump its activity time
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		chatID, models.DeriveTitle(msg.Text), now, now)
	if err != nil {
		return errors.Wrap(err, "saving chat")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (chat_id, sender, message, sources, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		chatID, msg.Sender, msg.Text, string(sources), string(content), msg.Time.UTC())
	if err != nil {
		return errors.Wrap(err, "saving message")
	}

	return errors.Wrap(tx.Commit(), "committing message")
}

// RenameChat sets the title of a chat
func (d *Database) RenameChat(ctx context.Context, chatID, title string) error {
	res, err := d.db.ExecContext(ctx, "UPDATE chats SET title = ? WHERE id = ?", title, chatID)
	if err != nil {
		return errors.Wrap(err, "renaming chat")
	}
	return requireRow(res)
}

// DeleteChat removes a chat and all its messages
func (d *Database) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
		return errors.Wrap(err, "deleting messages")
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", chatID)
	if err != nil {
		return errors.Wrap(err, "deleting chat")
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "committing delete")
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
