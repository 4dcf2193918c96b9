package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/models"
)

// createTestDatabase creates a real SQLite database in a temp directory
// whose clock advances one second per call.
func createTestDatabase(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	tick := 0
	db.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	return db
}

func userMessage(text string) models.Message {
	return models.Message{Sender: models.SenderUser, Text: text}
}

func TestAppendMessageCreatesChat(t *testing.T) {
	ctx := context.Background()
	db := createTestDatabase(t)

	require.NoError(t, db.AppendMessage(ctx, "c1", userMessage("what is hybrid search exactly")))
	require.NoError(t, db.AppendMessage(ctx, "c1", models.Message{
		Sender:  models.SenderAI,
		Text:    "It mixes BM25 and vectors.",
		Sources: []string{"docs/search.pdf"},
		Content: []string{"Hybrid search combines..."},
	}))

	chats, err := db.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Summary{{ID: "c1", Name: "what is hybrid"}}, chats)

	msgs, err := db.GetMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Equal(t, "what is hybrid search exactly", msgs[0].Text)
	assert.Empty(t, msgs[0].Sources)
	assert.Equal(t, models.SenderAI, msgs[1].Sender)
	assert.Equal(t, []string{"docs/search.pdf"}, msgs[1].Sources)
	assert.Equal(t, []string{"Hybrid search combines..."}, msgs[1].Content)
	assert.False(t, msgs[1].Time.IsZero())
}

func TestListChatsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	db := createTestDatabase(t)

	require.NoError(t, db.AppendMessage(ctx, "c1", userMessage("first")))
	require.NoError(t, db.AppendMessage(ctx, "c2", userMessage("second")))
	require.NoError(t, db.AppendMessage(ctx, "c1", userMessage("first again")))

	chats, err := db.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Summary{{ID: "c1", Name: "first"}, {ID: "c2", Name: "second"}}, chats)
}

func TestGetMessagesUnknownChat(t *testing.T) {
	db := createTestDatabase(t)

	msgs, err := db.GetMessages(context.Background(), "nope")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestRenameChat(t *testing.T) {
	ctx := context.Background()
	db := createTestDatabase(t)
	require.NoError(t, db.AppendMessage(ctx, "c1", userMessage("hello")))

	require.NoError(t, db.RenameChat(ctx, "c1", "greetings"))
	chats, err := db.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "greetings", chats[0].Name)

	// later messages keep the renamed title
	require.NoError(t, db.AppendMessage(ctx, "c1", userMessage("again")))
	chats, err = db.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "greetings", chats[0].Name)

	assert.ErrorIs(t, db.RenameChat(ctx, "missing", "x"), ErrNotFound)
}

func TestDeleteChat(t *testing.T) {
	ctx := context.Background()
	db := createTestDatabase(t)
	require.NoError(t, db.AppendMessage(ctx, "c1", userMessage("hello")))
	require.NoError(t, db.AppendMessage(ctx, "c2", userMessage("keep me")))

	require.NoError(t, db.DeleteChat(ctx, "c1"))

	chats, err := db.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Summary{{ID: "c2", Name: "keep me"}}, chats)

	msgs, err := db.GetMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, db.DeleteChat(ctx, "c1"), ErrNotFound)
}
