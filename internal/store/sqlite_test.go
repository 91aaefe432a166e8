package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice@example.com", "Alice", "hash")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice", user.FullName)

	found, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	// Email is unique
	_, err = s.CreateUser(ctx, "alice@example.com", "Other Alice", "hash2")
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice@example.com", "", "hash")
	require.NoError(t, err)

	session, err := s.CreateSession(ctx, user.ID, time.Hour)
	require.NoError(t, err)

	found, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.UserID)
	assert.True(t, found.ExpiresAt.After(time.Now()))

	require.NoError(t, s.DeleteSession(ctx, session.ID))
	_, err = s.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetChatOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice@example.com", "", "hash")
	require.NoError(t, err)
	chat, err := s.CreateChat(ctx, user.ID, DefaultChatTitle)
	require.NoError(t, err)

	owner, err := s.GetChatOwner(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner)

	_, err = s.GetChatOwner(ctx, "no-such-chat")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateMessageBumpsChatUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice@example.com", "", "hash")
	require.NoError(t, err)
	chat, err := s.CreateChat(ctx, user.ID, DefaultChatTitle)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = s.CreateMessage(ctx, chat.ID, RoleUser, "Hello")
	require.NoError(t, err)

	chats, err := s.GetChatsByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.True(t, chats[0].UpdatedAt.After(chat.UpdatedAt))
}

func TestChatsOrderedByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice@example.com", "", "hash")
	require.NoError(t, err)

	first, err := s.CreateChat(ctx, user.ID, "first")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := s.CreateChat(ctx, user.ID, "second")
	require.NoError(t, err)

	chats, err := s.GetChatsByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, second.ID, chats[0].ID, "most recently updated chat comes first")

	// New activity moves the older chat back to the front.
	time.Sleep(10 * time.Millisecond)
	_, err = s.CreateMessage(ctx, first.ID, RoleUser, "Hello")
	require.NoError(t, err)

	chats, err = s.GetChatsByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, chats[0].ID)
}

func TestMessagesOrderedByCreationAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice@example.com", "", "hash")
	require.NoError(t, err)
	chat, err := s.CreateChat(ctx, user.ID, DefaultChatTitle)
	require.NoError(t, err)

	contents := []string{"one", "two", "three"}
	for _, content := range contents {
		_, err = s.CreateMessage(ctx, chat.ID, RoleUser, content)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	messages, err := s.GetMessagesByChatID(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, content := range contents {
		assert.Equal(t, content, messages[i].Content)
	}
}

func TestUpdateChatTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "alice@example.com", "", "hash")
	require.NoError(t, err)
	chat, err := s.CreateChat(ctx, user.ID, DefaultChatTitle)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.UpdateChatTitle(ctx, chat.ID, "Renamed"))

	chats, err := s.GetChatsByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Renamed", chats[0].Title)
	assert.True(t, chats[0].UpdatedAt.After(chat.UpdatedAt), "title change bumps updated_at")

	assert.ErrorIs(t, s.UpdateChatTitle(ctx, "no-such-chat", "x"), ErrNotFound)
}
