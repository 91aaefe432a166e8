package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claude-chat/internal/store"
)

// fakeChatStore records every write so tests can assert both content and
// ordering relative to the model call.
type fakeChatStore struct {
	owners   map[string]int64
	ownerErr error

	createMessageErr error
	messages         []store.Message
	titles           map[string]string

	callLog *[]string
}

func (f *fakeChatStore) CreateChat(ctx context.Context, userID int64, title string) (*store.Chat, error) {
	*f.callLog = append(*f.callLog, "CreateChat")
	return &store.Chat{ID: "chat-1", UserID: userID, Title: title}, nil
}

func (f *fakeChatStore) GetChatOwner(ctx context.Context, chatID string) (int64, error) {
	if f.ownerErr != nil {
		return 0, f.ownerErr
	}
	owner, ok := f.owners[chatID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return owner, nil
}

func (f *fakeChatStore) GetChatsByUserID(ctx context.Context, userID int64) ([]store.Chat, error) {
	return nil, nil
}

func (f *fakeChatStore) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	if f.titles == nil {
		f.titles = map[string]string{}
	}
	f.titles[chatID] = title
	return nil
}

func (f *fakeChatStore) CreateMessage(ctx context.Context, chatID, role, content string) (*store.Message, error) {
	*f.callLog = append(*f.callLog, "CreateMessage:"+role)
	if f.createMessageErr != nil {
		return nil, f.createMessageErr
	}
	msg := store.Message{ID: "msg", ChatID: chatID, Role: role, Content: content}
	f.messages = append(f.messages, msg)
	return &msg, nil
}

func (f *fakeChatStore) GetMessagesByChatID(ctx context.Context, chatID string) ([]store.Message, error) {
	return f.messages, nil
}

type fakeStreamer struct {
	chunks []string
	err    error

	turns   []Turn
	callLog *[]string
}

func (f *fakeStreamer) StreamChat(ctx context.Context, turns []Turn, onDelta func(string) error) (string, error) {
	*f.callLog = append(*f.callLog, "StreamChat")
	f.turns = turns
	var full string
	for _, chunk := range f.chunks {
		full += chunk
		if err := onDelta(chunk); err != nil {
			return full, err
		}
	}
	return full, f.err
}

func newTestChatService(dbStore *fakeChatStore, streamer *fakeStreamer) *ChatService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewChatService(dbStore, streamer, logger)
}

func newFakes() (*fakeChatStore, *fakeStreamer) {
	callLog := &[]string{}
	return &fakeChatStore{owners: map[string]int64{}, callLog: callLog},
		&fakeStreamer{callLog: callLog}
}

func TestVerifyOwnership(t *testing.T) {
	dbStore, streamer := newFakes()
	dbStore.owners["C1"] = 1
	service := newTestChatService(dbStore, streamer)

	assert.NoError(t, service.VerifyOwnership(context.Background(), "C1", 1))
	assert.ErrorIs(t, service.VerifyOwnership(context.Background(), "C1", 2), ErrForbidden)
	// A missing chat is indistinguishable from someone else's chat.
	assert.ErrorIs(t, service.VerifyOwnership(context.Background(), "unknown", 1), ErrForbidden)

	dbStore.ownerErr = errors.New("db down")
	assert.ErrorIs(t, service.VerifyOwnership(context.Background(), "C1", 1), ErrForbidden)
}

func TestStreamCompletionForeignChatIsForbidden(t *testing.T) {
	dbStore, streamer := newFakes()
	dbStore.owners["C1"] = 2
	service := newTestChatService(dbStore, streamer)

	_, err := service.StreamCompletion(context.Background(), 1, CompletionRequest{
		ChatID:  "C1",
		Message: "Hello",
	}, func(string) error { return nil })

	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, *dbStore.callLog, "no store write and no model call may happen")
}

func TestStreamCompletionPersistsUserTurnBeforeModelCall(t *testing.T) {
	dbStore, streamer := newFakes()
	dbStore.owners["C1"] = 1
	streamer.chunks = []string{"Hi"}
	service := newTestChatService(dbStore, streamer)

	_, err := service.StreamCompletion(context.Background(), 1, CompletionRequest{
		Messages: []Turn{{Role: store.RoleUser, Content: "Hello"}},
		ChatID:   "C1",
		Message:  "Hello",
	}, func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, []string{"CreateMessage:user", "StreamChat", "CreateMessage:assistant"}, *dbStore.callLog)
	assert.Equal(t, "Hello", dbStore.messages[0].Content)
}

func TestStreamCompletionAssemblesAssistantTurn(t *testing.T) {
	dbStore, streamer := newFakes()
	dbStore.owners["C1"] = 1
	streamer.chunks = []string{"Hi", " there", "!"}
	service := newTestChatService(dbStore, streamer)

	var received []string
	full, err := service.StreamCompletion(context.Background(), 1, CompletionRequest{
		Messages: []Turn{{Role: store.RoleUser, Content: "Hello"}},
		ChatID:   "C1",
		Message:  "Hello",
	}, func(delta string) error {
		received = append(received, delta)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi there!", full)
	assert.Equal(t, []string{"Hi", " there", "!"}, received, "chunks forwarded verbatim in arrival order")

	require.Len(t, dbStore.messages, 2)
	assert.Equal(t, store.RoleAssistant, dbStore.messages[1].Role)
	assert.Equal(t, "Hi there!", dbStore.messages[1].Content)
}

func TestStreamCompletionWithoutChatIDIsEphemeral(t *testing.T) {
	dbStore, streamer := newFakes()
	streamer.chunks = []string{"Hi"}
	service := newTestChatService(dbStore, streamer)

	full, err := service.StreamCompletion(context.Background(), 1, CompletionRequest{
		Message: "Hello",
	}, func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, "Hi", full)
	assert.Equal(t, []string{"StreamChat"}, *dbStore.callLog, "nothing is persisted without a chat")
	// The new user text still reaches the model when no history was sent.
	assert.Equal(t, []Turn{{Role: store.RoleUser, Content: "Hello"}}, streamer.turns)
}

func TestStreamCompletionProviderFailure(t *testing.T) {
	dbStore, streamer := newFakes()
	dbStore.owners["C1"] = 1
	streamer.err = errors.New("provider outage")
	service := newTestChatService(dbStore, streamer)

	_, err := service.StreamCompletion(context.Background(), 1, CompletionRequest{
		Messages: []Turn{{Role: store.RoleUser, Content: "Hello"}},
		ChatID:   "C1",
		Message:  "Hello",
	}, func(string) error { return nil })

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrForbidden)
	// The user's own message is durable even though the model call failed.
	require.Len(t, dbStore.messages, 1)
	assert.Equal(t, store.RoleUser, dbStore.messages[0].Role)
}

func TestCreateChatUsesDefaultTitle(t *testing.T) {
	dbStore, streamer := newFakes()
	service := newTestChatService(dbStore, streamer)

	chat, err := service.CreateChat(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultChatTitle, chat.Title)
}

func TestUpdateChatTitle(t *testing.T) {
	dbStore, streamer := newFakes()
	dbStore.owners["C1"] = 1
	service := newTestChatService(dbStore, streamer)

	assert.ErrorIs(t, service.UpdateChatTitle(context.Background(), "C1", 1, "  "), ErrInvalidInput)
	assert.ErrorIs(t, service.UpdateChatTitle(context.Background(), "C1", 2, "Title"), ErrForbidden)

	require.NoError(t, service.UpdateChatTitle(context.Background(), "C1", 1, "Title"))
	assert.Equal(t, "Title", dbStore.titles["C1"])
}

func TestGetMessagesChecksOwnership(t *testing.T) {
	dbStore, streamer := newFakes()
	dbStore.owners["C1"] = 1
	service := newTestChatService(dbStore, streamer)

	_, err := service.GetMessages(context.Background(), "C1", 2)
	assert.ErrorIs(t, err, ErrForbidden)
}
