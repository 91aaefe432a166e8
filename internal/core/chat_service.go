package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"claude-chat/internal/store"
)

// ChatStore is the slice of the message store the chat service depends on.
type ChatStore interface {
	CreateChat(ctx context.Context, userID int64, title string) (*store.Chat, error)
	GetChatOwner(ctx context.Context, chatID string) (int64, error)
	GetChatsByUserID(ctx context.Context, userID int64) ([]store.Chat, error)
	UpdateChatTitle(ctx context.Context, chatID, title string) error
	CreateMessage(ctx context.Context, chatID, role, content string) (*store.Message, error)
	GetMessagesByChatID(ctx context.Context, chatID string) ([]store.Message, error)
}

// CompletionStreamer opens a token stream against the model provider.
type CompletionStreamer interface {
	StreamChat(ctx context.Context, turns []Turn, onDelta func(string) error) (string, error)
}

// CompletionRequest is the relay input: the ordered prior turns, an optional
// chat to attach the exchange to, and the newly typed user text.
type CompletionRequest struct {
	Messages []Turn `json:"messages"`
	ChatID   string `json:"chatId,omitempty"`
	Message  string `json:"message,omitempty"`
}

type ChatService struct {
	dbStore ChatStore
	llm     CompletionStreamer
	logger  *slog.Logger
}

func NewChatService(db ChatStore, llm CompletionStreamer, logger *slog.Logger) *ChatService {
	return &ChatService{
		dbStore: db,
		llm:     llm,
		logger:  logger,
	}
}

// VerifyOwnership confirms the chat belongs to the user. A missing chat, a
// failed lookup, and an owner mismatch all come back as ErrForbidden so the
// response does not reveal whether the chat exists.
func (s *ChatService) VerifyOwnership(ctx context.Context, chatID string, userID int64) error {
	owner, err := s.dbStore.GetChatOwner(ctx, chatID)
	if err != nil || owner != userID {
		return ErrForbidden
	}
	return nil
}

// StreamCompletion runs the relay flow for one request: ownership check,
// durable user turn, provider stream forwarded through onDelta, then the
// assembled assistant turn. When no chat ID is given the exchange is
// ephemeral and nothing is persisted.
//
// The user turn is written before the provider is contacted, so the user's
// own message survives a provider outage.
func (s *ChatService) StreamCompletion(ctx context.Context, userID int64, req CompletionRequest, onDelta func(string) error) (string, error) {
	if req.ChatID != "" {
		if err := s.VerifyOwnership(ctx, req.ChatID, userID); err != nil {
			return "", err
		}
	}

	if req.ChatID != "" && req.Message != "" {
		if _, err := s.dbStore.CreateMessage(ctx, req.ChatID, store.RoleUser, req.Message); err != nil {
			return "", fmt.Errorf("failed to store user message: %w", err)
		}
	}

	turns := req.Messages
	if len(turns) == 0 && req.Message != "" {
		turns = []Turn{{Role: store.RoleUser, Content: req.Message}}
	}

	full, err := s.llm.StreamChat(ctx, turns, onDelta)
	if err != nil {
		return full, fmt.Errorf("completion failed: %w", err)
	}

	if req.ChatID != "" {
		if _, err := s.dbStore.CreateMessage(ctx, req.ChatID, store.RoleAssistant, full); err != nil {
			// The reply already reached the caller; only durable history is affected.
			s.logger.Error("failed to store assistant message", "chat_id", req.ChatID, "error", err)
			return full, fmt.Errorf("failed to store assistant message: %w", err)
		}
	}

	return full, nil
}

func (s *ChatService) CreateChat(ctx context.Context, userID int64) (*store.Chat, error) {
	chat, err := s.dbStore.CreateChat(ctx, userID, store.DefaultChatTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

func (s *ChatService) GetChats(ctx context.Context, userID int64) ([]store.Chat, error) {
	return s.dbStore.GetChatsByUserID(ctx, userID)
}

func (s *ChatService) GetMessages(ctx context.Context, chatID string, userID int64) ([]store.Message, error) {
	if err := s.VerifyOwnership(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.dbStore.GetMessagesByChatID(ctx, chatID)
}

func (s *ChatService) UpdateChatTitle(ctx context.Context, chatID string, userID int64, title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrInvalidInput
	}
	if err := s.VerifyOwnership(ctx, chatID, userID); err != nil {
		return err
	}
	if err := s.dbStore.UpdateChatTitle(ctx, chatID, title); err != nil {
		return fmt.Errorf("failed to update chat title: %w", err)
	}
	return nil
}
