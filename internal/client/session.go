package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"claude-chat/internal/core"
	"claude-chat/internal/store"
)

var (
	// ErrEmptyInput is returned when the pending input is blank; nothing is
	// sent and the input is left untouched.
	ErrEmptyInput = errors.New("input is empty")
	// ErrBusy is returned while a stream is already in flight; at most one
	// generation per session at a time.
	ErrBusy = errors.New("a response is already streaming")
)

// ChatAPI is the server surface the session depends on.
type ChatAPI interface {
	CreateChat(ctx context.Context) (*store.Chat, error)
	ListChats(ctx context.Context) ([]store.Chat, error)
	GetMessages(ctx context.Context, chatID string) ([]core.Turn, error)
	StreamCompletion(ctx context.Context, req core.CompletionRequest, onDelta func(string) error) (string, error)
	UpdateChatTitle(ctx context.Context, chatID, title string) error
}

// Session holds the per-tab chat state: the active chat, the committed turn
// list, and at most one uncommitted assistant turn being assembled from the
// stream. All mutation goes through the transition methods; nothing is
// exposed for direct modification.
type Session struct {
	mu  sync.Mutex
	api ChatAPI

	chat      *store.Chat
	committed []core.Turn
	pending   *core.Turn // non-nil exactly while a stream is in flight

	input       string
	streaming   bool
	sidebarOpen bool

	// OnChunk, when set, observes each streamed delta (for live rendering).
	OnChunk func(delta string)

	logger *slog.Logger
}

func NewSession(api ChatAPI, logger *slog.Logger) *Session {
	return &Session{api: api, logger: logger}
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *Session) ToggleSidebar() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sidebarOpen = !s.sidebarOpen
}

func (s *Session) SidebarOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sidebarOpen
}

func (s *Session) CurrentChat() *store.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat == nil {
		return nil
	}
	c := *s.chat
	return &c
}

// Turns returns the rendered message list: every committed turn plus the
// pending assistant turn when a stream is in flight. The pending turn is
// present from the moment the stream opens, even before the first chunk
// arrives, so the UI can show a composing indicator.
func (s *Session) Turns() []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]core.Turn, len(s.committed), len(s.committed)+1)
	copy(turns, s.committed)
	if s.pending != nil {
		turns = append(turns, *s.pending)
	}
	return turns
}

func (s *Session) ListChats(ctx context.Context) ([]store.Chat, error) {
	return s.api.ListChats(ctx)
}

// SelectChat makes the chat active: the list is cleared first, then replaced
// with the persisted history once it loads.
func (s *Session) SelectChat(ctx context.Context, chat store.Chat) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrBusy
	}
	selected := chat
	s.chat = &selected
	s.committed = nil
	s.pending = nil
	s.sidebarOpen = false
	s.mu.Unlock()

	turns, err := s.api.GetMessages(ctx, chat.ID)
	if err != nil {
		s.logger.Error("failed to load messages", "chat_id", chat.ID, "error", err)
		return err
	}

	s.mu.Lock()
	if s.chat != nil && s.chat.ID == chat.ID {
		s.committed = turns
	}
	s.mu.Unlock()
	return nil
}

// StartNewChat creates a fresh chat and makes it active with an empty list.
func (s *Session) StartNewChat(ctx context.Context) (*store.Chat, error) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.mu.Unlock()

	chat, err := s.api.CreateChat(ctx)
	if err != nil {
		s.logger.Error("failed to create chat", "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.chat = chat
	s.committed = nil
	s.pending = nil
	s.sidebarOpen = false
	s.mu.Unlock()
	return chat, nil
}

// Submit sends the pending input as a new user turn and blocks until the
// response stream completes. The input is cleared optimistically; any
// submission failure restores it and rolls the list back to its
// pre-submission state, so nothing typed is lost.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	text := strings.TrimSpace(s.input)
	if text == "" {
		s.mu.Unlock()
		return ErrEmptyInput
	}
	if s.streaming {
		s.mu.Unlock()
		return ErrBusy
	}
	s.input = ""
	s.streaming = true // busy covers chat creation as well as the stream itself

	if s.chat == nil {
		s.mu.Unlock()
		chat, err := s.api.CreateChat(ctx)
		s.mu.Lock()
		if err != nil {
			s.input = text
			s.streaming = false
			s.mu.Unlock()
			s.logger.Error("failed to create chat for submission", "error", err)
			return err
		}
		s.chat = chat
	}

	chatID := s.chat.ID
	firstExchange := len(s.committed) == 0

	history := make([]core.Turn, len(s.committed), len(s.committed)+1)
	copy(history, s.committed)
	history = append(history, core.Turn{Role: store.RoleUser, Content: text})

	s.committed = append(s.committed, core.Turn{Role: store.RoleUser, Content: text})
	s.pending = &core.Turn{Role: store.RoleAssistant}
	s.mu.Unlock()

	full, err := s.api.StreamCompletion(ctx, core.CompletionRequest{
		Messages: history,
		ChatID:   chatID,
		Message:  text,
	}, s.receiveChunk)
	if err != nil {
		s.mu.Lock()
		s.committed = s.committed[:len(s.committed)-1]
		s.pending = nil
		s.streaming = false
		s.input = text
		s.mu.Unlock()
		s.logger.Error("failed to stream completion", "chat_id", chatID, "error", err)
		return err
	}

	s.completeStream(full)

	if firstExchange {
		// Fire-and-forget: a failed title update never blocks or reverts
		// the displayed conversation.
		go s.updateTitle(chatID, full)
	}
	return nil
}

// receiveChunk appends a streamed delta to the pending assistant turn.
func (s *Session) receiveChunk(delta string) error {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return errors.New("received chunk with no stream in flight")
	}
	s.pending.Content += delta
	onChunk := s.OnChunk
	s.mu.Unlock()

	if onChunk != nil {
		onChunk(delta)
	}
	return nil
}

// completeStream commits the pending tail. This is the only transition that
// moves content from the tail into the committed sequence.
func (s *Session) completeStream(full string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, core.Turn{Role: store.RoleAssistant, Content: full})
	s.pending = nil
	s.streaming = false
}

func (s *Session) updateTitle(chatID, reply string) {
	title := deriveTitle(reply)
	if err := s.api.UpdateChatTitle(context.Background(), chatID, title); err != nil {
		s.logger.Error("failed to update chat title", "chat_id", chatID, "error", err)
		return
	}
	s.mu.Lock()
	if s.chat != nil && s.chat.ID == chatID {
		s.chat.Title = title
	}
	s.mu.Unlock()
}

const maxTitleLen = 50

// deriveTitle takes the first 50 characters of the reply, with a truncation
// marker when the reply is longer.
func deriveTitle(reply string) string {
	runes := []rune(reply)
	if len(runes) <= maxTitleLen {
		return reply
	}
	return string(runes[:maxTitleLen]) + "..."
}
