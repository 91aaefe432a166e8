package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"claude-chat/internal/core"
)

type contextKey string

const (
	userIDContextKey    contextKey = "userID"
	sessionIDContextKey contextKey = "sessionID"
)

type APIHandler struct {
	authService *core.AuthService
	chatService *core.ChatService
	logger      *slog.Logger
}

func NewAPIHandler(as *core.AuthService, cs *core.ChatService, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		authService: as,
		chatService: cs,
		logger:      logger,
	}
}

// AuthMiddleware resolves the bearer token to a verified identity. Requests
// without one never reach a handler and cause no writes.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, sessionID, err := h.authService.VerifyCaller(r.Context(), tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.authService.Signup(r.Context(), req.Email, req.FullName, req.Password)
	if err != nil {
		h.logger.Error("signup failed", "email", req.Email, "error", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	token, user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.Error("login failed", "email", req.Email, "error", err)
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"token": token, "user": user})
}

func (h *APIHandler) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Context().Value(sessionIDContextKey).(string)

	if err := h.authService.SignOut(r.Context(), sessionID); err != nil {
		h.logger.Error("sign-out failed", "session_id", sessionID, "error", err)
		http.Error(w, "Failed to sign out", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// ChatCompletionHandler relays a streaming completion. The flow is: verify
// ownership, persist the user turn, then forward provider chunks as SSE
// events in arrival order and persist the assembled assistant turn at end of
// stream. Failures before the first chunk map to a status code; once tokens
// have been sent the stream carries an error event instead, and nothing
// already streamed is retracted.
func (h *APIHandler) ChatCompletionHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDContextKey).(int64)

	var req core.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 && strings.TrimSpace(req.Message) == "" {
		http.Error(w, "A message is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming is not supported", http.StatusInternalServerError)
		return
	}

	started := false
	onDelta := func(delta string) error {
		if !started {
			setSSEHeaders(w)
			started = true
		}
		if err := writeSSEEvent(w, map[string]string{"type": "token", "delta": delta}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	full, err := h.chatService.StreamCompletion(r.Context(), userID, req, onDelta)
	if err != nil {
		if !started {
			switch {
			case errors.Is(err, core.ErrForbidden):
				http.Error(w, "Forbidden", http.StatusForbidden)
			default:
				h.logger.Error("chat completion failed", "user_id", userID, "chat_id", req.ChatID, "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
			return
		}
		h.logger.Error("chat completion interrupted", "user_id", userID, "chat_id", req.ChatID, "error", err)
		_ = writeSSEEvent(w, map[string]string{"type": "error", "message": "stream interrupted"})
		flusher.Flush()
		return
	}

	if !started {
		// Provider produced no tokens; still deliver a well-formed stream.
		setSSEHeaders(w)
	}
	_ = writeSSEEvent(w, map[string]string{"type": "done", "content": full})
	flusher.Flush()
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDContextKey).(int64)

	chat, err := h.chatService.CreateChat(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to create chat", "user_id", userID, "error", err)
		http.Error(w, "Failed to create chat", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(chat)
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDContextKey).(int64)

	chats, err := h.chatService.GetChats(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list chats", "user_id", userID, "error", err)
		http.Error(w, "Failed to list chats", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(chats)
}

func (h *APIHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDContextKey).(int64)
	chatID := chi.URLParam(r, "chatID")

	messages, err := h.chatService.GetMessages(r.Context(), chatID, userID)
	if err != nil {
		if errors.Is(err, core.ErrForbidden) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		h.logger.Error("failed to get messages", "user_id", userID, "chat_id", chatID, "error", err)
		http.Error(w, "Failed to get messages", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(messages)
}

type UpdateTitleRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) UpdateChatTitleHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDContextKey).(int64)
	chatID := chi.URLParam(r, "chatID")

	var req UpdateTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.chatService.UpdateChatTitle(r.Context(), chatID, userID, req.Title)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrForbidden):
			http.Error(w, "Forbidden", http.StatusForbidden)
		case errors.Is(err, core.ErrInvalidInput):
			http.Error(w, "Title cannot be empty", http.StatusBadRequest)
		default:
			h.logger.Error("failed to update chat title", "user_id", userID, "chat_id", chatID, "error", err)
			http.Error(w, "Failed to update chat title", http.StatusInternalServerError)
		}
		return
	}
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func writeSSEEvent(w http.ResponseWriter, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", encoded); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	return nil
}
