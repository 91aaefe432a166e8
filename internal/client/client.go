package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"claude-chat/internal/core"
	"claude-chat/internal/store"
)

// Client talks to the chat server over HTTP. It implements ChatAPI.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{}, // no client-side timeout: completion streams are long-lived
	}
}

func (c *Client) Signup(ctx context.Context, email, fullName, password string) error {
	body := map[string]string{"email": email, "full_name": fullName, "password": password}
	return c.doJSON(ctx, http.MethodPost, "/api/signup", body, nil)
}

// Login authenticates and keeps the returned token for later requests.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", body, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/sign-out", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

func (c *Client) CreateChat(ctx context.Context) (*store.Chat, error) {
	var chat store.Chat
	if err := c.doJSON(ctx, http.MethodPost, "/api/chats", nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *Client) ListChats(ctx context.Context) ([]store.Chat, error) {
	var chats []store.Chat
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetMessages loads the persisted history reduced to the role/content shape
// the session renders.
func (c *Client) GetMessages(ctx context.Context, chatID string) ([]core.Turn, error) {
	var messages []store.Message
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats/"+chatID+"/messages", nil, &messages); err != nil {
		return nil, err
	}
	turns := make([]core.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, core.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns, nil
}

func (c *Client) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	body := map[string]string{"title": title}
	return c.doJSON(ctx, http.MethodPut, "/api/chats/"+chatID+"/title", body, nil)
}

// streamChunk is one SSE data payload from the relay.
type streamChunk struct {
	Type    string `json:"type"`
	Delta   string `json:"delta,omitempty"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// StreamCompletion posts the completion request and consumes the SSE stream,
// calling onDelta for each token in arrival order. It returns the full
// assembled text carried by the terminating done event.
func (c *Client) StreamCompletion(ctx context.Context, req core.CompletionRequest, onDelta func(string) error) (string, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat-completion", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat completion failed with HTTP status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	// Allow for large single events
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var assembled strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return assembled.String(), fmt.Errorf("failed to parse stream chunk: %w", err)
		}

		switch chunk.Type {
		case "token":
			assembled.WriteString(chunk.Delta)
			if err := onDelta(chunk.Delta); err != nil {
				return assembled.String(), err
			}
		case "error":
			return assembled.String(), fmt.Errorf("stream error: %s", chunk.Message)
		case "done":
			return chunk.Content, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return assembled.String(), fmt.Errorf("failed to read stream: %w", err)
	}

	// Stream ended without a done event; fall back to what was received.
	return assembled.String(), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s failed with HTTP status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
