package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"claude-chat/internal/config"
)

const (
	defaultModel       = "anthropic/claude-3.5-sonnet"
	defaultTemperature = 0.7
	defaultMaxTokens   = 2048

	systemPrompt = "You are Claude, a helpful AI assistant created by Vercel. " +
		"You are knowledgeable, thoughtful, and aim to be helpful while being honest about your limitations. " +
		"Respond in a conversational and friendly manner."
)

// Turn is one role/content pair of conversation history, in provider-neutral
// form.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMService streams chat completions from an OpenAI-compatible endpoint
// (OpenRouter in production).
type LLMService struct {
	client *openai.Client
	model  string
}

func NewLLMService() *LLMService {
	cfg := openai.DefaultConfig(config.AppConfig.OpenRouterAPIKey)
	cfg.BaseURL = config.AppConfig.OpenRouterBaseURL

	return &LLMService{
		client: openai.NewClientWithConfig(cfg),
		model:  defaultModel,
	}
}

// StreamChat opens a streaming completion for the given turn history and
// forwards each content delta to onDelta in arrival order. It returns the
// full assembled reply once the provider signals end of stream. An error
// from onDelta aborts the stream.
func (s *LLMService) StreamChat(ctx context.Context, turns []Turn, onDelta func(string) error) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Stream:      true,
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("completion stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), fmt.Errorf("failed to forward chunk: %w", err)
		}
	}

	return full.String(), nil
}
