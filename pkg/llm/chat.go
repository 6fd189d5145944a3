package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"github.com/hmle/talkdocs/internal/models"
	"github.com/hmle/talkdocs/internal/types"
)

// ChatConfig represents the configuration for the completion gateway.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // Ollama server URL
}

// ChatEngine is the completion gateway. It hands message lists to the
// model and returns text, either whole or as a token stream. Every call
// is a single attempt; retry policy belongs to the caller.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.Temperature == 0 {
		config.Temperature = 0.1
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// Complete generates a single response for the message list.
func (ce *ChatEngine) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	response, err := ce.llm.GenerateContent(ctx, toContent(messages),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: completion failed: %v", types.ErrUpstream, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", types.ErrUpstream)
	}
	return response.Choices[0].Content, nil
}

// StreamComplete generates a response as a lazy sequence of fragments.
// The channel is finite and closed by the producer; it is not
// restartable. Cancelling ctx stops production promptly.
func (ce *ChatEngine) StreamComplete(ctx context.Context, messages []models.ChatMessage) (<-chan string, error) {
	fragments := make(chan string)

	go func() {
		defer close(fragments)

		_, err := ce.llm.GenerateContent(ctx, toContent(messages),
			llms.WithTemperature(ce.config.Temperature),
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case fragments <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		)
		if err != nil && ctx.Err() == nil {
			// Surface mid-stream failures in-band; the channel carries
			// text only.
			select {
			case fragments <- fmt.Sprintf("\n[error: %v]", err):
			case <-ctx.Done():
			}
		}
	}()

	return fragments, nil
}

func toContent(messages []models.ChatMessage) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(toRole(m.Role), m.Content))
	}
	return content
}

func toRole(role models.Role) schema.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return schema.ChatMessageTypeSystem
	case models.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
