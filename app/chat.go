package app

import (
	"context"

	"github.com/agentgate/agentgate/domain/agent"
	"github.com/agentgate/agentgate/ports"
	"github.com/rs/zerolog"
)

const chatSystemPrompt = "You are a helpful AI assistant. Be concise and friendly."

// ChatService runs single-turn chat completions.
type ChatService struct {
	providers *ProviderManager
	clock     ports.Clock
	logger    zerolog.Logger
}

// NewChatService creates the chat service.
func NewChatService(providers *ProviderManager, clock ports.Clock, logger zerolog.Logger) *ChatService {
	return &ChatService{
		providers: providers,
		clock:     clock,
		logger:    logger.With().Str("component", "chat").Logger(),
	}
}

// Chat sends a message and returns the reply with execution metadata.
// An empty provider uses the configured default, with ordered fallback
// through the remaining providers on failure.
func (s *ChatService) Chat(ctx context.Context, message string, provider agent.Provider) (agent.ChatResult, error) {
	start := s.clock.Now()

	completion, used, err := s.providers.Complete(ctx, provider, ports.CompletionRequest{
		System: chatSystemPrompt,
		Prompt: message,
	})
	if err != nil {
		return agent.ChatResult{}, err
	}

	result := agent.ChatResult{
		Reply:      completion.Content,
		Provider:   used,
		Model:      completion.Model,
		TokensUsed: completion.TokensUsed,
		Duration:   s.clock.Now().Sub(start).Seconds(),
	}

	s.logger.Info().
		Str("provider", string(used)).
		Str("model", completion.Model).
		Int("reply_length", len(completion.Content)).
		Msg("chat message processed")

	return result, nil
}
