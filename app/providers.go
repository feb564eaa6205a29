package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentgate/agentgate/domain/agent"
	"github.com/agentgate/agentgate/ports"
	"github.com/rs/zerolog"
)

// ErrProviderNotConfigured is returned when a requested provider is not
// configured and enabled, or no provider is available at all.
var ErrProviderNotConfigured = errors.New("provider not configured")

// providerOrder is the stable candidate order for fallback.
var providerOrder = []agent.Provider{agent.ProviderOpenAI, agent.ProviderXAI, agent.ProviderAnthropic}

// ProviderManager holds the configured LLM backends and picks which one
// serves a request, falling back through the remaining providers in
// stable order when the preferred one fails.
type ProviderManager struct {
	clients         map[agent.Provider]ports.LLMClient
	defaultProvider agent.Provider
	logger          zerolog.Logger
}

// NewProviderManager creates a provider manager over the given clients.
func NewProviderManager(clients map[agent.Provider]ports.LLMClient, defaultProvider agent.Provider, logger zerolog.Logger) *ProviderManager {
	m := &ProviderManager{
		clients:         clients,
		defaultProvider: defaultProvider,
		logger:          logger.With().Str("component", "providers").Logger(),
	}
	if len(clients) == 0 {
		m.logger.Warn().Msg("no LLM providers are configured and enabled")
	}
	return m
}

// Available returns the configured providers in stable order.
func (m *ProviderManager) Available() []agent.Provider {
	out := make([]agent.Provider, 0, len(m.clients))
	for _, p := range providerOrder {
		if _, ok := m.clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Default returns the default provider, falling back to the first
// available one when the configured default is not enabled.
func (m *ProviderManager) Default() (agent.Provider, error) {
	if _, ok := m.clients[m.defaultProvider]; ok {
		return m.defaultProvider, nil
	}
	available := m.Available()
	if len(available) == 0 {
		return "", fmt.Errorf("%w: no providers available", ErrProviderNotConfigured)
	}
	m.logger.Warn().
		Str("requested", string(m.defaultProvider)).
		Str("fallback", string(available[0])).
		Msg("default provider not available, using fallback")
	return available[0], nil
}

// Client returns the client for a provider.
func (m *ProviderManager) Client(p agent.Provider) (ports.LLMClient, error) {
	c, ok := m.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, p)
	}
	return c, nil
}

// Complete runs a completion against the preferred provider (or the
// default when empty), retrying the remaining providers in order when a
// call fails. Context cancellation stops the loop immediately.
func (m *ProviderManager) Complete(ctx context.Context, preferred agent.Provider, req ports.CompletionRequest) (ports.Completion, agent.Provider, error) {
	candidates, err := m.candidates(preferred)
	if err != nil {
		return ports.Completion{}, "", err
	}

	var lastErr error
	for _, p := range candidates {
		if ctx.Err() != nil {
			return ports.Completion{}, "", ctx.Err()
		}

		completion, err := m.clients[p].Complete(ctx, req)
		if err == nil {
			return completion, p, nil
		}
		lastErr = err
		m.logger.Warn().Str("provider", string(p)).Err(err).Msg("provider call failed, trying next")
	}
	return ports.Completion{}, "", fmt.Errorf("all providers failed: %w", lastErr)
}

// candidates returns the preferred provider first, then the remaining
// available providers in stable order.
func (m *ProviderManager) candidates(preferred agent.Provider) ([]agent.Provider, error) {
	if preferred == "" {
		var err error
		preferred, err = m.Default()
		if err != nil {
			return nil, err
		}
	}
	if _, ok := m.clients[preferred]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, preferred)
	}

	out := []agent.Provider{preferred}
	for _, p := range m.Available() {
		if p != preferred {
			out = append(out, p)
		}
	}
	return out, nil
}
