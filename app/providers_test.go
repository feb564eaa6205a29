package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentgate/agentgate/adapters/clock"
	"github.com/agentgate/agentgate/app"
	"github.com/agentgate/agentgate/domain/agent"
	"github.com/agentgate/agentgate/ports"
)

// stubLLM is a canned LLM backend.
type stubLLM struct {
	model   string
	content string
	tokens  int64
	err     error
	calls   int
}

func (s *stubLLM) Complete(ctx context.Context, req ports.CompletionRequest) (ports.Completion, error) {
	s.calls++
	if s.err != nil {
		return ports.Completion{}, s.err
	}
	return ports.Completion{Content: s.content, Model: s.model, TokensUsed: s.tokens}, nil
}

func (s *stubLLM) Model() string { return s.model }

func TestProviderManager_DefaultAndFallback(t *testing.T) {
	m := app.NewProviderManager(map[agent.Provider]ports.LLMClient{
		agent.ProviderXAI: &stubLLM{model: "grok"},
	}, agent.ProviderOpenAI, zerolog.Nop())

	// Configured default is not enabled; the first available wins.
	def, err := m.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if def != agent.ProviderXAI {
		t.Errorf("default = %q, want xai fallback", def)
	}
}

func TestProviderManager_NoProviders(t *testing.T) {
	m := app.NewProviderManager(nil, agent.ProviderOpenAI, zerolog.Nop())

	if _, err := m.Default(); !errors.Is(err, app.ErrProviderNotConfigured) {
		t.Errorf("Default = %v, want ErrProviderNotConfigured", err)
	}
	_, _, err := m.Complete(context.Background(), "", ports.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, app.ErrProviderNotConfigured) {
		t.Errorf("Complete = %v, want ErrProviderNotConfigured", err)
	}
}

func TestProviderManager_UnknownPreferred(t *testing.T) {
	m := app.NewProviderManager(map[agent.Provider]ports.LLMClient{
		agent.ProviderOpenAI: &stubLLM{model: "gpt"},
	}, agent.ProviderOpenAI, zerolog.Nop())

	_, _, err := m.Complete(context.Background(), agent.ProviderAnthropic, ports.CompletionRequest{Prompt: "hi"})
	if !errors.Is(err, app.ErrProviderNotConfigured) {
		t.Errorf("Complete with unconfigured preferred = %v, want ErrProviderNotConfigured", err)
	}
}

func TestProviderManager_FallsThroughOnFailure(t *testing.T) {
	broken := &stubLLM{model: "gpt", err: errors.New("upstream 500")}
	working := &stubLLM{model: "claude", content: "answer"}

	m := app.NewProviderManager(map[agent.Provider]ports.LLMClient{
		agent.ProviderOpenAI:    broken,
		agent.ProviderAnthropic: working,
	}, agent.ProviderOpenAI, zerolog.Nop())

	completion, used, err := m.Complete(context.Background(), "", ports.CompletionRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if used != agent.ProviderAnthropic {
		t.Errorf("used = %q, want anthropic fallback", used)
	}
	if completion.Content != "answer" {
		t.Errorf("content = %q", completion.Content)
	}
	if broken.calls != 1 || working.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", broken.calls, working.calls)
	}
}

func TestProviderManager_AllFail(t *testing.T) {
	m := app.NewProviderManager(map[agent.Provider]ports.LLMClient{
		agent.ProviderOpenAI: &stubLLM{model: "gpt", err: errors.New("down")},
	}, agent.ProviderOpenAI, zerolog.Nop())

	_, _, err := m.Complete(context.Background(), "", ports.CompletionRequest{Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "all providers failed") {
		t.Errorf("Complete = %v, want all-providers-failed error", err)
	}
}

func TestProviderManager_Available_StableOrder(t *testing.T) {
	m := app.NewProviderManager(map[agent.Provider]ports.LLMClient{
		agent.ProviderAnthropic: &stubLLM{model: "claude"},
		agent.ProviderOpenAI:    &stubLLM{model: "gpt"},
	}, agent.ProviderOpenAI, zerolog.Nop())

	available := m.Available()
	if len(available) != 2 {
		t.Fatalf("available = %v", available)
	}
	if available[0] != agent.ProviderOpenAI || available[1] != agent.ProviderAnthropic {
		t.Errorf("order = %v, want [openai anthropic]", available)
	}
}

func TestChatService(t *testing.T) {
	stub := &stubLLM{model: "gpt", content: "hello back", tokens: 42}
	providers := app.NewProviderManager(map[agent.Provider]ports.LLMClient{
		agent.ProviderOpenAI: stub,
	}, agent.ProviderOpenAI, zerolog.Nop())
	clk := clock.NewFake(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	svc := app.NewChatService(providers, clk, zerolog.Nop())
	result, err := svc.Chat(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Reply != "hello back" {
		t.Errorf("reply = %q", result.Reply)
	}
	if result.Provider != agent.ProviderOpenAI || result.Model != "gpt" {
		t.Errorf("provider/model = %q/%q", result.Provider, result.Model)
	}
	if result.TokensUsed != 42 {
		t.Errorf("tokens = %d, want 42", result.TokensUsed)
	}
}

func TestResearchService_BuildsMarkdownNote(t *testing.T) {
	stub := &stubLLM{
		model:  "claude",
		tokens: 100,
		content: "# QUIC Protocol\n\nOverview of [RFC 9000](https://www.rfc-editor.org/rfc/rfc9000)." +
			"\n\n## Sources\n\n1. [RFC 9000](https://www.rfc-editor.org/rfc/rfc9000)",
	}
	providers := app.NewProviderManager(map[agent.Provider]ports.LLMClient{
		agent.ProviderAnthropic: stub,
	}, agent.ProviderAnthropic, zerolog.Nop())
	clk := clock.NewFake(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	svc := app.NewResearchService(providers, clk, zerolog.Nop())
	result, err := svc.Research(context.Background(), "QUIC", agent.DepthQuick, "", nil)
	if err != nil {
		t.Fatalf("Research: %v", err)
	}

	if !strings.HasPrefix(result.Markdown, "---\n") {
		t.Error("note missing YAML frontmatter")
	}
	if !strings.Contains(result.Markdown, "# QUIC Protocol") {
		t.Error("note missing title heading")
	}
	if len(result.Sources) != 1 || result.Sources[0].URL != "https://www.rfc-editor.org/rfc/rfc9000" {
		t.Errorf("sources = %+v", result.Sources)
	}
	if result.Metadata.Depth != agent.DepthQuick {
		t.Errorf("depth = %q", result.Metadata.Depth)
	}
	if result.Metadata.SourcesCount != 1 {
		t.Errorf("sources count = %d", result.Metadata.SourcesCount)
	}
}

func TestResearchService_StripsWrappingFenceAndAppendsSources(t *testing.T) {
	stub := &stubLLM{
		model:   "gpt",
		content: "```markdown\nBody without heading or sources.\n```",
	}
	providers := app.NewProviderManager(map[agent.Provider]ports.LLMClient{
		agent.ProviderOpenAI: stub,
	}, agent.ProviderOpenAI, zerolog.Nop())
	clk := clock.NewFake(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	svc := app.NewResearchService(providers, clk, zerolog.Nop())
	result, err := svc.Research(context.Background(), "fences", "", "", nil)
	if err != nil {
		t.Fatalf("Research: %v", err)
	}

	if strings.Contains(result.Markdown, "```") {
		t.Error("wrapping fence not stripped")
	}
	if !strings.Contains(result.Markdown, "# fences") {
		t.Error("missing synthesized title heading")
	}
	if !strings.Contains(result.Markdown, "## Sources") {
		t.Error("missing synthesized Sources section")
	}
	if result.Metadata.Depth != agent.DepthStandard {
		t.Errorf("empty depth = %q, want standard default", result.Metadata.Depth)
	}
}
