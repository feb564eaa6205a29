package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentgate/agentgate/domain/agent"
	"github.com/agentgate/agentgate/ports"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var depthInstructions = map[agent.ResearchDepth]string{
	agent.DepthQuick:    "Keep the analysis concise. Focus on 3-5 key points.",
	agent.DepthStandard: "Provide balanced coverage with clear key points and practical implications.",
	agent.DepthDeep:     "Provide deep analysis with nuanced trade-offs, competing views, and detailed evidence.",
}

// ResearchService produces Obsidian-ready research notes.
type ResearchService struct {
	providers *ProviderManager
	clock     ports.Clock
	logger    zerolog.Logger
}

// NewResearchService creates the research service.
func NewResearchService(providers *ProviderManager, clock ports.Clock, logger zerolog.Logger) *ResearchService {
	return &ResearchService{
		providers: providers,
		clock:     clock,
		logger:    logger.With().Str("component", "research").Logger(),
	}
}

// Research runs a research completion for the topic and assembles a
// markdown note with YAML frontmatter, extracted sources, and execution
// metadata.
func (s *ResearchService) Research(ctx context.Context, topic string, depth agent.ResearchDepth, provider agent.Provider, focusAreas []string) (agent.ResearchResult, error) {
	if depth == "" {
		depth = agent.DepthStandard
	}
	start := s.clock.Now()

	completion, used, err := s.providers.Complete(ctx, provider, ports.CompletionRequest{
		System: buildResearchSystem(depth, focusAreas),
		Prompt: buildResearchPrompt(topic, depth, focusAreas),
	})
	if err != nil {
		return agent.ResearchResult{}, err
	}

	body := stripWrappingFence(completion.Content)
	sources := agent.ExtractSources(body)
	markdown := s.formatMarkdown(topic, depth, used, completion.Model, body, sources)
	duration := s.clock.Now().Sub(start).Seconds()

	s.logger.Info().
		Str("provider", string(used)).
		Str("model", completion.Model).
		Str("depth", string(depth)).
		Int("sources", len(sources)).
		Msg("research completed")

	return agent.ResearchResult{
		Topic:    topic,
		Markdown: markdown,
		Sources:  sources,
		Metadata: agent.ResearchMetadata{
			Provider:     used,
			Model:        completion.Model,
			Depth:        depth,
			Duration:     duration,
			TokensUsed:   completion.TokensUsed,
			SourcesCount: len(sources),
		},
	}, nil
}

func buildResearchSystem(depth agent.ResearchDepth, focusAreas []string) string {
	lines := []string{
		"You are a research analyst producing Obsidian markdown notes.",
		"Cite claims with links whenever possible.",
		"Structure output with sections: Overview, Key Points, Details, Sources.",
		depthInstructions[depth],
		"Use markdown only in your response.",
	}
	if len(focusAreas) > 0 {
		lines = append(lines, "Prioritize these focus areas: "+strings.Join(focusAreas, ", "))
	}
	return strings.Join(lines, "\n")
}

func buildResearchPrompt(topic string, depth agent.ResearchDepth, focusAreas []string) string {
	lines := []string{
		"Research topic: " + topic,
		"Depth: " + string(depth),
		"Produce an Obsidian-compatible note with citations and links.",
	}
	if len(focusAreas) > 0 {
		lines = append(lines, "Focus areas: "+strings.Join(focusAreas, ", "))
	}
	return strings.Join(lines, "\n")
}

var (
	wrappingFence = regexp.MustCompile("(?s)^```(?:markdown|md)?\\s*\\n(.*?)\\n```$")
	topHeading    = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	sourcesHead   = regexp.MustCompile(`(?m)^##\s+Sources\b`)
)

// stripWrappingFence removes a single fenced block wrapping the whole
// response, which some models emit despite instructions.
func stripWrappingFence(body string) string {
	text := strings.TrimSpace(body)
	if m := wrappingFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

func (s *ResearchService) formatMarkdown(topic string, depth agent.ResearchDepth, provider agent.Provider, model, body string, sources []agent.SourceRef) string {
	title := strings.TrimSpace(topic)
	if m := topHeading.FindStringSubmatch(body); m != nil {
		title = strings.TrimSpace(m[1])
	} else {
		body = "# " + title + "\n\n" + body
	}

	body = appendSourcesIfMissing(body, sources)

	sourceURLs := make([]string, len(sources))
	for i, src := range sources {
		sourceURLs[i] = src.URL
	}

	frontmatter := map[string]any{
		"title":    title,
		"topic":    topic,
		"date":     s.clock.Now().UTC().Format("2006-01-02"),
		"tags":     []string{"research", "ai-generated"},
		"agent":    "research",
		"depth":    string(depth),
		"provider": string(provider),
		"model":    model,
		"sources":  sourceURLs,
	}
	yamlBlock, err := yaml.Marshal(frontmatter)
	if err != nil {
		// Frontmatter is best-effort decoration; the note body stands alone.
		return body + "\n"
	}

	return "---\n" + strings.TrimSpace(string(yamlBlock)) + "\n---\n\n" + body + "\n"
}

func appendSourcesIfMissing(body string, sources []agent.SourceRef) string {
	if sourcesHead.MatchString(body) {
		return body
	}
	if len(sources) == 0 {
		return body + "\n\n## Sources\n\n- No explicit citations were returned by the provider."
	}

	lines := make([]string, len(sources))
	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = src.URL
		}
		lines[i] = fmt.Sprintf("%d. [%s](%s)", i+1, title, src.URL)
	}
	return body + "\n\n## Sources\n\n" + strings.Join(lines, "\n")
}
