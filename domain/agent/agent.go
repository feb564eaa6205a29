// Package agent provides value types shared by the chat and research
// agents: provider identity, research depth, and execution results.
// This package has NO dependencies on I/O or external packages.
package agent

import (
	"fmt"
	"regexp"
)

// Provider identifies an LLM backend.
type Provider string

// Supported providers.
const (
	ProviderOpenAI    Provider = "openai"
	ProviderXAI       Provider = "xai"
	ProviderAnthropic Provider = "anthropic"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderOpenAI, ProviderXAI, ProviderAnthropic:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unsupported provider %q", s)
}

// ResearchDepth controls how thorough a research run is.
type ResearchDepth string

// Research depth levels.
const (
	DepthQuick    ResearchDepth = "quick"
	DepthStandard ResearchDepth = "standard"
	DepthDeep     ResearchDepth = "deep"
)

// ParseDepth validates a research depth, defaulting empty to standard.
func ParseDepth(s string) (ResearchDepth, error) {
	if s == "" {
		return DepthStandard, nil
	}
	switch ResearchDepth(s) {
	case DepthQuick, DepthStandard, DepthDeep:
		return ResearchDepth(s), nil
	}
	return "", fmt.Errorf("unsupported research depth %q", s)
}

// ChatResult is the outcome of one chat completion.
type ChatResult struct {
	Reply      string   `json:"reply"`
	Provider   Provider `json:"provider"`
	Model      string   `json:"model"`
	TokensUsed int64    `json:"tokens_used,omitempty"`
	Duration   float64  `json:"duration_seconds"`
}

// SourceRef is a structured source citation extracted from markdown.
type SourceRef struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ResearchMetadata describes how a research result was produced.
type ResearchMetadata struct {
	Provider     Provider      `json:"provider"`
	Model        string        `json:"model"`
	Depth        ResearchDepth `json:"depth"`
	Duration     float64       `json:"duration_seconds"`
	TokensUsed   int64         `json:"tokens_used,omitempty"`
	SourcesCount int           `json:"sources_count"`
}

// ResearchResult is the outcome of one research run.
type ResearchResult struct {
	Topic    string           `json:"topic"`
	Markdown string           `json:"markdown"`
	Sources  []SourceRef      `json:"sources"`
	Metadata ResearchMetadata `json:"metadata"`
}

// markdownLink matches [title](http...) style references.
var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^\s)]+)\)`)

// ExtractSources pulls markdown-link citations out of generated text,
// deduplicating by URL in first-seen order.
// This is a PURE function.
func ExtractSources(markdown string) []SourceRef {
	matches := markdownLink.FindAllStringSubmatch(markdown, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	sources := make([]SourceRef, 0, len(matches))
	for _, m := range matches {
		title, url := m[1], m[2]
		if seen[url] {
			continue
		}
		seen[url] = true
		sources = append(sources, SourceRef{URL: url, Title: title})
	}
	return sources
}
