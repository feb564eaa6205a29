package agent_test

import (
	"testing"

	"github.com/agentgate/agentgate/domain/agent"
)

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"openai", "xai", "anthropic"} {
		p, err := agent.ParseProvider(name)
		if err != nil {
			t.Errorf("ParseProvider(%q): %v", name, err)
		}
		if string(p) != name {
			t.Errorf("ParseProvider(%q) = %q", name, p)
		}
	}

	if _, err := agent.ParseProvider("gemini"); err == nil {
		t.Error("ParseProvider accepted an unknown provider")
	}
	if _, err := agent.ParseProvider(""); err == nil {
		t.Error("ParseProvider accepted an empty provider")
	}
}

func TestParseDepth(t *testing.T) {
	d, err := agent.ParseDepth("")
	if err != nil {
		t.Fatalf("ParseDepth(\"\"): %v", err)
	}
	if d != agent.DepthStandard {
		t.Errorf("empty depth = %q, want standard", d)
	}

	for _, name := range []string{"quick", "standard", "deep"} {
		if _, err := agent.ParseDepth(name); err != nil {
			t.Errorf("ParseDepth(%q): %v", name, err)
		}
	}

	if _, err := agent.ParseDepth("extreme"); err == nil {
		t.Error("ParseDepth accepted an unknown depth")
	}
}

func TestExtractSources(t *testing.T) {
	markdown := `# Note

See [Go blog](https://go.dev/blog) and [spec](https://go.dev/ref/spec).
Duplicate: [again](https://go.dev/blog). Not a link: https://example.com.`

	sources := agent.ExtractSources(markdown)
	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2 (deduplicated)", len(sources))
	}
	if sources[0].URL != "https://go.dev/blog" || sources[0].Title != "Go blog" {
		t.Errorf("sources[0] = %+v", sources[0])
	}
	if sources[1].URL != "https://go.dev/ref/spec" {
		t.Errorf("sources[1] = %+v", sources[1])
	}
}

func TestExtractSources_None(t *testing.T) {
	if got := agent.ExtractSources("plain text, no links"); got != nil {
		t.Errorf("ExtractSources = %v, want nil", got)
	}
}
