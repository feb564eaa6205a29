package app_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentgate/agentgate/adapters/clock"
	"github.com/agentgate/agentgate/app"
	"github.com/agentgate/agentgate/domain/ratelimit"
)

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

// baseTime sits on a day boundary so minute, hour, and day buckets all
// start together.
var baseTime = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func newLimiter(t *testing.T, cfg app.RateLimitConfig) (*app.RateLimitService, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(baseTime)
	svc := app.NewRateLimitService(cfg, clk, nil, zerolog.Nop())
	return svc, clk
}

func TestConsumeRequest_DisabledReturnsNil(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: false,
		Default: ratelimit.Policy{RequestsPerMinute: i64(1)},
	})

	for i := 0; i < 5; i++ {
		if d := svc.ConsumeRequest("key1", "chat"); d != nil {
			t.Fatalf("decision = %+v, want nil when disabled", d)
		}
	}
}

func TestConsumeRequest_AllowsWithinLimit(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{RequestsPerMinute: i64(3)},
	})

	d := svc.ConsumeRequest("key1", "chat")
	if d == nil || !d.Allowed {
		t.Fatalf("decision = %+v, want allowed", d)
	}
	if d.Used != 1 {
		t.Errorf("used = %v, want 1 (post-commit)", d.Used)
	}
	if d.Remaining != 2 {
		t.Errorf("remaining = %v, want 2", d.Remaining)
	}
	if d.Window != ratelimit.WindowMinute {
		t.Errorf("window = %q, want minute", d.Window)
	}
}

func TestConsumeRequest_DeniesAtLimit(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{RequestsPerMinute: i64(1)},
	})

	if d := svc.ConsumeRequest("key1", "chat"); d == nil || !d.Allowed {
		t.Fatalf("first request: %+v, want allowed", d)
	}

	d := svc.ConsumeRequest("key1", "chat")
	if d == nil || d.Allowed {
		t.Fatalf("second request: %+v, want denied", d)
	}
	if d.Dimension != ratelimit.DimensionRequests || d.Window != ratelimit.WindowMinute {
		t.Errorf("denied on %s/%s, want requests/minute", d.Dimension, d.Window)
	}
	if d.RetryAfterSeconds < 1 {
		t.Errorf("retry after = %d, want at least 1", d.RetryAfterSeconds)
	}
}

func TestConsumeRequest_DenialDoesNotMutate(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{RequestsPerMinute: i64(1)},
	})

	svc.ConsumeRequest("key1", "chat")

	// Repeated denials must keep reporting the same usage; a denial that
	// incremented counters would show used climbing.
	for i := 0; i < 3; i++ {
		d := svc.ConsumeRequest("key1", "chat")
		if d.Allowed {
			t.Fatalf("request %d allowed, want denied", i+2)
		}
		if d.Used != 1 {
			t.Errorf("denial %d reports used = %v, want 1", i+1, d.Used)
		}
	}
}

func TestConsumeRequest_NewBucketResets(t *testing.T) {
	svc, clk := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{RequestsPerMinute: i64(1)},
	})

	svc.ConsumeRequest("key1", "chat")
	if d := svc.ConsumeRequest("key1", "chat"); d.Allowed {
		t.Fatal("second request in same minute allowed, want denied")
	}

	clk.Advance(time.Minute)
	if d := svc.ConsumeRequest("key1", "chat"); d == nil || !d.Allowed {
		t.Fatalf("request in next minute bucket: %+v, want allowed", d)
	}
}

func TestConsumeRequest_KeysAndAgentsIsolated(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{RequestsPerMinute: i64(1)},
	})

	svc.ConsumeRequest("key1", "chat")
	if d := svc.ConsumeRequest("key1", "chat"); d.Allowed {
		t.Fatal("key1/chat second request allowed, want denied")
	}

	if d := svc.ConsumeRequest("key2", "chat"); d == nil || !d.Allowed {
		t.Errorf("key2 blocked by key1's usage: %+v", d)
	}
	if d := svc.ConsumeRequest("key1", "research"); d == nil || !d.Allowed {
		t.Errorf("research scope blocked by chat usage: %+v", d)
	}
}

func TestRecordUsage_TokensBlockAtLimit(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{
			RequestsPerMinute: i64(100),
			TokensPerMinute:   i64(1000),
		},
	})

	if d := svc.ConsumeRequest("key1", "chat"); !d.Allowed {
		t.Fatal("request before usage denied")
	}

	// Tokens under the limit do not block.
	svc.RecordUsage("key1", "chat", 999, 0)
	if d := svc.ConsumeRequest("key1", "chat"); !d.Allowed {
		t.Fatalf("denied with tokens below limit: %+v", d)
	}

	// At or above the limit blocks subsequent requests.
	svc.RecordUsage("key1", "chat", 1, 0)
	d := svc.ConsumeRequest("key1", "chat")
	if d.Allowed {
		t.Fatal("allowed with tokens at limit, want denied")
	}
	if d.Dimension != ratelimit.DimensionTokens {
		t.Errorf("denied on %s, want tokens", d.Dimension)
	}
}

func TestRecordUsage_CostBlocksAtLimit(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{
			RequestsPerMinute: i64(100),
			CostPerDay:        f64(1.0),
		},
	})

	svc.RecordUsage("key1", "chat", 0, 0.5)
	if d := svc.ConsumeRequest("key1", "chat"); !d.Allowed {
		t.Fatalf("denied below cost limit: %+v", d)
	}

	svc.RecordUsage("key1", "chat", 0, 0.5)
	d := svc.ConsumeRequest("key1", "chat")
	if d.Allowed {
		t.Fatal("allowed at cost limit, want denied")
	}
	if d.Dimension != ratelimit.DimensionCost || d.Window != ratelimit.WindowDay {
		t.Errorf("denied on %s/%s, want cost/day", d.Dimension, d.Window)
	}
}

func TestRecordUsage_ZeroIsNoop(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{
			RequestsPerMinute: i64(100),
			TokensPerMinute:   i64(1),
		},
	})

	svc.RecordUsage("key1", "chat", 0, 0)
	svc.RecordUsage("key1", "chat", -5, -1)

	if d := svc.ConsumeRequest("key1", "chat"); !d.Allowed {
		t.Errorf("zero usage affected counters: %+v", d)
	}
}

func TestConsumeRequest_DeniesOnFirstExceededWindow(t *testing.T) {
	// The minute window is checked before hour and day.
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{
			RequestsPerMinute: i64(1),
			RequestsPerHour:   i64(1),
		},
	})

	svc.ConsumeRequest("key1", "chat")
	d := svc.ConsumeRequest("key1", "chat")
	if d.Allowed {
		t.Fatal("want denied")
	}
	if d.Window != ratelimit.WindowMinute {
		t.Errorf("denied window = %q, want minute (checked first)", d.Window)
	}
}

func TestConsumeRequest_SurfacesTightestWindow(t *testing.T) {
	// Allowed decisions surface the window with the smallest
	// remaining-to-limit ratio, not the shortest window.
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{
			RequestsPerMinute: i64(100),
			RequestsPerHour:   i64(10),
		},
	})

	var d *ratelimit.Decision
	for i := 0; i < 5; i++ {
		d = svc.ConsumeRequest("key1", "chat")
	}
	if d == nil || !d.Allowed {
		t.Fatalf("decision = %+v, want allowed", d)
	}
	// minute: 95/100 remaining; hour: 5/10 remaining -> hour is tighter.
	if d.Window != ratelimit.WindowHour {
		t.Errorf("surfaced window = %q, want hour", d.Window)
	}
	if d.Remaining != 5 {
		t.Errorf("remaining = %v, want 5", d.Remaining)
	}
}

func TestAgentOverride_MergesFieldByField(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{
			RequestsPerMinute: i64(10),
			TokensPerMinute:   i64(100),
		},
		Agents: map[string]ratelimit.Policy{
			"research": {RequestsPerMinute: i64(1)},
		},
	})

	// Override applies to the research scope.
	svc.ConsumeRequest("key1", "research")
	if d := svc.ConsumeRequest("key1", "research"); d.Allowed {
		t.Fatal("research second request allowed, want denied by override")
	}

	// The token ceiling is inherited from the default policy.
	svc.RecordUsage("key1", "chat", 100, 0)
	d := svc.ConsumeRequest("key1", "chat")
	if d.Allowed {
		t.Fatal("chat allowed at inherited token limit, want denied")
	}
	if d.Dimension != ratelimit.DimensionTokens {
		t.Errorf("denied on %s, want tokens", d.Dimension)
	}
}

func TestUpdatePolicies_AppliesImmediately(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{RequestsPerMinute: i64(1)},
	})

	svc.ConsumeRequest("key1", "chat")
	if d := svc.ConsumeRequest("key1", "chat"); d.Allowed {
		t.Fatal("want denied before policy update")
	}

	svc.UpdatePolicies(app.RateLimitConfig{
		Enabled: true,
		Default: ratelimit.Policy{RequestsPerMinute: i64(10)},
	})

	// Counters survive the update; only the ceiling changed.
	d := svc.ConsumeRequest("key1", "chat")
	if d == nil || !d.Allowed {
		t.Fatalf("decision after raising limit = %+v, want allowed", d)
	}
	if d.Used != 2 {
		t.Errorf("used = %v, want 2 (counters kept)", d.Used)
	}
}

func TestUnlimitedPolicyAlwaysAllows(t *testing.T) {
	svc, _ := newLimiter(t, app.RateLimitConfig{Enabled: true})

	for i := 0; i < 100; i++ {
		d := svc.ConsumeRequest("key1", "chat")
		// No configured ceilings: nothing to deny and no primary window
		// to surface.
		if d != nil {
			t.Fatalf("decision = %+v, want nil for unlimited policy", d)
		}
	}
}
