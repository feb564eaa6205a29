package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentgate/agentgate/domain/ratelimit"
	"github.com/agentgate/agentgate/ports"
	"github.com/rs/zerolog"
)

// RateLimitConfig configures the rate limit service.
type RateLimitConfig struct {
	Enabled         bool
	Default         ratelimit.Policy
	Agents          map[string]ratelimit.Policy
	CleanupInterval time.Duration
}

// RateLimitService tracks usage in memory and evaluates per-key,
// per-agent-scope limits across three dimensions and three windows.
//
// One mutex guards the whole usage map. Both ConsumeRequest and
// RecordUsage hold it for their full check-or-commit sequence, so two
// concurrent calls can never interleave a check with a stale commit.
// Nothing under the lock performs I/O.
type RateLimitService struct {
	mu          sync.Mutex
	cfg         RateLimitConfig
	usage       map[ratelimit.CounterKey]float64
	lastCleanup time.Time // monotonic reading via clock.Now()

	clock   ports.Clock
	metrics RateLimitMetrics
	logger  zerolog.Logger
}

// RateLimitMetrics receives rate limiter instrumentation events.
// A nil-safe no-op is used when metrics are disabled.
type RateLimitMetrics interface {
	RateLimitDenied(dimension, window string)
	RateLimitUsage(dimension string, amount float64)
}

type noopRateLimitMetrics struct{}

func (noopRateLimitMetrics) RateLimitDenied(string, string) {}
func (noopRateLimitMetrics) RateLimitUsage(string, float64) {}

// NewRateLimitService creates the rate limit service.
func NewRateLimitService(cfg RateLimitConfig, clock ports.Clock, metrics RateLimitMetrics, logger zerolog.Logger) *RateLimitService {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if metrics == nil {
		metrics = noopRateLimitMetrics{}
	}
	return &RateLimitService{
		cfg:         cfg,
		usage:       make(map[ratelimit.CounterKey]float64),
		lastCleanup: clock.Now(),
		clock:       clock,
		metrics:     metrics,
		logger:      logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Enabled reports whether rate limiting is active.
func (s *RateLimitService) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// UpdatePolicies swaps in new policies, e.g. after a config reload.
// Existing counters are kept; only the ceilings change.
func (s *RateLimitService) UpdatePolicies(cfg RateLimitConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = s.cfg.CleanupInterval
	}
	s.cfg = cfg
}

// ConsumeRequest evaluates all configured limits for one inbound request
// and, if every dimension has headroom, commits one request across all
// configured request windows. Returns nil when rate limiting is
// disabled. Denials never mutate counters.
func (s *RateLimitService) ConsumeRequest(apiKeyID, agent string) *ratelimit.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		return nil
	}

	nowT := s.clock.Now()
	now := float64(nowT.UnixNano()) / 1e9
	s.cleanupIfNeeded(nowT)

	policy := s.resolvePolicy(agent)

	// Validate every dimension before mutating anything. The requests
	// dimension projects the would-be increment; tokens and cost are
	// recorded after execution, so their check is "already at or above
	// the limit".
	for _, dim := range ratelimit.Dimensions {
		increment := 0.0
		if dim == ratelimit.DimensionRequests {
			increment = 1.0
		}
		if denied := s.firstExceeded(apiKeyID, agent, policy, dim, increment, now); denied != nil {
			s.metrics.RateLimitDenied(string(denied.Dimension), string(denied.Window))
			s.logger.Debug().
				Str("api_key_id", apiKeyID).
				Str("agent", agent).
				Str("dimension", string(denied.Dimension)).
				Str("window", string(denied.Window)).
				Msg("rate limit exceeded")
			return denied
		}
	}

	// Commit: one request into every configured requests-window bucket.
	for _, lim := range policy.Limits(ratelimit.DimensionRequests) {
		k := ratelimit.NewCounterKey(apiKeyID, agent, ratelimit.DimensionRequests, lim.WindowSeconds, int64(now))
		s.usage[k]++
	}
	s.metrics.RateLimitUsage(string(ratelimit.DimensionRequests), 1)

	return s.primaryRequestDecision(apiKeyID, agent, policy, now)
}

// RecordUsage adds post-execution token and cost consumption to every
// configured window for those dimensions. A call with zero tokens and
// zero cost is a no-op.
func (s *RateLimitService) RecordUsage(apiKeyID, agent string, tokens int64, estimatedCost float64) {
	if tokens < 0 {
		tokens = 0
	}
	if estimatedCost < 0 {
		estimatedCost = 0
	}
	if tokens == 0 && estimatedCost == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		return
	}

	nowT := s.clock.Now()
	now := float64(nowT.UnixNano()) / 1e9
	s.cleanupIfNeeded(nowT)

	policy := s.resolvePolicy(agent)

	if tokens > 0 {
		s.increment(apiKeyID, agent, policy, ratelimit.DimensionTokens, float64(tokens), now)
		s.metrics.RateLimitUsage(string(ratelimit.DimensionTokens), float64(tokens))
	}
	if estimatedCost > 0 {
		s.increment(apiKeyID, agent, policy, ratelimit.DimensionCost, estimatedCost, now)
		s.metrics.RateLimitUsage(string(ratelimit.DimensionCost), estimatedCost)
	}
}

func (s *RateLimitService) resolvePolicy(agent string) ratelimit.Policy {
	override, ok := s.cfg.Agents[agent]
	if !ok {
		return s.cfg.Default
	}
	return ratelimit.Resolve(s.cfg.Default, &override)
}

// firstExceeded returns a deny decision for the first window (in stable
// minute/hour/day order) where projected usage exceeds the ceiling, or
// nil if the dimension has headroom everywhere.
func (s *RateLimitService) firstExceeded(apiKeyID, agent string, policy ratelimit.Policy, dim ratelimit.Dimension, increment, now float64) *ratelimit.Decision {
	for _, lim := range policy.Limits(dim) {
		k := ratelimit.NewCounterKey(apiKeyID, agent, dim, lim.WindowSeconds, int64(now))
		used := s.usage[k]

		var exceeded bool
		if increment > 0 {
			exceeded = used+increment > lim.Value+ratelimit.Epsilon
		} else {
			exceeded = used >= lim.Value-ratelimit.Epsilon
		}
		if !exceeded {
			continue
		}

		resetAt := k.BucketStart + lim.WindowSeconds
		remaining := lim.Value - used
		if remaining < 0 {
			remaining = 0
		}
		return &ratelimit.Decision{
			Allowed:           false,
			Dimension:         dim,
			Window:            lim.Window,
			Limit:             lim.Value,
			Used:              used,
			Remaining:         remaining,
			ResetAt:           resetAt,
			RetryAfterSeconds: ratelimit.RetryAfter(resetAt, now),
			Detail:            fmt.Sprintf("Rate limit exceeded for %s per %s", dim, lim.Window),
		}
	}
	return nil
}

// primaryRequestDecision picks the allowed decision to surface in
// response headers: the requests window with the smallest
// remaining-to-limit ratio, i.e. the tightest margin, which may not be
// the shortest window.
func (s *RateLimitService) primaryRequestDecision(apiKeyID, agent string, policy ratelimit.Policy, now float64) *ratelimit.Decision {
	var best *ratelimit.Decision
	bestScore := 0.0

	for _, lim := range policy.Limits(ratelimit.DimensionRequests) {
		k := ratelimit.NewCounterKey(apiKeyID, agent, ratelimit.DimensionRequests, lim.WindowSeconds, int64(now))
		used := s.usage[k]
		remaining := lim.Value - used
		if remaining < 0 {
			remaining = 0
		}
		score := 0.0
		if lim.Value > 0 {
			score = remaining / lim.Value
		}

		if best == nil || score < bestScore {
			best = &ratelimit.Decision{
				Allowed:   true,
				Dimension: ratelimit.DimensionRequests,
				Window:    lim.Window,
				Limit:     lim.Value,
				Used:      used,
				Remaining: remaining,
				ResetAt:   k.BucketStart + lim.WindowSeconds,
				Detail:    "Rate limit check passed",
			}
			bestScore = score
		}
	}
	return best
}

func (s *RateLimitService) increment(apiKeyID, agent string, policy ratelimit.Policy, dim ratelimit.Dimension, amount, now float64) {
	for _, lim := range policy.Limits(dim) {
		k := ratelimit.NewCounterKey(apiKeyID, agent, dim, lim.WindowSeconds, int64(now))
		s.usage[k] += amount
	}
}

// cleanupIfNeeded evicts buckets that fully expired more than the
// largest window ago. Runs inline on the configured interval so no
// separate sweeper goroutine is needed; elapsed time is measured with
// the clock's monotonic reading.
func (s *RateLimitService) cleanupIfNeeded(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cfg.CleanupInterval {
		return
	}

	cutoff := now.Unix() - ratelimit.MaxWindowSeconds
	removed := 0
	for k := range s.usage {
		if k.BucketStart+k.WindowSeconds < cutoff {
			delete(s.usage, k)
			removed++
		}
	}
	s.lastCleanup = now

	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("stale rate limit buckets evicted")
	}
}
