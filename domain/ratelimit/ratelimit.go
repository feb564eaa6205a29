// Package ratelimit provides pure rate limiting types and algorithms for
// multi-dimensional admission control. All functions are deterministic -
// same input always produces same output. The stateful counter service
// lives in app.
package ratelimit

import (
	"math"
	"strconv"
	"strings"
)

// Dimension identifies a measured quantity.
type Dimension string

// Measured dimensions.
const (
	DimensionRequests Dimension = "requests"
	DimensionTokens   Dimension = "tokens"
	DimensionCost     Dimension = "cost"
)

// Dimensions lists all dimensions in stable evaluation order.
var Dimensions = []Dimension{DimensionRequests, DimensionTokens, DimensionCost}

// Window identifies a counting granularity.
type Window string

// Counting windows.
const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows lists all windows in stable evaluation order (shortest first).
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// Seconds returns the window length in seconds.
func (w Window) Seconds() int64 {
	switch w {
	case WindowMinute:
		return 60
	case WindowHour:
		return 3600
	case WindowDay:
		return 86400
	}
	return 0
}

// MaxWindowSeconds is the longest configured window length.
const MaxWindowSeconds int64 = 86400

// Epsilon absorbs floating point drift when comparing usage to limits.
const Epsilon = 1e-9

// CounterKey is the composite identity of one usage bucket (value type,
// usable as a map key).
type CounterKey struct {
	APIKeyID      string
	Agent         string
	Dimension     Dimension
	WindowSeconds int64
	BucketStart   int64
}

// BucketStart returns the start of the fixed bucket containing now.
// Buckets are aligned, non-overlapping intervals - not sliding windows.
func BucketStart(now int64, windowSeconds int64) int64 {
	return (now / windowSeconds) * windowSeconds
}

// NewCounterKey builds the counter key for the bucket containing now.
func NewCounterKey(apiKeyID, agent string, dim Dimension, windowSeconds, now int64) CounterKey {
	return CounterKey{
		APIKeyID:      apiKeyID,
		Agent:         agent,
		Dimension:     dim,
		WindowSeconds: windowSeconds,
		BucketStart:   BucketStart(now, windowSeconds),
	}
}

// Decision is the result of one rate limit evaluation (value type).
// It carries everything the HTTP layer needs for response headers.
type Decision struct {
	Allowed           bool
	Dimension         Dimension
	Window            Window
	Limit             float64
	Used              float64
	Remaining         float64
	ResetAt           int64 // epoch seconds
	RetryAfterSeconds int
	Detail            string
}

// RetryAfter computes the retry-after value for a denied bucket:
// ceil(resetAt - now), never below one second.
func RetryAfter(resetAt int64, now float64) int {
	after := int(math.Ceil(float64(resetAt) - now))
	if after < 1 {
		after = 1
	}
	return after
}

// Headers builds the X-RateLimit response headers for a decision.
// A nil decision (rate limiting disabled) produces no headers.
// Retry-After is included only when the request was denied.
func Headers(d *Decision) map[string]string {
	if d == nil {
		return nil
	}

	h := map[string]string{
		"X-RateLimit-Limit":     FormatAmount(d.Limit),
		"X-RateLimit-Remaining": FormatAmount(d.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(d.ResetAt, 10),
		"X-RateLimit-Dimension": string(d.Dimension),
		"X-RateLimit-Window":    string(d.Window),
	}
	if !d.Allowed {
		h["Retry-After"] = strconv.Itoa(d.RetryAfterSeconds)
	}
	return h
}

// FormatAmount renders a counter value for headers: whole numbers without
// a decimal point, fractional values as trimmed decimals.
func FormatAmount(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
