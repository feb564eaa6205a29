package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/agentgate/agentgate/domain/history"
	"github.com/agentgate/agentgate/domain/key"
	"github.com/agentgate/agentgate/domain/ratelimit"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyAPIKeyID
)

// devKeyID is the key identity used when authentication is disabled.
const devKeyID = "dev"

// RequestID returns the request id assigned by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// APIKeyID returns the authenticated key id, or empty before auth.
func APIKeyID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyAPIKeyID).(string)
	return id
}

// requestIDMiddleware assigns each request a UUID, honoring an inbound
// X-Request-ID, and echoes it on the response.
func (h *Handler) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			if h.deps.IDGen != nil {
				id = h.deps.IDGen.New()
			} else {
				id = uuid.New().String()
			}
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

// loggingMiddleware emits one structured event per request and appends a
// request-history entry. Health and metrics traffic is skipped.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
			return
		}

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		apiKeyID := APIKeyID(r.Context())

		event := h.deps.Logger.Info()
		if ww.Status() >= 500 {
			event = h.deps.Logger.Error()
		} else if ww.Status() >= 400 {
			event = h.deps.Logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Float64("duration_ms", durationMs).
			Str("request_id", RequestID(r.Context())).
			Str("api_key_id", apiKeyID).
			Msg("http request")

		if h.deps.History != nil {
			entry := history.RequestEntry{
				Timestamp:  h.now().UTC(),
				RequestID:  RequestID(r.Context()),
				APIKeyID:   apiKeyID,
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: ww.Status(),
				DurationMs: durationMs,
				Client:     r.RemoteAddr,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.deps.History.RecordRequest(ctx, entry); err != nil {
				h.deps.Logger.Error().Err(err).Msg("failed to record request history")
			}
		}
	})
}

// authMiddleware resolves the API key from X-API-Key or a Bearer token.
// Missing, malformed, or unknown keys are 401; revoked keys are 403.
// With auth disabled every request runs as the dev key.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.deps.AuthEnabled {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyAPIKeyID, devKeyID)))
			return
		}

		raw := extractAPIKey(r)
		if raw == "" {
			h.authFailure(w, "missing_api_key", http.StatusUnauthorized, "API key is required")
			return
		}
		if !key.ValidFormat(h.keyPrefix(), raw) {
			h.authFailure(w, "invalid_api_key", http.StatusUnauthorized, "The provided API key is invalid")
			return
		}

		k, ok := h.deps.Keys.GetByHash(r.Context(), key.Hash(raw))
		if !ok || !key.Verify(raw, k) {
			if ok && !k.Active() {
				h.authFailure(w, "revoked_api_key", http.StatusForbidden, "The provided API key has been revoked")
				return
			}
			h.authFailure(w, "invalid_api_key", http.StatusUnauthorized, "The provided API key is invalid")
			return
		}

		h.deps.Keys.UpdateLastUsed(r.Context(), k.ID, h.now())
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyAPIKeyID, k.ID)))
	})
}

func (h *Handler) authFailure(w http.ResponseWriter, code string, status int, msg string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.AuthFailures.WithLabelValues(code).Inc()
	}
	writeError(w, status, code, msg)
}

// rateLimitMiddleware enforces the limiter for one agent scope, setting
// X-RateLimit headers on every response and 429 + Retry-After on deny.
func (h *Handler) rateLimitMiddleware(scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.deps.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			decision := h.deps.Limiter.ConsumeRequest(APIKeyID(r.Context()), scope)
			for k, v := range ratelimit.Headers(decision) {
				w.Header().Set(k, v)
			}
			if decision != nil && !decision.Allowed {
				writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", decision.Detail)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) keyPrefix() string {
	if h.deps.KeyPrefix != "" {
		return h.deps.KeyPrefix
	}
	return key.DefaultPrefix
}

func (h *Handler) now() time.Time {
	if h.deps.Clock != nil {
		return h.deps.Clock.Now()
	}
	return time.Now()
}

// extractAPIKey pulls the key from the Authorization bearer token or the
// X-API-Key header.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}
