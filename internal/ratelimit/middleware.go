package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/toko-fulfillment/internal/common"
)

// Allower admits or rejects a keyed event.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error)
}

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler enforces rate limits before delegating to the next handler. Limiter
// failures fail open and are reported through OnError.
type Handler struct {
	Limiter Allower
	Config  Config
	OnError func(error)
}

// ByClientIP keys requests by remote address, scoped by prefix. Pair it with
// chi's RealIP middleware so proxies are accounted for.
func ByClientIP(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		return prefix + addr
	}
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Config.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := max(int(time.Until(d.ResetAt).Seconds()), 0)
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, common.CodeRateLimited, "rate limit exceeded", map[string]int{"retryAfterSeconds": retryAfter})
			return
		}
		next.ServeHTTP(w, r)
	})
}
