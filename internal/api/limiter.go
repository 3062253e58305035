package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/afiqaffendi/rbs/internal/config"
)

// rateLimiter keeps one token bucket per client: API key, bearer token or remote address.
type rateLimiter struct {
	limiters     sync.Map // map[string]*rate.Limiter
	cfg          config.APIRateLimitConfig
	apiKeyHeader string
}

func newRateLimiter(cfg config.APIRateLimitConfig, apiKeyHeader string) *rateLimiter {
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	return &rateLimiter{
		cfg:          cfg,
		apiKeyHeader: apiKeyHeader,
	}
}

func (l *rateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.cfg.RPS > 0 && !l.getLimiter(l.clientKey(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *rateLimiter) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(l.apiKeyHeader)); apiKey != "" {
		return "key:" + digest(apiKey)
	}
	if tok := bearerToken(r); tok != "" {
		return "token:" + digest(tok)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return "ip:" + host
	}
	return "unknown"
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
