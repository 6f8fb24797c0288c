package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/gateway/ratelimit"
)

// RateLimited spends one token per request for the caller's address before
// handing off to Next.
type RateLimited struct {
	Limiter    *ratelimit.Limiter
	TrustProxy bool
	Logger     *slog.Logger
	Next       http.Handler
}

func (h RateLimited) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client := ratelimit.ClientKey(r, h.TrustProxy)
	dec := h.Limiter.Allow(client, time.Now())
	if !dec.Allowed {
		if h.Logger != nil {
			h.Logger.Debug("rate limited", "path", r.URL.Path, "client", client, "retry_after", dec.RetryAfter)
		}
		writeRateLimited(w, r, "too many requests", dec.RetryAfter)
		return
	}
	h.Next.ServeHTTP(w, r)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, message string, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeCoreError(w, r, http.StatusTooManyRequests, &core.Error{
		Type:       core.ErrRateLimit,
		Message:    message,
		Code:       "rate_limited",
		RetryAfter: &retryAfter,
	})
}
