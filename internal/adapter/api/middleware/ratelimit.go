package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/V4T54L/tripflow/internal/adapter/api/handler"
	"github.com/V4T54L/tripflow/internal/adapter/metrics"
	"github.com/V4T54L/tripflow/internal/domain"
)

// RateLimit rejects requests from clients that exhausted their budget with
// 429 and a Retry-After header. Clients are identified by remote IP. A
// limiter error lets the request through. m may be nil.
func RateLimit(limiter domain.RateLimiter, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			ok, retryAfter, err := limiter.Allow(r.Context(), client)
			if err != nil {
				logger.Error("rate limiter failed, allowing request", "error", err, "client", client)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				if m != nil {
					m.RateLimited.Inc()
				}
				secs := int(math.Ceil(retryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				logger.Warn("rate limit exceeded", "client", client, "retry_after", retryAfter.String(), "request_id", RequestIDFrom(r.Context()))
				handler.WriteError(w, http.StatusTooManyRequests, handler.CodeRateLimited, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
