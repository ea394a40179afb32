package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// throttle limits each client IP to limit requests per period. A
// non-positive limit disables throttling.
func throttle(period time.Duration, limit int64) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	mw := stdlib.NewMiddleware(limiter.New(memory.NewStore(), rate,
		limiter.WithTrustForwardHeader(true)))
	return mw.Handler
}

// adminAuth requires "Authorization: Bearer <token>". An empty token leaves
// the admin routes open, which is only meant for local use.
func adminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "missing or invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
