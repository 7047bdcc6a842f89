// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	xglog "github.com/ManuGH/playctl/internal/log"
)

// RateLimit caps requests per client IP per minute. A non-positive limit
// disables the middleware.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger := xglog.WithComponentFromContext(r.Context(), "ratelimit")
			logger.Warn().
				Str(xglog.FieldEvent, "ratelimit.exceeded").
				Str("remote_addr", r.RemoteAddr).
				Str("path", r.URL.Path).
				Msg("rate limit exceeded")

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(60))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "RATE_LIMITED",
			})
		}),
	)
}
