package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"vidtube/internal/constants"
)

// rateLimit allows limit requests per window for each client IP.
func rateLimit(limit int, window time.Duration, ips *ClientIPResolver) func(http.Handler) http.Handler {
	retryAfter := retryAfterSeconds(window)

	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(ips.KeyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error: ErrorDetail{
					Code:              constants.ErrCodeRateLimitExceeded,
					Message:           "Too many requests, please try again later",
					RetryAfterSeconds: retryAfter,
				},
			})
		}),
	)
}

func retryAfterSeconds(window time.Duration) int {
	if window <= 0 {
		return 1
	}
	seconds := int(math.Ceil(window.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
