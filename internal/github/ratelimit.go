package github

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimit is the quota state parsed from GitHub's X-RateLimit-* response
// headers. It is ephemeral, derived per response, and never persisted.
type RateLimit struct {
	Limit     int
	Remaining int
	Used      int
	ResetAt   time.Time
}

// parseRateLimit extracts rate-limit state from response headers.
//
// GitHub omits these headers on some endpoints and proxies occasionally
// mangle them. Missing or malformed headers mean "no information", so this
// returns nil rather than an error.
func parseRateLimit(h http.Header, now time.Time) *RateLimit {
	limitStr := h.Get("X-RateLimit-Limit")
	remainingStr := h.Get("X-RateLimit-Remaining")
	if limitStr == "" && remainingStr == "" {
		return nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return nil
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return nil
	}

	used, _ := strconv.Atoi(h.Get("X-RateLimit-Used"))

	resetAt := now
	if resetStr := h.Get("X-RateLimit-Reset"); resetStr != "" {
		epoch, err := strconv.ParseInt(resetStr, 10, 64)
		if err != nil {
			return nil
		}
		if epoch > 0 {
			resetAt = time.Unix(epoch, 0).UTC()
		}
	}

	return &RateLimit{
		Limit:     limit,
		Remaining: remaining,
		Used:      used,
		ResetAt:   resetAt,
	}
}

// WaitUntilReset returns how long to wait from now until the quota window
// resets, padded by one second so the first request after the reset doesn't
// race the window boundary. A reset time in the past yields zero.
func (r *RateLimit) WaitUntilReset(now time.Time) time.Duration {
	if r == nil || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now) + time.Second
}
