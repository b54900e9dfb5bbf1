package service

import "strings"

// ErrorCategory is the closed set of user-facing failure categories.
// Classification is purely for display; it never drives control flow.
type ErrorCategory string

const (
	CategoryReconnectRequired ErrorCategory = "reconnect_required"
	CategoryRateLimited       ErrorCategory = "rate_limited"
	CategoryNetwork           ErrorCategory = "network"
	CategoryGeneric           ErrorCategory = "generic"
)

// ClassifyError maps a provider error message to a display category by
// substring heuristics. Unknown messages fall through to generic.
func ClassifyError(msg string) ErrorCategory {
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, "401", "403", "unauthorized", "forbidden", "invalid_grant", "token expired", "auth", "reconnect"):
		return CategoryReconnectRequired
	case containsAny(lower, "429", "rate limit", "rate-limit", "too many requests", "quota"):
		return CategoryRateLimited
	case containsAny(lower, "timeout", "timed out", "connection refused", "connection reset", "network", "unreachable", "no such host", "eof"):
		return CategoryNetwork
	}
	return CategoryGeneric
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
