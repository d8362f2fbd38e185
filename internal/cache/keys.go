package cache

import "fmt"

// RateLimitKey namespaces a per-requester counter for the given window.
func RateLimitKey(subject string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", subject, window)
}
