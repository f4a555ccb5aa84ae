package redis

import "strings"

// Every key the shop writes lives under shop:<kind>:...
const keyNamespace = "shop"

const (
	kindIdempotency = "idempotency"
	kindRateLimit   = "rate_limit"
	kindLock        = "lock"
)

func namespaced(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

// IdempotencyKey is where replay markers and cached responses for id live.
func (c *Client) IdempotencyKey(scope, id string) string {
	return namespaced(kindIdempotency, scope, id)
}

// RateLimitKey holds the request counter of one fixed window.
func (c *Client) RateLimitKey(scope string) string {
	return namespaced(kindRateLimit, scope)
}

// LockKey names a cron mutex.
func (c *Client) LockKey(name string) string {
	return namespaced(kindLock, name)
}
