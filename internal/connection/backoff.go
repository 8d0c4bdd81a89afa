package connection

import "time"

// Backoff returns the delay before reconnect attempt n (0-based):
// base * 2^n, capped at max.
func Backoff(n int, base, max time.Duration) time.Duration {
	if n < 0 {
		n = 0
	}
	if base <= 0 {
		return 0
	}
	if n >= 62 {
		return max
	}
	d := base << uint(n)
	if d <= 0 || d > max || d/base != time.Duration(1)<<uint(n) {
		return max
	}
	return d
}
