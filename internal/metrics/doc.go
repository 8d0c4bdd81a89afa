// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Stream connection status and reconnect scheduling
//   - Inbound frames by type, parse errors and unknown frames
//   - Active instrument subscriptions
//   - Store version and auth checks
package metrics
