// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single streaming connection to the backend
//   - Tracks its lifecycle as disconnected, connecting, connected or error
//   - Reconnects after unexpected closes with capped exponential backoff
//   - Feeds every inbound frame, in receipt order, to a Handler
//   - Runs open hooks so subscriptions are restored after a reconnect
package connection
