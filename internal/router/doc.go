// Package router implements the Message Router component.
//
// The router decodes each inbound frame's "type" envelope and applies it to
// the store through exactly one update operation. Bad frames are dropped
// one at a time and never stop the stream.
package router
