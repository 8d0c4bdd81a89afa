// Package server exposes the synchronized model to observers over HTTP.
//
// Reads are served from store snapshots. The only writes are the
// connection controls, which go through the session gate.
package server
